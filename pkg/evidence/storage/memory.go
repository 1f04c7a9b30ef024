package storage

import (
	"context"
	"sort"
	"sync"

	"mercator-hq/honeywire/pkg/evidence"
)

// MemoryStorage implements evidence.Storage in memory. Events are lost when
// the process exits.
type MemoryStorage struct {
	events map[string]*evidence.Event
	mu     sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		events: make(map[string]*evidence.Event),
	}
}

// Store persists a copy of event.
func (s *MemoryStorage) Store(ctx context.Context, event *evidence.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventCopy := *event
	s.events[event.ID] = &eventCopy
	return nil
}

// Query retrieves copies of the events matching the query filters, ordered
// and paginated like the SQLite backend.
func (s *MemoryStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.Event, error) {
	order, err := sortOrder(query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := []*evidence.Event{}
	for _, event := range s.events {
		if matches(event, query) {
			eventCopy := *event
			results = append(results, &eventCopy)
		}
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if order == "ASC" {
			a, b = b, a
		}
		if a.Time.Equal(b.Time) {
			return a.ID > b.ID
		}
		return a.Time.After(b.Time)
	})

	if query.Offset >= len(results) {
		return []*evidence.Event{}, nil
	}
	results = results[query.Offset:]

	limit := DefaultLimit
	if query.Limit > 0 {
		limit = query.Limit
	}
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// QueryStream streams the result of Query.
func (s *MemoryStorage) QueryStream(ctx context.Context, query *evidence.Query) (<-chan *evidence.Event, <-chan error, error) {
	events, err := s.Query(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	eventsCh := make(chan *evidence.Event, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventsCh)
		defer close(errCh)

		for _, event := range events {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case eventsCh <- event:
			}
		}
	}()

	return eventsCh, errCh, nil
}

// Count returns the number of events matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, event := range s.events {
		if matches(event, query) {
			count++
		}
	}
	return count, nil
}

// Delete removes events matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *evidence.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, event := range s.events {
		if matches(event, query) {
			delete(s.events, id)
			count++
		}
	}
	return count, nil
}

// Close discards all events.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string]*evidence.Event)
	return nil
}
