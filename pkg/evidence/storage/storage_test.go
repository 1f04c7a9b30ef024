package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/honeywire/pkg/evidence"
)

// createTempDB creates a temporary SQLite database for testing.
func createTempDB(t *testing.T) (*SQLiteStorage, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "evidence.db")
	storage, err := NewSQLiteStorage(&SQLiteConfig{
		Path:        dbPath,
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage, dbPath
}

// backends returns every Storage implementation under test.
func backends(t *testing.T) map[string]evidence.Storage {
	t.Helper()
	sqlite, _ := createTempDB(t)
	return map[string]evidence.Storage{
		"sqlite": sqlite,
		"memory": NewMemoryStorage(),
	}
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s evidence.Storage) {
	t.Helper()
	events := []*evidence.Event{
		{ID: "e1", Time: base, PID: 100, Process: "python3", FD: 5, Kind: evidence.KindHeaderReplaced, Honeywire: "server-banner", Detail: "Server: nginx/1.18.0"},
		{ID: "e2", Time: base.Add(time.Minute), PID: 100, Process: "python3", FD: 6, Kind: evidence.KindAdminPath, Honeywire: "admin-panel", Path: "/admin"},
		{ID: "e3", Time: base.Add(2 * time.Minute), PID: 100, Process: "python3", FD: 6, Kind: evidence.KindStatusReplaced, Honeywire: "admin-panel", Detail: "HTTP/1.1 200 OK"},
		{ID: "e4", Time: base.Add(3 * time.Minute), PID: 200, Process: "java", FD: 9, Kind: evidence.KindHeaderReplaced, Honeywire: "server-banner", Detail: "Server: nginx/1.18.0"},
	}
	for _, e := range events {
		if err := s.Store(context.Background(), e); err != nil {
			t.Fatalf("Store(%s) error = %v", e.ID, err)
		}
	}
}

func ids(events []*evidence.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSQLiteStorage_Initialize(t *testing.T) {
	storage, dbPath := createTempDB(t)

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Database file was not created: %v", err)
	}

	// Reopening an initialized database must accept the existing schema.
	again, err := NewSQLiteStorage(&SQLiteConfig{Path: dbPath, WALMode: true, BusyTimeout: time.Second})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	again.Close()

	count, err := storage.Count(context.Background(), &evidence.Query{})
	if err != nil || count != 0 {
		t.Errorf("Count() = %d, %v, want 0, nil", count, err)
	}
}

func TestSQLiteStorage_OpenError(t *testing.T) {
	_, err := NewSQLiteStorage(&SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "missing", "evidence.db"),
		BusyTimeout: time.Second,
	})
	var serr *evidence.StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("NewSQLiteStorage() error = %v, want StorageError", err)
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)

			events, err := s.Query(context.Background(), &evidence.Query{Kind: evidence.KindAdminPath})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("Query() returned %d events, want 1", len(events))
			}

			got := events[0]
			if got.ID != "e2" || got.PID != 100 || got.Process != "python3" || got.FD != 6 {
				t.Errorf("event identity = %+v", got)
			}
			if got.Honeywire != "admin-panel" || got.Path != "/admin" || got.Detail != "" {
				t.Errorf("event content = %+v", got)
			}
			if !got.Time.Equal(base.Add(time.Minute)) {
				t.Errorf("Time = %v, want %v", got.Time, base.Add(time.Minute))
			}
		})
	}
}

func TestStorage_Query(t *testing.T) {
	start := base.Add(time.Minute)
	end := base.Add(2 * time.Minute)

	tests := []struct {
		name    string
		query   *evidence.Query
		wantIDs []string
	}{
		{"all newest first", &evidence.Query{}, []string{"e4", "e3", "e2", "e1"}},
		{"ascending", &evidence.Query{SortOrder: "asc"}, []string{"e1", "e2", "e3", "e4"}},
		{"by honeywire", &evidence.Query{Honeywire: "server-banner"}, []string{"e4", "e1"}},
		{"by process", &evidence.Query{Process: "java"}, []string{"e4"}},
		{"by pid", &evidence.Query{PID: 100, SortOrder: "ASC"}, []string{"e1", "e2", "e3"}},
		{"inclusive range", &evidence.Query{StartTime: &start, EndTime: &end}, []string{"e3", "e2"}},
		{"limit", &evidence.Query{Limit: 2}, []string{"e4", "e3"}},
		{"offset", &evidence.Query{Limit: 2, Offset: 1}, []string{"e3", "e2"}},
		{"offset past end", &evidence.Query{Offset: 10}, []string{}},
		{"no match", &evidence.Query{Kind: evidence.KindStatusReplaced, Process: "java"}, []string{}},
	}

	for name, s := range backends(t) {
		seed(t, s)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				events, err := s.Query(context.Background(), tt.query)
				if err != nil {
					t.Fatalf("Query() error = %v", err)
				}
				if got := ids(events); !equalIDs(got, tt.wantIDs) {
					t.Errorf("Query() = %v, want %v", got, tt.wantIDs)
				}
			})
		}
	}
}

func TestStorage_InvalidSortOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Query(context.Background(), &evidence.Query{SortOrder: "sideways; DROP TABLE x"})
			var qerr *evidence.QueryError
			if !errors.As(err, &qerr) {
				t.Errorf("Query() error = %v, want QueryError", err)
			}
		})
	}
}

func TestStorage_CountAndDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			count, err := s.Count(ctx, &evidence.Query{Honeywire: "admin-panel"})
			if err != nil || count != 2 {
				t.Fatalf("Count() = %d, %v, want 2", count, err)
			}

			cutoff := base.Add(time.Minute)
			deleted, err := s.Delete(ctx, &evidence.Query{EndTime: &cutoff})
			if err != nil || deleted != 2 {
				t.Fatalf("Delete() = %d, %v, want 2", deleted, err)
			}

			count, err = s.Count(ctx, &evidence.Query{})
			if err != nil || count != 2 {
				t.Errorf("Count() after delete = %d, %v, want 2", count, err)
			}
		})
	}
}

func TestStorage_QueryStream(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)

			eventsCh, errCh, err := s.QueryStream(context.Background(), &evidence.Query{SortOrder: "asc"})
			if err != nil {
				t.Fatalf("QueryStream() error = %v", err)
			}

			var got []*evidence.Event
			for e := range eventsCh {
				got = append(got, e)
			}
			if err := <-errCh; err != nil {
				t.Fatalf("stream error = %v", err)
			}
			if want := []string{"e1", "e2", "e3", "e4"}; !equalIDs(ids(got), want) {
				t.Errorf("streamed %v, want %v", ids(got), want)
			}
		})
	}
}

func TestStorage_QueryStreamCancelled(t *testing.T) {
	s := NewMemoryStorage()
	for i := 0; i < 300; i++ {
		s.Store(context.Background(), &evidence.Event{
			ID:   time.Duration(i).String(),
			Time: base.Add(time.Duration(i) * time.Second),
			Kind: evidence.KindHeaderReplaced,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	eventsCh, errCh, err := s.QueryStream(ctx, &evidence.Query{Limit: 300})
	if err != nil {
		t.Fatalf("QueryStream() error = %v", err)
	}
	<-eventsCh
	cancel()
	for range eventsCh {
	}
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("stream error = %v, want context.Canceled", err)
	}
}

func TestMemoryStorage_StoresCopies(t *testing.T) {
	s := NewMemoryStorage()
	event := &evidence.Event{ID: "x", Time: base, Honeywire: "before"}
	s.Store(context.Background(), event)
	event.Honeywire = "after"

	got, _ := s.Query(context.Background(), &evidence.Query{})
	if got[0].Honeywire != "before" {
		t.Errorf("stored event mutated through caller pointer: %q", got[0].Honeywire)
	}
}
