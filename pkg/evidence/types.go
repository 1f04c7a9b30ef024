package evidence

import (
	"context"
	"io"
	"time"
)

// Kind classifies a deception event.
type Kind string

const (
	// KindHeaderReplaced is recorded when a response header value was
	// replaced.
	KindHeaderReplaced Kind = "header_replaced"

	// KindStatusReplaced is recorded when a response status line was
	// replaced.
	KindStatusReplaced Kind = "status_replaced"

	// KindAdminPath is recorded when a request for the watched path was
	// read from a traced descriptor.
	KindAdminPath Kind = "admin_path"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindHeaderReplaced, KindStatusReplaced, KindAdminPath:
		return true
	}
	return false
}

// Event is one applied deception.
type Event struct {
	ID   string    `json:"id"`   // UUID v4
	Time time.Time `json:"time"` // When the intercepted call ran

	// Where it happened
	PID     int    `json:"pid"`
	Process string `json:"process"` // argv[0]
	FD      int    `json:"fd"`

	// What happened
	Kind      Kind   `json:"kind"`
	Honeywire string `json:"honeywire"`        // Name of the wire that applied
	Path      string `json:"path,omitempty"`   // Watched path, for admin-path events
	Detail    string `json:"detail,omitempty"` // Replacement written, e.g. "Server: nginx/1.18.0"
}

// Query defines filter parameters for querying events.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	Kind      Kind   `json:"kind,omitempty"`
	Honeywire string `json:"honeywire,omitempty"`
	Process   string `json:"process,omitempty"`
	PID       int    `json:"pid,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`  // Max events to return
	Offset int `json:"offset,omitempty"` // Skip N events

	// SortOrder orders by event time: "asc" or "desc" (default).
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage defines the interface for event storage backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists an event.
	Store(ctx context.Context, event *Event) error

	// Query retrieves events matching the query filters.
	// Returns an empty slice if no events match.
	Query(ctx context.Context, query *Query) ([]*Event, error)

	// QueryStream returns a channel of events for large result sets.
	// Both channels are closed when the query completes; errCh carries at
	// most one error.
	QueryStream(ctx context.Context, query *Query) (<-chan *Event, <-chan error, error)

	// Count returns the number of events matching the query filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes events matching the query filters and returns how many
	// were removed.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Exporter writes events to w in some format.
type Exporter interface {
	Export(ctx context.Context, events []*Event, w io.Writer) error
}
