// Package conntrack tracks which descriptors of the host process belong to
// deceived connections and how far each connection's response has gone.
//
// Markers live in a fixed array of atomics indexed by descriptor, bounded by
// the table limit. Per-connection SocketInfo entries live in lock-striped
// maps so that two threads racing on different descriptors never contend
// and two threads racing on the same descriptor are serialized.
package conntrack

import (
	"sync"
	"sync/atomic"
)

// DefaultLimit is the highest descriptor number (exclusive) that is tracked.
const DefaultLimit = 1000

const shardCount = 64

// Marker is the trace state of a descriptor.
type Marker uint32

const (
	Untraced Marker = iota
	Traced
	TracingRoot
)

func (m Marker) String() string {
	switch m {
	case Traced:
		return "traced"
	case TracingRoot:
		return "tracing-root"
	default:
		return "untraced"
	}
}

// RequestMode classifies the request seen on a connection.
type RequestMode int

const (
	ModeNone RequestMode = iota
	// ModeAdminPath means the request line contained the matching path.
	ModeAdminPath
)

func (m RequestMode) String() string {
	if m == ModeAdminPath {
		return "admin-path"
	}
	return "none"
}

// SocketInfo is the state of one traced connection.
type SocketInfo struct {
	Mode RequestMode
	// Progress counts write/send calls made on the connection.
	Progress int
}

type shard struct {
	mu      sync.Mutex
	entries map[int]*SocketInfo
}

// Table is the process-wide descriptor table.
type Table struct {
	markers []atomic.Uint32
	root    atomic.Int64
	traced  atomic.Int64
	shards  [shardCount]shard
}

// New returns a table tracking descriptors in [0, limit). A non-positive
// limit selects DefaultLimit.
func New(limit int) *Table {
	if limit <= 0 {
		limit = DefaultLimit
	}
	t := &Table{markers: make([]atomic.Uint32, limit)}
	t.root.Store(-1)
	for i := range t.shards {
		t.shards[i].entries = make(map[int]*SocketInfo)
	}
	return t
}

// Limit returns the exclusive upper bound of tracked descriptors.
func (t *Table) Limit() int { return len(t.markers) }

func (t *Table) inRange(fd int) bool {
	return fd >= 0 && fd < len(t.markers)
}

// Marker returns the trace state of fd.
func (t *Table) Marker(fd int) Marker {
	if !t.inRange(fd) {
		return Untraced
	}
	return Marker(t.markers[fd].Load())
}

// IsTraced reports whether fd belongs to an accepted, deceived connection.
func (t *Table) IsTraced(fd int) bool {
	return t.Marker(fd) == Traced
}

// MarkTraced flags fd as a deceived connection. It returns false when fd is
// outside the table.
func (t *Table) MarkTraced(fd int) bool {
	if !t.inRange(fd) {
		return false
	}
	if Marker(t.markers[fd].Swap(uint32(Traced))) != Traced {
		t.traced.Add(1)
	}
	return true
}

// Root returns the tracing-root descriptor, or -1 when none is set.
func (t *Table) Root() int {
	return int(t.root.Load())
}

// SetRoot records fd as the listening socket connections are accepted from.
// Only the first call wins; it returns false if a root already exists or fd
// is outside the table.
func (t *Table) SetRoot(fd int) bool {
	if !t.inRange(fd) {
		return false
	}
	if !t.root.CompareAndSwap(-1, int64(fd)) {
		return false
	}
	t.markers[fd].Store(uint32(TracingRoot))
	return true
}

// Open starts tracking a request on fd, replacing any previous entry.
func (t *Table) Open(fd int, mode RequestMode) {
	s := t.shard(fd)
	s.mu.Lock()
	s.entries[fd] = &SocketInfo{Mode: mode}
	s.mu.Unlock()
}

// Info returns a copy of the entry for fd.
func (t *Table) Info(fd int) (SocketInfo, bool) {
	s := t.shard(fd)
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.entries[fd]
	if !ok {
		return SocketInfo{}, false
	}
	return *info, true
}

// Advance increments the progress counter of fd and returns the entry as it
// was before the increment. A descriptor without an entry gets a ModeNone
// entry, so its first call still reports zero progress and later calls do
// not.
func (t *Table) Advance(fd int) SocketInfo {
	s := t.shard(fd)
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.entries[fd]
	if !ok {
		info = &SocketInfo{Mode: ModeNone}
		s.entries[fd] = info
	}
	before := *info
	info.Progress++
	return before
}

// Rewind undoes one Advance on fd, for a call that ended up sending nothing.
func (t *Table) Rewind(fd int) {
	s := t.shard(fd)
	s.mu.Lock()
	defer s.mu.Unlock()
	if info, ok := s.entries[fd]; ok && info.Progress > 0 {
		info.Progress--
	}
}

// Release forgets everything about fd. It reports whether fd was traced or
// the tracing root.
func (t *Table) Release(fd int) bool {
	s := t.shard(fd)
	s.mu.Lock()
	delete(s.entries, fd)
	s.mu.Unlock()

	if !t.inRange(fd) {
		return false
	}
	prev := Marker(t.markers[fd].Swap(uint32(Untraced)))
	switch prev {
	case Traced:
		t.traced.Add(-1)
	case TracingRoot:
		t.root.CompareAndSwap(int64(fd), -1)
	}
	return prev != Untraced
}

// TracedCount returns the number of descriptors currently marked traced.
func (t *Table) TracedCount() int {
	return int(t.traced.Load())
}

// Entries returns the number of open SocketInfo entries.
func (t *Table) Entries() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

func (t *Table) shard(fd int) *shard {
	idx := fd % shardCount
	if idx < 0 {
		idx = -idx
	}
	return &t.shards[idx]
}
