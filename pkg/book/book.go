package book

import (
	"sync"
	"time"

	"mercator-hq/honeywire/pkg/fastpath"
	"mercator-hq/honeywire/pkg/honeywire"
)

// DefaultTimeout bounds how long Publish waits for readers to drain.
const DefaultTimeout = 10 * time.Second

// Pair is a configuration together with the model derived from it.
type Pair struct {
	Config *honeywire.Config
	Model  *fastpath.Model
}

// Book is the reader/writer hub for the active Pair.
type Book struct {
	mu         sync.Mutex
	readers    int
	writing    bool
	drained    chan struct{}
	current    Pair
	lastUpdate time.Time
	timeout    time.Duration

	// publishMu serializes writers.
	publishMu sync.Mutex
}

// New returns a Book holding an empty configuration. A non-positive timeout
// selects DefaultTimeout.
func New(timeout time.Duration) *Book {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	empty := &honeywire.Config{}
	return &Book{
		current: Pair{Config: empty, Model: fastpath.Derive(empty)},
		timeout: timeout,
	}
}

// BeginRead registers a reader and returns the current pair. It returns false
// while a publish is in progress; the caller must then act as if no
// deception were configured and must not call EndRead.
func (b *Book) BeginRead() (Pair, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writing {
		return Pair{}, false
	}
	b.readers++
	return b.current, true
}

// EndRead releases a reader registered by a successful BeginRead.
func (b *Book) EndRead() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.readers > 0 {
		b.readers--
	}
	if b.readers == 0 && b.drained != nil {
		close(b.drained)
		b.drained = nil
	}
}

// Read calls fn with the current pair between BeginRead and EndRead. It
// reports false without calling fn when a publish is in progress.
func (b *Book) Read(fn func(Pair)) bool {
	p, ok := b.BeginRead()
	if !ok {
		return false
	}
	defer b.EndRead()
	fn(p)
	return true
}

// Publish installs cfg and model once all readers are gone. observed is the
// modification time of the file the pair was built from and becomes the new
// LastUpdate whether or not the swap happens. It returns false when readers
// did not drain within the timeout.
func (b *Book) Publish(cfg *honeywire.Config, model *fastpath.Model, observed time.Time) bool {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	b.writing = true
	if b.readers == 0 {
		b.swap(cfg, model, observed)
		b.mu.Unlock()
		return true
	}
	drained := make(chan struct{})
	b.drained = drained
	b.mu.Unlock()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-drained:
	case <-timer.C:
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.readers == 0 {
		b.swap(cfg, model, observed)
		return true
	}
	b.drained = nil
	b.lastUpdate = observed
	b.writing = false
	return false
}

// swap must be called with mu held.
func (b *Book) swap(cfg *honeywire.Config, model *fastpath.Model, observed time.Time) {
	b.current = Pair{Config: cfg, Model: model}
	b.lastUpdate = observed
	b.writing = false
	b.drained = nil
}

// Current returns the active pair without registering a reader. Pairs are
// immutable, so the result stays valid after later publishes.
func (b *Book) Current() Pair {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// LastUpdate returns the modification time recorded by the last Publish.
func (b *Book) LastUpdate() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUpdate
}

// Readers returns the number of registered readers.
func (b *Book) Readers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readers
}

// Writing reports whether a publish is waiting for readers.
func (b *Book) Writing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writing
}

// Timeout returns the reader-drain timeout.
func (b *Book) Timeout() time.Duration {
	return b.timeout
}
