package recorder

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/honeywire/pkg/evidence"
)

// Config contains configuration for the evidence recorder.
type Config struct {
	// Enabled enables evidence recording.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 256
	AsyncBuffer int

	// WriteTimeout is the timeout for writing one event to storage.
	// Default: 2 seconds
	WriteTimeout time.Duration

	// Process is stamped on events that do not name one.
	// Default: os.Args[0]
	Process string
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  256,
		WriteTimeout: 2 * time.Second,
	}
}

// Recorder writes events to storage from a background worker.
type Recorder struct {
	storage   evidence.Storage
	config    *Config
	eventChan chan *evidence.Event
	wg        sync.WaitGroup
	logger    *slog.Logger
	pid       int

	// mu guards closed so that no send can race the final drain.
	mu     sync.RWMutex
	closed bool

	recorded atomic.Int64
	dropped  atomic.Int64
}

// NewRecorder creates a recorder writing to storage.
func NewRecorder(storage evidence.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 256
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 2 * time.Second
	}
	if config.Process == "" && len(os.Args) > 0 {
		config.Process = os.Args[0]
	}

	r := &Recorder{
		storage:   storage,
		config:    config,
		eventChan: make(chan *evidence.Event, config.AsyncBuffer),
		logger:    slog.Default().With("component", "evidence.recorder"),
		pid:       os.Getpid(),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Debug("evidence recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// Record stamps and enqueues event. It never blocks. Events that do not fit
// in the queue are dropped with an error wrapping evidence.ErrQueueFull.
func (r *Recorder) Record(event *evidence.Event) error {
	if !r.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	if event.PID == 0 {
		event.PID = r.pid
	}
	if event.Process == "" {
		event.Process = r.config.Process
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return evidence.NewRecorderError(event.ID, evidence.ErrRecorderClosed)
	}

	select {
	case r.eventChan <- event:
		return nil
	default:
		r.dropped.Add(1)
		return evidence.NewRecorderError(event.ID, evidence.ErrQueueFull)
	}
}

// Recorded returns the number of events written to storage.
func (r *Recorder) Recorded() int64 {
	return r.recorded.Load()
}

// Dropped returns the number of events that were not queued.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting events, drains the queue and waits for the worker.
// It is safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.eventChan)
	r.mu.Unlock()

	r.wg.Wait()

	r.logger.Debug("evidence recorder shut down",
		"recorded", r.recorded.Load(),
		"dropped", r.dropped.Load(),
	)
	return nil
}

// worker drains the queue until it is closed.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for event := range r.eventChan {
		r.writeEvent(event)
	}
}

func (r *Recorder) writeEvent(event *evidence.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()

	if err := r.storage.Store(ctx, event); err != nil {
		r.logger.Error("failed to store deception event",
			"event_id", event.ID,
			"kind", event.Kind,
			"error", err,
		)
		return
	}
	r.recorded.Add(1)

	duration := time.Since(start)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow evidence write",
			"event_id", event.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}
