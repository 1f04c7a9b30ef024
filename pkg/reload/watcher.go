package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"mercator-hq/honeywire/pkg/book"
	"mercator-hq/honeywire/pkg/fastpath"
	"mercator-hq/honeywire/pkg/honeywire"
	"mercator-hq/honeywire/pkg/honeywire/parser"
)

// Reload results, as reported to a ResultRecorder.
const (
	ResultPublished  = "published"
	ResultUnchanged  = "unchanged"
	ResultIOError    = "io_error"
	ResultParseError = "parse_error"
	ResultTimeout    = "timeout"
)

// ResultRecorder receives the outcome of every check.
type ResultRecorder interface {
	RecordReload(result string)
}

// Config configures a Watcher.
type Config struct {
	// Path is the honeyaml file.
	Path string

	// PollInterval is the time between checks.
	PollInterval time.Duration

	// Watch enables filesystem notifications.
	Watch bool

	// DebounceInterval is the quiet period after a notification before the
	// extra check runs. Default: 100ms
	DebounceInterval time.Duration
}

// Watcher publishes honeyaml changes into a Book.
type Watcher struct {
	config  Config
	book    *book.Book
	logger  *slog.Logger
	metrics ResultRecorder

	// checkMu serializes checks from the poll and the notifier.
	checkMu sync.Mutex

	mu       sync.Mutex
	running  bool
	cron     *cron.Cron
	notify   *fsnotify.Watcher
	debounce *debouncer
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a watcher for cfg publishing into b. logger and metrics may be
// nil.
func New(cfg Config, b *book.Book, logger *slog.Logger, metrics ResultRecorder) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 100 * time.Millisecond
	}
	return &Watcher{
		config:  cfg,
		book:    b,
		logger:  logger.With("component", "reload", "path", cfg.Path),
		metrics: metrics,
	}
}

func (w *Watcher) record(result string) {
	if w.metrics != nil {
		w.metrics.RecordReload(result)
	}
}

// Check runs one reload cycle synchronously. It returns nil when the file
// is unchanged or was published, and an *IOError, *ParseError or
// *TimeoutError otherwise. Every error is also logged.
func (w *Watcher) Check(ctx context.Context) error {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(w.config.Path)
	if err != nil {
		ioErr := &IOError{Path: w.config.Path, Op: "stat", Cause: err}
		w.logger.Warn("honeyaml unavailable", "error", ioErr)
		w.record(ResultIOError)
		return ioErr
	}

	mtime := info.ModTime()
	if !mtime.After(w.book.LastUpdate()) {
		w.record(ResultUnchanged)
		return nil
	}

	cfg, err := parser.ParseFile(w.config.Path)
	if err != nil {
		var perr *honeywire.ParseError
		if errors.As(err, &perr) {
			parseErr := &ParseError{Path: w.config.Path, Cause: err}
			w.logger.Error("honeyaml rejected, keeping previous rules", "error", parseErr)
			w.record(ResultParseError)
			return parseErr
		}
		ioErr := &IOError{Path: w.config.Path, Op: "read", Cause: err}
		w.logger.Warn("honeyaml unreadable", "error", ioErr)
		w.record(ResultIOError)
		return ioErr
	}

	model := fastpath.Derive(cfg)
	if !w.book.Publish(cfg, model, mtime) {
		timeoutErr := &TimeoutError{Path: w.config.Path, Timeout: w.book.Timeout()}
		w.logger.Error("honeyaml reload timed out", "error", timeoutErr)
		w.record(ResultTimeout)
		return timeoutErr
	}

	w.logger.Info("honeyaml reloaded",
		"honeywires", len(cfg.Honeywires),
		"enabled", len(cfg.Enabled()),
		"modified", mtime,
	)
	w.record(ResultPublished)
	return nil
}

// Start schedules periodic checks and, if configured, filesystem
// notifications. It does not run an initial check; callers that need the
// rules loaded before proceeding call Check first.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if w.config.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", w.config.PollInterval)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	schedule := fmt.Sprintf("@every %s", w.config.PollInterval)
	if _, err := c.AddFunc(schedule, func() { w.Check(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule honeyaml checks: %w", err)
	}

	w.cron = c
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	if w.config.Watch {
		if err := w.startNotify(ctx); err != nil {
			// Polling alone still converges.
			w.logger.Warn("filesystem notifications unavailable", "error", err)
		}
	}

	c.Start()

	go func() {
		defer close(w.doneCh)
		select {
		case <-ctx.Done():
			w.shutdown()
		case <-w.stopCh:
		}
	}()

	w.logger.Debug("honeyaml watcher started",
		"poll_interval", w.config.PollInterval,
		"notify", w.notify != nil,
	)
	return nil
}

// startNotify watches the parent directory so that editors that replace the
// file by rename are still seen. Must be called with mu held.
func (w *Watcher) startNotify(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.config.Path)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(w.config.Path), err)
	}

	w.notify = fsw
	w.debounce = newDebouncer(w.config.DebounceInterval)
	target := filepath.Clean(w.config.Path)

	go func() {
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || event.Op == fsnotify.Chmod {
					continue
				}
				w.logger.Debug("honeyaml change detected", "op", event.Op.String())
				w.debounce.trigger(func() { w.Check(ctx) })

			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("filesystem notification error", "error", err)
			}
		}
	}()
	return nil
}

// Stop halts scheduling and waits for a running check to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	w.shutdown()
	<-w.doneCh
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false

	if w.debounce != nil {
		w.debounce.stop()
		w.debounce = nil
	}
	if w.notify != nil {
		w.notify.Close()
		w.notify = nil
	}
	<-w.cron.Stop().Done()
	w.logger.Debug("honeyaml watcher stopped")
}

// Running reports whether the watcher is scheduled.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
