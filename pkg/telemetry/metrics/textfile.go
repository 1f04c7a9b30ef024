package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mercator-hq/honeywire/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

// Flusher writes a registry to a node-exporter textfile on an interval.
type Flusher struct {
	path     string
	interval string
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewFlusher creates a flusher for cfg. The logger may be nil.
func NewFlusher(cfg *config.MetricsConfig, gatherer prometheus.Gatherer, logger *slog.Logger) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = config.DefaultMetricsFlushInterval
	}
	return &Flusher{
		path:     TextfilePath(cfg.TextfilePath, os.Getpid()),
		interval: fmt.Sprintf("@every %s", interval),
		gatherer: gatherer,
		logger:   logger.With("component", "metrics"),
	}
}

// TextfilePath inserts pid before the extension of path, so
// "honeywire.prom" becomes "honeywire.<pid>.prom".
func TextfilePath(path string, pid int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s.%d%s", strings.TrimSuffix(path, ext), pid, ext)
}

// Path returns the file this flusher writes.
func (f *Flusher) Path() string {
	return f.path
}

// Flush writes the textfile once.
func (f *Flusher) Flush() error {
	if err := prometheus.WriteToTextfile(f.path, f.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile %q: %w", f.path, err)
	}
	return nil
}

// Start begins periodic flushing.
func (f *Flusher) Start() error {
	if f.cron != nil {
		return fmt.Errorf("flusher already started")
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(f.interval, func() {
		if err := f.Flush(); err != nil {
			f.logger.Warn("metrics flush failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid flush interval %q: %w", f.interval, err)
	}
	f.cron = c
	c.Start()
	return nil
}

// Stop halts periodic flushing, writes a final textfile and waits for a
// running flush or ctx, whichever comes first.
func (f *Flusher) Stop(ctx context.Context) error {
	if f.cron == nil {
		return nil
	}
	stopped := f.cron.Stop()
	f.cron = nil

	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return f.Flush()
}
