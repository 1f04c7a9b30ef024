package intercept

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/honeywire/pkg/book"
	"mercator-hq/honeywire/pkg/config"
	"mercator-hq/honeywire/pkg/conntrack"
	"mercator-hq/honeywire/pkg/evidence"
	"mercator-hq/honeywire/pkg/evidence/recorder"
	"mercator-hq/honeywire/pkg/evidence/retention"
	"mercator-hq/honeywire/pkg/evidence/storage"
	"mercator-hq/honeywire/pkg/reload"
	"mercator-hq/honeywire/pkg/telemetry/logging"
	"mercator-hq/honeywire/pkg/telemetry/metrics"
)

// MatchTechnology reports whether argv0 names a deception target: it must
// contain one of technologies.
func MatchTechnology(argv0 string, technologies []string) bool {
	for _, t := range technologies {
		if t != "" && strings.Contains(argv0, t) {
			return true
		}
	}
	return false
}

// Runtime is the process-wide deception context. One Runtime is started per
// process when the shared object is loaded.
type Runtime struct {
	config *config.Config

	mu         sync.Mutex
	started    bool
	target     bool
	cancel     context.CancelFunc
	dispatcher *Dispatcher

	logger    *logging.Logger
	book      *book.Book
	table     *conntrack.Table
	watcher   *reload.Watcher
	collector *metrics.Collector
	flusher   *metrics.Flusher
	storage   evidence.Storage
	recorder  *recorder.Recorder
	pruner    *retention.Pruner
}

// NewRuntime creates a runtime for cfg. Unset fields of cfg take their
// defaults.
func NewRuntime(cfg *config.Config) *Runtime {
	if cfg == nil {
		cfg = config.Default()
	}
	config.ApplyDefaults(cfg)
	return &Runtime{config: cfg}
}

// Start decides whether the process started as argv0 is a deception target.
// For a target it resolves the original calls, loads the rules and starts
// the background work; otherwise, or when resolution fails, the returned
// dispatcher only delegates. A non-nil error always comes with a usable
// dispatcher when resolution itself succeeded.
func (r *Runtime) Start(ctx context.Context, argv0 string, resolve Resolver) (*Dispatcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil, fmt.Errorf("runtime already started")
	}
	r.started = true

	orig, err := resolve()
	if err != nil {
		return nil, NewResolveError(err)
	}

	if !MatchTechnology(argv0, r.config.Interception.Technologies) {
		r.dispatcher = Passthrough(orig)
		return r.dispatcher, nil
	}

	logger, err := logging.New(logging.Config{
		Level:  r.config.Telemetry.Logging.Level,
		Format: r.config.Telemetry.Logging.Format,
		File:   r.config.Telemetry.Logging.File,
	})
	if err != nil {
		r.dispatcher = Passthrough(orig)
		return r.dispatcher, fmt.Errorf("failed to create logger: %w", err)
	}
	r.logger = logger
	slog.SetDefault(logger.Slog())
	log := logger.Slog().With("component", "runtime")

	ctx, r.cancel = context.WithCancel(ctx)
	r.target = true
	r.book = book.New(r.config.Honeyaml.ReloadTimeout)
	r.table = conntrack.New(r.config.Interception.MaxDescriptor)

	r.startMetrics(log)
	r.startEvidence(ctx, argv0, log)

	r.watcher = reload.New(reload.Config{
		Path:         r.config.Honeyaml.Path,
		PollInterval: r.config.Honeyaml.PollInterval,
		Watch:        r.config.Honeyaml.Watch,
	}, r.book, logger.Slog(), r.collector)
	// A missing or broken file leaves the empty rule set active; the
	// watcher keeps retrying.
	_ = r.watcher.Check(ctx)
	if err := r.watcher.Start(ctx); err != nil {
		log.Error("honeyaml watcher not started", "error", err)
	}

	opts := Options{
		Book:          r.book,
		Table:         r.table,
		DeceivedPorts: r.config.Interception.DeceivedPorts,
		HTTPVersions:  r.config.Interception.HTTPVersions,
		Metrics:       r.collector,
		Logger:        logger.Slog(),
	}
	if r.recorder != nil {
		opts.Evidence = r.recorder
	}
	r.dispatcher = NewDispatcher(orig, opts)

	log.Info("deception started",
		"process", argv0,
		"honeyaml", r.config.Honeyaml.Path,
		"deceived_ports", r.config.Interception.DeceivedPorts,
	)
	return r.dispatcher, nil
}

func (r *Runtime) startMetrics(log *slog.Logger) {
	cfg := &r.config.Telemetry.Metrics
	r.collector = metrics.NewCollector(cfg, prometheus.NewRegistry())
	r.collector.ObserveState(r.book.Readers, r.table.TracedCount)
	if !cfg.Enabled {
		return
	}

	r.flusher = metrics.NewFlusher(cfg, r.collector.Registry(), log)
	if err := r.flusher.Start(); err != nil {
		log.Warn("metrics textfile disabled", "error", err)
		r.flusher = nil
	}
}

// startEvidence opens the evidence store. Failures disable recording but
// never deception.
func (r *Runtime) startEvidence(ctx context.Context, argv0 string, log *slog.Logger) {
	cfg := r.config.Evidence
	if !cfg.Enabled {
		return
	}

	sqlCfg := storage.DefaultSQLiteConfig()
	sqlCfg.Path = cfg.SQLitePath
	sqlCfg.BusyTimeout = cfg.BusyTimeout
	store, err := storage.NewSQLiteStorage(sqlCfg)
	if err != nil {
		log.Warn("evidence recording disabled", "error", err)
		return
	}
	r.storage = store

	r.recorder = recorder.NewRecorder(store, &recorder.Config{
		Enabled:      true,
		AsyncBuffer:  cfg.AsyncBuffer,
		WriteTimeout: cfg.WriteTimeout,
		Process:      argv0,
	})

	if cfg.RetentionDays == 0 && cfg.MaxRecords == 0 {
		return
	}
	r.pruner = retention.NewPruner(store, &retention.Config{
		RetentionDays: cfg.RetentionDays,
		PruneSchedule: cfg.PruneSchedule,
		MaxRecords:    cfg.MaxRecords,
	})
	if err := r.pruner.Start(ctx); err != nil {
		log.Warn("evidence retention disabled", "error", err)
		r.pruner = nil
	}
}

// Target reports whether Start found the process to be a deception target.
func (r *Runtime) Target() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

// Dispatcher returns the dispatcher created by Start.
func (r *Runtime) Dispatcher() *Dispatcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dispatcher
}

// Book returns the rule book, or nil for a non-target process.
func (r *Runtime) Book() *book.Book {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.book
}

// Shutdown stops the background work and flushes metrics and evidence.
// The dispatcher keeps working afterwards with the last published rules.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.target {
		return nil
	}
	r.target = false

	var errs []error
	if r.watcher != nil {
		r.watcher.Stop()
	}
	if r.pruner != nil {
		r.pruner.Stop()
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.recorder != nil {
		if err := r.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close evidence recorder: %w", err))
		}
	}
	if r.storage != nil {
		if err := r.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close evidence storage: %w", err))
		}
	}
	if r.flusher != nil {
		if err := r.flusher.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush metrics: %w", err))
		}
	}
	if r.logger != nil {
		r.logger.Slog().Info("deception stopped", "component", "runtime")
		if err := r.logger.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close log file: %w", err))
		}
	}
	return errors.Join(errs...)
}
