package metrics

import (
	"mercator-hq/honeywire/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the agent's metrics and their registry.
//
// A nil Collector is valid and records nothing, so callers built without
// metrics need no guards.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	interceptionMetrics *InterceptionMetrics
	reloadMetrics       *ReloadMetrics
}

// NewCollector creates a collector registered with registry. If registry is
// nil a fresh one is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}

	return &Collector{
		config:              cfg,
		registry:            registry,
		interceptionMetrics: NewInterceptionMetrics(cfg, registry),
		reloadMetrics:       NewReloadMetrics(cfg, registry),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordInterception counts one intercepted call of the named function.
func (c *Collector) RecordInterception(call string) {
	if !c.enabled() {
		return
	}
	c.interceptionMetrics.RecordCall(call)
}

// RecordDeception counts one applied deception of the given honeywire kind.
func (c *Collector) RecordDeception(kind string) {
	if !c.enabled() {
		return
	}
	c.interceptionMetrics.RecordDeception(kind)
}

// RecordReload counts one reload attempt. result is one of "published",
// "unchanged", "parse_error", "io_error" or "timeout".
func (c *Collector) RecordReload(result string) {
	if !c.enabled() {
		return
	}
	c.reloadMetrics.RecordReload(result)
}

// ObserveState registers gauges sampled at gather time: the number of
// syscalls inside the rule book and the number of traced descriptors.
// Either function may be nil. It must be called at most once.
func (c *Collector) ObserveState(readers, traced func() int) {
	if c == nil {
		return
	}
	if readers != nil {
		c.reloadMetrics.ObserveReaders(c.config, c.registry, readers)
	}
	if traced != nil {
		c.interceptionMetrics.ObserveTraced(c.config, c.registry, traced)
	}
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}
