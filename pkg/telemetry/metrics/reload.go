package metrics

import (
	"mercator-hq/honeywire/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ReloadMetrics tracks honeyaml reloads and rule book contention.
//
// Metrics:
//   - honeywire_agent_reloads_total: reload attempts by result
//   - honeywire_agent_book_readers: syscalls currently reading the rules
type ReloadMetrics struct {
	reloadsTotal *prometheus.CounterVec
}

// NewReloadMetrics creates and registers reload metrics.
func NewReloadMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ReloadMetrics {
	rm := &ReloadMetrics{
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "reloads_total",
				Help:      "Total number of honeyaml reload attempts by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(rm.reloadsTotal)
	return rm
}

// RecordReload counts one reload attempt.
func (rm *ReloadMetrics) RecordReload(result string) {
	rm.reloadsTotal.WithLabelValues(result).Inc()
}

// ObserveReaders registers a gauge reporting active book readers.
func (rm *ReloadMetrics) ObserveReaders(cfg *config.MetricsConfig, registry *prometheus.Registry, readers func() int) {
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "book_readers",
			Help:      "Number of intercepted calls currently reading the rule book",
		},
		func() float64 { return float64(readers()) },
	))
}
