package metrics

import (
	"mercator-hq/honeywire/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// InterceptionMetrics tracks intercepted calls and applied deceptions.
//
// Metrics:
//   - honeywire_agent_interceptions_total: intercepted calls by function
//   - honeywire_agent_deceptions_total: applied deceptions by honeywire kind
//   - honeywire_agent_traced_descriptors: descriptors currently traced
type InterceptionMetrics struct {
	interceptionsTotal *prometheus.CounterVec
	deceptionsTotal    *prometheus.CounterVec
}

// NewInterceptionMetrics creates and registers interception metrics.
func NewInterceptionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *InterceptionMetrics {
	im := &InterceptionMetrics{
		interceptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "interceptions_total",
				Help:      "Total number of intercepted socket calls",
			},
			[]string{"call"},
		),

		deceptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "deceptions_total",
				Help:      "Total number of responses altered by a honeywire",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(im.interceptionsTotal, im.deceptionsTotal)
	return im
}

// RecordCall counts one intercepted call.
func (im *InterceptionMetrics) RecordCall(call string) {
	im.interceptionsTotal.WithLabelValues(call).Inc()
}

// RecordDeception counts one applied deception.
func (im *InterceptionMetrics) RecordDeception(kind string) {
	im.deceptionsTotal.WithLabelValues(kind).Inc()
}

// ObserveTraced registers a gauge reporting the traced descriptor count.
func (im *InterceptionMetrics) ObserveTraced(cfg *config.MetricsConfig, registry *prometheus.Registry, traced func() int) {
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "traced_descriptors",
			Help:      "Number of accepted descriptors currently traced",
		},
		func() float64 { return float64(traced()) },
	))
}
