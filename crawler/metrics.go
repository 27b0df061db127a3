package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the batch crawl.
type Metrics struct {
	Registry         *prometheus.Registry
	TargetsTotal     *prometheus.CounterVec
	TargetDuration   prometheus.Histogram
	RetriesTotal     prometheus.Counter
	VacantUnitsTotal prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	targets := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urwatch_targets_total",
			Help: "Targets checked, by outcome status.",
		},
		[]string{"status"},
	)
	targetDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "urwatch_target_duration_seconds",
			Help:    "Wall time spent per target, navigation through extraction.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "urwatch_navigation_retries_total",
			Help: "Navigation retry attempts scheduled.",
		},
	)
	vacantUnits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "urwatch_vacant_units_total",
			Help: "Vacant units extracted across all runs.",
		},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urwatch_navigation_errors_total",
			Help: "Navigation errors by failure category.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(targets, targetDuration, retries, vacantUnits, errorsTotal)

	return &Metrics{
		Registry:         registry,
		TargetsTotal:     targets,
		TargetDuration:   targetDuration,
		RetriesTotal:     retries,
		VacantUnitsTotal: vacantUnits,
		ErrorsTotal:      errorsTotal,
	}
}

// IncTarget counts one finished target by status.
func (m *Metrics) IncTarget(status string) {
	if m == nil {
		return
	}
	m.TargetsTotal.WithLabelValues(status).Inc()
}

// ObserveTargetDuration records one target's processing time.
func (m *Metrics) ObserveTargetDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.TargetDuration.Observe(d.Seconds())
}

// IncRetries counts one scheduled navigation retry.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError counts one navigation error by category.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// AddVacantUnits counts units found on a successful target.
func (m *Metrics) AddVacantUnits(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.VacantUnitsTotal.Add(float64(n))
}
