// Package metrics exposes Prometheus instruments for the allocation engines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels recorded for every engine operation.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// AllocationMetrics records engine operation outcomes and pool utilisation.
// A nil or unregistered value is safe to use and records nothing.
type AllocationMetrics struct {
	duration    *prometheus.HistogramVec
	operations  *prometheus.CounterVec
	utilisation *prometheus.GaugeVec
}

// NewAllocationMetrics registers the allocation metrics on the provided registerer.
func NewAllocationMetrics(reg prometheus.Registerer, service string) *AllocationMetrics {
	if reg == nil {
		return &AllocationMetrics{}
	}
	constLabels := prometheus.Labels{"service": service}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "joitex_allocation_duration_seconds",
		Help:        "Duration of allocation engine operations in seconds.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"operation"})
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "joitex_allocation_operations_total",
		Help:        "Allocation engine operations by outcome.",
		ConstLabels: constLabels,
	}, []string{"operation", "result", "code"})
	utilisation := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "joitex_pool_utilisation_ratio",
		Help:        "Fraction of pool capacity currently allocated.",
		ConstLabels: constLabels,
	}, []string{"pool"})
	reg.MustRegister(duration, operations, utilisation)
	return &AllocationMetrics{
		duration:    duration,
		operations:  operations,
		utilisation: utilisation,
	}
}

// Observe records one engine operation. code is the AppError code for
// rejected and failed operations and empty on success.
func (m *AllocationMetrics) Observe(operation, result, code string, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	operation = normalizeLabel(operation)
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
	m.operations.WithLabelValues(operation, normalizeLabel(result), code).Inc()
}

// SetPoolUtilisation publishes used/total for a pool.
func (m *AllocationMetrics) SetPoolUtilisation(pool string, used, total int) {
	if m == nil || m.utilisation == nil {
		return
	}
	ratio := 0.0
	if total > 0 {
		ratio = float64(used) / float64(total)
	}
	m.utilisation.WithLabelValues(normalizeLabel(pool)).Set(ratio)
}

// ForgetPool drops the gauge series of a deleted pool.
func (m *AllocationMetrics) ForgetPool(pool string) {
	if m == nil || m.utilisation == nil {
		return
	}
	m.utilisation.DeleteLabelValues(normalizeLabel(pool))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
