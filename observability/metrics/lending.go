package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics exposes counters describing loan lifecycle activity.
type LendingMetrics struct {
	operations  *prometheus.CounterVec
	settlements *prometheus.CounterVec
	reentrancy  prometheus.Counter
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the lazily-initialised lending metrics registry.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operations_total",
				Help: "Count of loan lifecycle operations by entry point and outcome.",
			}, []string{"op", "outcome"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_settlements_total",
				Help: "Count of loan settlements by resolution path.",
			}, []string{"path"}),
			reentrancy: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_reentrant_calls_total",
				Help: "Number of rejected reentrant invocations.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.settlements,
			lendingRegistry.reentrancy,
		)
	})
	return lendingRegistry
}

// ObserveOperation records the outcome of a lifecycle entry point.
func (m *LendingMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// ObserveSettlement records a completed loan resolution by path
// (direct, yield, sale, default, refinance, renegotiation).
func (m *LendingMetrics) ObserveSettlement(path string) {
	if m == nil {
		return
	}
	if path == "" {
		path = "unknown"
	}
	m.settlements.WithLabelValues(path).Inc()
}

// ObserveReentrancyRejected counts a rejected reentrant call.
func (m *LendingMetrics) ObserveReentrancyRejected() {
	if m == nil {
		return
	}
	m.reentrancy.Inc()
}
