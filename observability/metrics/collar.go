package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CollarMetrics aggregates the daemon's ledger counters. Operations are
// labelled by engine and outcome so dashboards can break request volume and
// failure rates down per module.
type CollarMetrics struct {
	operations      *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	rollsExecuted   prometheus.Counter
	loansOpened     prometheus.Counter
	loansForeclosed prometheus.Counter
	swapDeviations  prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

var (
	collarOnce     sync.Once
	collarRegistry *CollarMetrics
)

// Collar returns the process-wide metrics registry, registering its
// collectors exactly once.
func Collar() *CollarMetrics {
	collarOnce.Do(func() {
		collarRegistry = &CollarMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "collar_operations_total",
				Help: "Count of ledger operations by engine and outcome.",
			}, []string{"engine", "outcome"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "collar_settlements_total",
				Help: "Count of position settlements by price source.",
			}, []string{"source"}),
			rollsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "collar_rolls_executed_total",
				Help: "Count of executed position rolls.",
			}),
			loansOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "collar_loans_opened_total",
				Help: "Count of opened loans.",
			}),
			loansForeclosed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "collar_loans_foreclosed_total",
				Help: "Count of foreclosed loans.",
			}),
			swapDeviations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "collar_swap_deviation_rejections_total",
				Help: "Count of swaps rejected by the oracle deviation guard.",
			}),
			requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "collar_rpc_duration_seconds",
				Help:    "RPC handler latency by route.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			collarRegistry.operations,
			collarRegistry.settlements,
			collarRegistry.rollsExecuted,
			collarRegistry.loansOpened,
			collarRegistry.loansForeclosed,
			collarRegistry.swapDeviations,
			collarRegistry.requestDuration,
		)
	})
	return collarRegistry
}

// ObserveOperation records one ledger operation outcome.
func (m *CollarMetrics) ObserveOperation(engine string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(engine, outcome).Inc()
}

// ObserveSettlement records a settlement and whether a historical observation
// backed it.
func (m *CollarMetrics) ObserveSettlement(historical bool) {
	if m == nil {
		return
	}
	source := "current"
	if historical {
		source = "historical"
	}
	m.settlements.WithLabelValues(source).Inc()
}

// ObserveRollExecuted records one executed roll.
func (m *CollarMetrics) ObserveRollExecuted() {
	if m == nil {
		return
	}
	m.rollsExecuted.Inc()
}

// ObserveLoanOpened records one opened loan.
func (m *CollarMetrics) ObserveLoanOpened() {
	if m == nil {
		return
	}
	m.loansOpened.Inc()
}

// ObserveLoanForeclosed records one foreclosure.
func (m *CollarMetrics) ObserveLoanForeclosed() {
	if m == nil {
		return
	}
	m.loansForeclosed.Inc()
}

// ObserveSwapDeviationRejected records one deviation-guard rejection.
func (m *CollarMetrics) ObserveSwapDeviationRejected() {
	if m == nil {
		return
	}
	m.swapDeviations.Inc()
}

// ObserveRequestDuration records one RPC handler latency sample.
func (m *CollarMetrics) ObserveRequestDuration(route string, seconds float64) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route).Observe(seconds)
}
