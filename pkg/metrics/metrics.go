package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	SwapsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swaprunner_swaps_total",
		Help: "The total number of swap attempts by direction and status",
	}, []string{"direction", "status"})

	SwapDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swaprunner_swap_duration_seconds",
		Help:    "End-to-end time per swap attempt",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s with 10 buckets doubling in size
	}, []string{"direction"})

	GasUsed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swaprunner_gas_used",
		Help:    "Gas used by mined swap transactions",
		Buckets: prometheus.ExponentialBuckets(21000, 2, 10), // Start at 21000 with 10 buckets doubling in size
	}, []string{"direction"})

	SwapErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swaprunner_errors_total",
		Help: "Total number of swap errors by kind",
	}, []string{"direction", "error_kind"})

	QuotesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swaprunner_quotes_total",
		Help: "The total number of quotes computed, split by rate freshness",
	}, []string{"source"})

	RateUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swaprunner_rate",
		Help: "Exchange rate used by the most recent quote",
	})

	ApprovalsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swaprunner_approvals_total",
		Help: "Approval checks by outcome",
	}, []string{"outcome"})

	SwapsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swaprunner_swaps_in_flight",
		Help: "Swaps currently being executed",
	})

	TrackingTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swaprunner_tracking_timeouts_total",
		Help: "Transactions still unresolved when the polling budget ran out",
	})
)
