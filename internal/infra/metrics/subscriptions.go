package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		optimisticWritesTotal,
		reconciledTotal,
	)
}

var (
	optimisticWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_optimistic_writes_total",
			Help: "Client-path speculative subscription writes (applied/superseded).",
		},
		[]string{"outcome"},
	)

	reconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_reconciled_total",
			Help: "Stale pending payments settled by the poller (completed/expired/still_open).",
		},
		[]string{"outcome"},
	)
)

func IncOptimisticWrite(outcome string) {
	optimisticWritesTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncReconciled(outcome string) {
	reconciledTotal.WithLabelValues(norm(outcome)).Inc()
}
