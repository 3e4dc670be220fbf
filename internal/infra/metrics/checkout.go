package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		checkoutsTotal,
		returnsTotal,
	)
}

var (
	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Checkout session initiations by outcome (initiated/gateway_error).",
		},
		[]string{"outcome"},
	)

	returnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_returns_total",
			Help: "Payment return page outcomes (verified/degraded/lost/tenant_not_found).",
		},
		[]string{"outcome"},
	)
)

func IncCheckout(outcome string) {
	checkoutsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncReturn(outcome string) {
	returnsTotal.WithLabelValues(norm(outcome)).Inc()
}
