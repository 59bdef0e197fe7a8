package allocation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var allocationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "otp_relay",
		Name:      "allocations_total",
		Help:      "Total number of allocation requests, by outcome.",
	},
	[]string{"outcome"}, // "success", "upstream_error", "parse_error"
)
