package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var callbacksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "otp_relay",
		Name:      "callbacks_processed_total",
		Help:      "Total number of OTP callbacks processed, by outcome.",
	},
	[]string{"outcome"}, // "forwarded", "escalated", "dropped", "missing_number"
)
