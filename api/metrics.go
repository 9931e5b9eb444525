package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "featuretxn",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Bucketed histogram of HTTP request durations.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{"method", "route", "code"})

func init() {
	prometheus.MustRegister(requestDuration)
}
