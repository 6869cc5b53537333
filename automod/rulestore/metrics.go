package rulestore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var persistErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_rulestore_persist_errors",
	Help: "Number of failed rule snapshot saves",
})

var persistDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "automod_rulestore_persist_duration_sec",
	Help:    "Duration of rule snapshot saves",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
})
