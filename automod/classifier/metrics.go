package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classifierAPIDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "automod_classifier_api_duration_sec",
	Help: "Duration of AI text classifier API calls",
})

var classifierAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_classifier_api_count",
	Help: "Number of AI text classifier API calls, by HTTP status code",
}, []string{"status"})

var classifierCacheCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_classifier_cache_count",
	Help: "Classifier verdict cache lookups, by result",
}, []string{"result"})
