package preparse

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtugraph_preparse_hits_total",
		Help: "Query texts served from the preparsed document cache",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtugraph_preparse_misses_total",
		Help: "Query texts parsed and validated",
	})

	validationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtugraph_preparse_validation_failures_total",
		Help: "Requests whose document failed validation",
	})

	dispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virtugraph_dispatch_failures_total",
		Help: "Requests with at least one failed callable, by surface and error kind",
	}, []string{"surface", "kind"})
)
