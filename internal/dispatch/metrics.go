package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virtugraph_callable_total",
		Help: "Callables invoked, by source and result",
	}, []string{"source", "result"})

	callableDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "virtugraph_callable_duration_seconds",
		Help:    "Callable latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	memoHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtugraph_memo_hits_total",
		Help: "Callable results served from the memo",
	})
)
