package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for iterators, labelled by Config.Name.
var (
	pagerFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_fetches_total",
		Help: "Total page fetches by iterator and result",
	}, []string{"iterator", "result"}) // result: "ok", "error"

	pagerFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pager_fetch_duration_seconds",
		Help:    "Page fetch duration in seconds by iterator",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"iterator"})

	pagerItemsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_items_delivered_total",
		Help: "Total items handed out to consumers by iterator",
	}, []string{"iterator"})

	pagerPendingRequests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pager_pending_requests",
		Help: "Requests issued but not yet settled by iterator",
	}, []string{"iterator"})

	pagerExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_exhausted_total",
		Help: "Total iterators that reached the end of their source",
	}, []string{"iterator"})
)
