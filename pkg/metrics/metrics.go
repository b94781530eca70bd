// Package metrics exposes the Prometheus registry used by the pager.
// Metrics are defined in their own packages (pagination, esi, pagecache,
// ratelimit) and registered through promauto on import.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by all packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Iterator Metrics (pkg/pagination), labelled by iterator name:
//   - pager_fetches_total{iterator, result} (Counter): Page fetches, result "ok" or "error"
//   - pager_fetch_duration_seconds{iterator} (Histogram): Page fetch latency
//   - pager_items_delivered_total{iterator} (Counter): Items handed to consumers
//   - pager_pending_requests{iterator} (Gauge): Requests issued but not settled
//   - pager_exhausted_total{iterator} (Counter): Sources that reached their end
//
// ESI Transport Metrics (pkg/esi):
//   - esi_page_requests_total{status} (Counter): Page requests by HTTP status
//   - esi_page_request_duration_seconds (Histogram): Page request latency
//   - esi_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - esi_retries_total{error_class} (Counter): Retry attempts
//   - esi_retry_backoff_seconds{error_class} (Histogram): Backoff before each retry
//   - esi_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Page Cache Metrics (pkg/pagecache):
//   - pager_cache_hits_total (Counter): Pages served from Redis
//   - pager_cache_misses_total (Counter): Pages fetched from the origin
//   - pager_cache_errors_total{operation} (Counter): Redis errors by operation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - esi_errors_remaining (Gauge): Errors remaining in the ESI error window
//   - esi_rate_limit_blocks_total (Counter): Requests blocked at the critical threshold
//
// Example Prometheus Queries:
//
//   # Page fetch failure rate per iterator
//   sum by (iterator) (rate(pager_fetches_total{result="error"}[5m]))
//
//   # Items per second
//   rate(pager_items_delivered_total[1m])
//
//   # Page cache hit rate
//   rate(pager_cache_hits_total[5m]) /
//   (rate(pager_cache_hits_total[5m]) + rate(pager_cache_misses_total[5m]))
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(pager_fetch_duration_seconds_bucket[5m]))
