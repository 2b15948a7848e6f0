// Package metrics keeps in-process request statistics for progress reporting
// and documents the Prometheus metrics exported by the other packages.
// Prometheus metrics are defined in their respective packages (client, cache,
// ratelimit, crawler) to avoid circular dependencies.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the crawler.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// DefaultMaxSamples is the latency ring capacity used by NewHTTPMetrics.
const DefaultMaxSamples = 5000

// Snapshot is a point-in-time view of HTTPMetrics.
type Snapshot struct {
	// Count is the total number of recorded requests, including evicted samples.
	Count int64

	// AvgLatency is the mean over the retained samples.
	AvgLatency time.Duration

	// MaxLatency is the maximum over the retained samples.
	MaxLatency time.Duration
}

// HTTPMetrics counts requests and keeps the most recent latency samples in a
// fixed-capacity ring. Safe for concurrent use.
type HTTPMetrics struct {
	mu      sync.Mutex
	count   int64
	samples []time.Duration
	next    int
	full    bool
}

// NewHTTPMetrics creates a recorder retaining at most maxSamples latencies.
// A non-positive maxSamples uses DefaultMaxSamples.
func NewHTTPMetrics(maxSamples int) *HTTPMetrics {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &HTTPMetrics{samples: make([]time.Duration, maxSamples)}
}

// Record counts one request with the given latency. Once the ring is full
// the oldest sample is overwritten.
func (m *HTTPMetrics) Record(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.count++
	m.samples[m.next] = elapsed
	m.next++
	if m.next == len(m.samples) {
		m.next = 0
		m.full = true
	}
}

// Snapshot returns the current count with average and maximum latency.
// Both latencies are zero when nothing was recorded.
func (m *HTTPMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.full {
		n = len(m.samples)
	}

	snap := Snapshot{Count: m.count}
	if n == 0 {
		return snap
	}

	var sum time.Duration
	for _, s := range m.samples[:n] {
		sum += s
		if s > snap.MaxLatency {
			snap.MaxLatency = s
		}
	}
	snap.AvgLatency = sum / time.Duration(n)
	return snap
}

// Retained returns the number of samples currently held in the ring.
func (m *HTTPMetrics) Retained() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return len(m.samples)
	}
	return m.next
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - elexon_ratelimit_acquired_total (Counter): Tokens handed out by the limiter
//   - elexon_ratelimit_wait_seconds (Histogram): Time spent waiting for a token
//
// Cache Metrics (pkg/cache):
//   - elexon_cache_hits_total{layer} (Counter): Cache hits by layer (memory, disk, redis)
//   - elexon_cache_misses_total (Counter): Absent or expired entries
//   - elexon_cache_writes_bytes_total (Counter): Payload bytes written
//   - elexon_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - elexon_requests_total{status} (Counter): Terminal responses by HTTP status
//   - elexon_request_duration_seconds (Histogram): Latency of terminal responses
//   - elexon_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - elexon_retries_total{error_class} (Counter): Retry attempts by error class
//   - elexon_retry_backoff_seconds (Histogram): Backoff sleeps
//   - elexon_retry_exhausted_total (Counter): Requests that exhausted max retries
//
// Crawl Metrics (pkg/crawler):
//   - elexon_crawl_contexts_total{spec} (Counter): Fetch contexts processed
//   - elexon_crawl_rows_total{spec} (Counter): Rows yielded
//   - elexon_crawl_inflight (Gauge): Fetch tasks currently running
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(elexon_cache_hits_total[5m])) /
//   (sum(rate(elexon_cache_hits_total[5m])) + sum(rate(elexon_cache_misses_total[5m])))
//
//   # Retry Rate
//   rate(elexon_retries_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(elexon_request_duration_seconds_bucket[5m]))
