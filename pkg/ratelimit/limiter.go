// Package ratelimit implements the token bucket that admits every outbound
// API request. A single Limiter is shared by all fetches of a crawl.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Prometheus metrics for token admission.
var (
	acquiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elexon_ratelimit_acquired_total",
		Help: "Total number of rate limit tokens consumed",
	})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "elexon_ratelimit_wait_seconds",
		Help:    "Time callers spent waiting for a rate limit token",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// Limiter is a token bucket admitting Rate operations per second on average
// with bursts up to Capacity.
type Limiter struct {
	bucket   *rate.Limiter
	rate     float64
	capacity int

	mu         sync.Mutex
	lastAcquire time.Time
}

// New creates a limiter for ratePerSec tokens per second. A capacity of 0
// defaults to max(1, ratePerSec). Tokens are granted whole, so a fractional
// capacity is rounded up to the next integer burst: a rate of 2.5 admits a
// burst of 3. A non-positive rate disables limiting.
func New(ratePerSec float64, capacity float64) *Limiter {
	if capacity <= 0 {
		capacity = math.Max(1, ratePerSec)
	}
	burst := int(math.Ceil(capacity))

	limit := rate.Limit(ratePerSec)
	if ratePerSec <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		bucket:     rate.NewLimiter(limit, burst),
		rate:       ratePerSec,
		capacity:   burst,
		lastAcquire: time.Now(),
	}
}

// Acquire blocks until one token is available and consumes it.
// It returns an error if ctx is done before the token can be granted.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	now := time.Now()
	l.mu.Lock()
	l.lastAcquire = now
	l.mu.Unlock()

	acquiredTotal.Inc()
	waitSeconds.Observe(now.Sub(start).Seconds())
	return nil
}

// State returns a point-in-time view of the bucket.
func (l *Limiter) State() State {
	l.mu.Lock()
	last := l.lastAcquire
	l.mu.Unlock()

	tokens := l.bucket.Tokens()
	if tokens < 0 {
		// Outstanding reservations drive the bucket negative; report empty.
		tokens = 0
	}
	return State{
		Tokens:     math.Min(tokens, float64(l.capacity)),
		Capacity:   float64(l.capacity),
		Rate:       l.rate,
		LastAcquire: last,
	}
}
