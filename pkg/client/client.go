// Package client provides the retrying BMRS transport with rate limiting,
// response caching, and latency metrics.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/elexon-crawler/pkg/cache"
	"github.com/Sternrassler/elexon-crawler/pkg/logging"
	"github.com/Sternrassler/elexon-crawler/pkg/metrics"
	"github.com/Sternrassler/elexon-crawler/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elexon_requests_total",
		Help: "Total terminal responses by HTTP status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "elexon_request_duration_seconds",
		Help:    "Latency of terminal responses in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elexon_errors_total",
		Help: "Total request errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elexon_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "elexon_retry_backoff_seconds",
		Help:    "Backoff sleep before a retry in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elexon_retry_exhausted_total",
		Help: "Total number of requests that exhausted their retry budget",
	})
)

// Config holds the transport configuration.
type Config struct {
	// User-Agent header sent with every request
	UserAgent string

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration

	// Retry
	MaxRetries  int           // Additional attempts after the first
	BackoffBase time.Duration // Sleep before the first retry (before jitter)
	BackoffCap  time.Duration // Upper bound of the un-jittered sleep

	// Concurrency and rate
	MaxConcurrency int     // Connection pool size
	RatePerSec     float64 // Token refill rate, <= 0 disables limiting
	RateCapacity   float64 // Bucket size, 0 => max(1, RatePerSec)

	// Cache is consulted before the network. Nil disables caching.
	Cache *cache.Manager

	// HealthURL is queried by Health
	HealthURL string
}

// DefaultConfig returns the default BMRS transport configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:      "elexon-dl/0.2",
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		BackoffBase:    500 * time.Millisecond,
		BackoffCap:     5 * time.Second,
		MaxConcurrency: 128,
		RatePerSec:     80,
		HealthURL:      "https://data.elexon.co.uk/bmrs/api/v1/health",
	}
}

// Transport fetches API resources once per call site, retrying transient
// failures. It is safe for concurrent use.
type Transport struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cache      *cache.Manager
	metrics    *metrics.HTTPMetrics
	config     Config
	logger     zerolog.Logger
}

// New creates a new transport.
func New(cfg Config) (*Transport, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("max_concurrency must be > 0 (got %d)", cfg.MaxConcurrency)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	pool := http.DefaultTransport.(*http.Transport).Clone()
	pool.MaxConnsPerHost = cfg.MaxConcurrency
	pool.MaxIdleConns = cfg.MaxConcurrency
	pool.MaxIdleConnsPerHost = cfg.MaxConcurrency

	return &Transport{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: pool,
		},
		limiter: ratelimit.New(cfg.RatePerSec, cfg.RateCapacity),
		cache:   cfg.Cache,
		metrics: metrics.NewHTTPMetrics(metrics.DefaultMaxSamples),
		config:  cfg,
		logger:  logging.NewLogger("transport"),
	}, nil
}

// Fetch GETs rawURL with params.
//
// A fresh cache entry is returned as a synthesized 200 without taking a
// rate-limit token. Otherwise one token is taken and the request is retried
// for transient statuses while the retry budget lasts; the last response is
// returned whatever its status. Only 200 responses are cached. Network
// errors are returned without retry.
func (t *Transport) Fetch(ctx context.Context, rawURL string, params map[string]string) (*http.Response, error) {
	key := cache.Key{URL: rawURL, Params: params}

	if t.cache != nil {
		entry, err := t.cache.Get(ctx, key)
		switch {
		case err == nil:
			t.metrics.Record(0)
			t.logger.Debug().
				Str("url", rawURL).
				Str("key", key.String()).
				Dur("age", entry.Age()).
				Msg("Serving cached response")
			return cache.EntryToResponse(entry), nil
		case !errors.Is(err, cache.ErrCacheMiss):
			t.logger.Warn().Err(err).Str("url", rawURL).Msg("Cache get error")
		}
	}

	resp, err := t.roundTrip(ctx, rawURL, params)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusOK && t.cache != nil {
		t.store(ctx, key, resp)
	}
	return resp, nil
}

// roundTrip performs the rate-limited, retried network exchange.
func (t *Transport) roundTrip(ctx context.Context, rawURL string, params map[string]string) (*http.Response, error) {
	reqURL, err := encodeURL(rawURL, params)
	if err != nil {
		return nil, err
	}

	if err := t.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}

	policy := newBackoff(t.config.BackoffBase, t.config.BackoffCap)

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", t.config.UserAgent)
		req.Header.Set("Accept", "application/json")

		started := time.Now()
		resp, err := t.httpClient.Do(req)
		elapsed := time.Since(started)

		// Handle network errors
		if err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			t.logger.Error().Err(err).Str("url", rawURL).Msg("HTTP request failed")
			return nil, fmt.Errorf("get %s: %w", rawURL, err)
		}

		if IsRetriable(resp.StatusCode) {
			class := ClassifyStatus(resp.StatusCode)
			errorsTotal.WithLabelValues(string(class)).Inc()

			if attempt < t.config.MaxRetries {
				drain(resp)

				delay := policy.NextBackOff()
				retriesTotal.WithLabelValues(string(class)).Inc()
				retryBackoffSeconds.Observe(delay.Seconds())

				t.logger.Warn().
					Str("url", rawURL).
					Int("status_code", resp.StatusCode).
					Int("attempt", attempt+1).
					Dur("backoff", delay).
					Msg("Retrying request after backoff")

				if err := sleepContext(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}

			retryExhaustedTotal.Inc()
			t.logger.Warn().
				Str("url", rawURL).
				Int("status_code", resp.StatusCode).
				Int("max_attempts", t.config.MaxRetries+1).
				Msg("Retry attempts exhausted")
		}

		t.metrics.Record(elapsed)
		requestDuration.Observe(elapsed.Seconds())
		requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		return resp, nil
	}
}

// store persists a 200 body. Failures are logged and otherwise ignored.
func (t *Transport) store(ctx context.Context, key cache.Key, resp *http.Response) {
	entry, err := cache.ResponseToEntry(resp, key)
	if err != nil {
		cache.CacheErrors.WithLabelValues("read").Inc()
		t.logger.Warn().Err(err).Str("url", key.URL).Msg("Failed to create cache entry")
		return
	}
	if err := t.cache.Set(ctx, key, entry); err != nil {
		t.logger.Warn().Err(err).Str("url", key.URL).Msg("Failed to cache response")
		return
	}
	t.logger.Debug().
		Str("url", key.URL).
		Str("key", key.String()).
		Int("bytes", len(entry.Data)).
		Msg("Cached response")
}

// Metrics returns the latency recorder shared by all fetches.
func (t *Transport) Metrics() *metrics.HTTPMetrics {
	return t.metrics
}

// Limiter returns the rate limiter shared by all fetches.
func (t *Transport) Limiter() *ratelimit.Limiter {
	return t.limiter
}

// Close releases idle connections.
func (t *Transport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (t *Transport) SetHTTPClient(client *http.Client) {
	t.httpClient = client
}

// encodeURL appends params to rawURL using standard query encoding.
func encodeURL(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if len(params) == 0 {
		return u.String(), nil
	}

	q := u.Query()
	for name, value := range params {
		q.Set(name, value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// drain discards the rest of a body so the connection can be reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
