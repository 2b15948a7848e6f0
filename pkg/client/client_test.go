package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/elexon-crawler/internal/testutil"
	"github.com/Sternrassler/elexon-crawler/pkg/cache"
)

// testConfig returns a fast configuration for tests.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffCap = 5 * time.Millisecond
	cfg.RatePerSec = 0
	cfg.MaxConcurrency = 4
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestTransport(t *testing.T, cfg Config) *Transport {
	t.Helper()
	tr, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func newDiskCache(t *testing.T) *cache.Manager {
	t.Helper()
	store, err := cache.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}
	return cache.NewManager(store, 0)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*Config)
		errorMsg string
	}{
		{
			name:   "valid config",
			modify: func(*Config) {},
		},
		{
			name:     "empty user agent",
			modify:   func(c *Config) { c.UserAgent = "" },
			errorMsg: "user-agent is required",
		},
		{
			name:     "zero concurrency",
			modify:   func(c *Config) { c.MaxConcurrency = 0 },
			errorMsg: "max_concurrency must be > 0 (got 0)",
		},
		{
			name:     "negative retries",
			modify:   func(c *Config) { c.MaxRetries = -1 },
			errorMsg: "max_retries must be >= 0 (got -1)",
		},
		{
			name:     "zero timeout",
			modify:   func(c *Config) { c.Timeout = 0 },
			errorMsg: "timeout must be > 0 (got 0s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)

			_, err := New(cfg)
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected error but got nil")
			}
			if err.Error() != tt.errorMsg {
				t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestFetch_Success(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/demand", testutil.NewJSONResponse(`{"data":[{"v":1}]}`))

	cfg := testConfig()
	cfg.UserAgent = "elexon-test/1.0"
	tr := newTestTransport(t, cfg)

	resp, err := tr.Fetch(context.Background(), mock.URL()+"/demand", map[string]string{"settlementDate": "2024-01-01"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := readBody(t, resp); got != `{"data":[{"v":1}]}` {
		t.Errorf("body = %s", got)
	}

	if got := mock.LastRequestHeader().Get("User-Agent"); got != "elexon-test/1.0" {
		t.Errorf("User-Agent = %q, want elexon-test/1.0", got)
	}
	queries := mock.Queries()
	if len(queries) != 1 || queries[0].Get("settlementDate") != "2024-01-01" {
		t.Errorf("queries = %v, want settlementDate param", queries)
	}
	if got := tr.Metrics().Snapshot().Count; got != 1 {
		t.Errorf("metrics count = %d, want 1", got)
	}
}

func TestFetch_RetriesTransientStatus(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		sequence   []testutil.MockResponse
		wantStatus int
		wantCalls  int
	}{
		{
			name:       "recovers after 503",
			maxRetries: 3,
			sequence: []testutil.MockResponse{
				testutil.NewStatusResponse(http.StatusServiceUnavailable),
				testutil.NewJSONResponse(`{"data":[]}`),
			},
			wantStatus: http.StatusOK,
			wantCalls:  2,
		},
		{
			name:       "recovers after 429 and 502",
			maxRetries: 3,
			sequence: []testutil.MockResponse{
				testutil.NewRateLimitResponse(),
				testutil.NewStatusResponse(http.StatusBadGateway),
				testutil.NewJSONResponse(`{"data":[]}`),
			},
			wantStatus: http.StatusOK,
			wantCalls:  3,
		},
		{
			name:       "budget exhausted returns last response",
			maxRetries: 2,
			sequence: []testutil.MockResponse{
				testutil.NewServerErrorResponse(),
			},
			wantStatus: http.StatusInternalServerError,
			wantCalls:  3,
		},
		{
			name:       "no retries configured",
			maxRetries: 0,
			sequence: []testutil.MockResponse{
				testutil.NewStatusResponse(http.StatusGatewayTimeout),
			},
			wantStatus: http.StatusGatewayTimeout,
			wantCalls:  1,
		},
		{
			name:       "client error not retried",
			maxRetries: 3,
			sequence: []testutil.MockResponse{
				testutil.NewStatusResponse(http.StatusBadRequest),
			},
			wantStatus: http.StatusBadRequest,
			wantCalls:  1,
		},
		{
			name:       "not found not retried",
			maxRetries: 3,
			sequence: []testutil.MockResponse{
				testutil.NewStatusResponse(http.StatusNotFound),
			},
			wantStatus: http.StatusNotFound,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAPI()
			defer mock.Close()
			mock.SetSequence("/x", tt.sequence...)

			cfg := testConfig()
			cfg.MaxRetries = tt.maxRetries
			tr := newTestTransport(t, cfg)

			resp, err := tr.Fetch(context.Background(), mock.URL()+"/x", nil)
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := mock.RequestCount(); got != tt.wantCalls {
				t.Errorf("RequestCount = %d, want %d", got, tt.wantCalls)
			}
			// One latency sample per Fetch, never per attempt.
			if got := tr.Metrics().Snapshot().Count; got != 1 {
				t.Errorf("metrics count = %d, want 1", got)
			}
		})
	}
}

func TestFetch_CacheHitSkipsNetwork(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/x", testutil.NewJSONResponse(`{"data":[1,2,3]}`))

	cfg := testConfig()
	cfg.Cache = newDiskCache(t)
	tr := newTestTransport(t, cfg)
	ctx := context.Background()
	params := map[string]string{"date": "2024-01-01"}

	first, err := tr.Fetch(ctx, mock.URL()+"/x", params)
	if err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	if cache.IsCached(first) {
		t.Error("first response should come from the network")
	}
	firstBody := readBody(t, first)

	second, err := tr.Fetch(ctx, mock.URL()+"/x", params)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if !cache.IsCached(second) {
		t.Error("second response should come from the cache")
	}
	if got := readBody(t, second); got != firstBody {
		t.Errorf("cached body = %s, want %s", got, firstBody)
	}

	if got := mock.RequestCount(); got != 1 {
		t.Errorf("RequestCount = %d, want 1", got)
	}

	snap := tr.Metrics().Snapshot()
	if snap.Count != 2 {
		t.Errorf("metrics count = %d, want 2 (cache hit is sampled)", snap.Count)
	}
}

func TestFetch_CacheHitTakesNoToken(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	cfg := testConfig()
	cfg.Cache = newDiskCache(t)
	cfg.RatePerSec = 0.001
	cfg.RateCapacity = 1
	tr := newTestTransport(t, cfg)
	ctx := context.Background()

	resp, err := tr.Fetch(ctx, mock.URL()+"/x", nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	resp.Body.Close()

	// The bucket is now empty; a second network call would block for minutes.
	ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	resp, err = tr.Fetch(ctx, mock.URL()+"/x", nil)
	if err != nil {
		t.Fatalf("cached Fetch() error = %v", err)
	}
	resp.Body.Close()
	if !cache.IsCached(resp) {
		t.Error("expected cached response")
	}
}

func TestFetch_OnlySuccessIsCached(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetSequence("/x",
		testutil.NewStatusResponse(http.StatusNotFound),
		testutil.NewJSONResponse(`{"data":[]}`),
	)

	cfg := testConfig()
	cfg.Cache = newDiskCache(t)
	tr := newTestTransport(t, cfg)
	ctx := context.Background()

	for i, want := range []int{http.StatusNotFound, http.StatusOK} {
		resp, err := tr.Fetch(ctx, mock.URL()+"/x", nil)
		if err != nil {
			t.Fatalf("Fetch() #%d error = %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("Fetch() #%d status = %d, want %d", i, resp.StatusCode, want)
		}
	}
	if got := mock.RequestCount(); got != 2 {
		t.Errorf("RequestCount = %d, want 2", got)
	}
}

func TestFetch_CacheWriteFailureIgnored(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	cfg := testConfig()
	cfg.Cache = cache.NewManager(brokenBackend{}, 0)
	tr := newTestTransport(t, cfg)

	resp, err := tr.Fetch(context.Background(), mock.URL()+"/x", nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := readBody(t, resp); got != `{"data": []}` {
		t.Errorf("body = %s, want the live body", got)
	}
}

func TestFetch_NetworkErrorNotRetried(t *testing.T) {
	mock := testutil.NewMockAPI()
	url := mock.URL() + "/x"
	mock.Close()

	tr := newTestTransport(t, testConfig())

	_, err := tr.Fetch(context.Background(), url, nil)
	if err == nil {
		t.Fatal("expected network error")
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Errorf("network error should not be reported as retry exhaustion: %v", err)
	}
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/x", testutil.NewServerErrorResponse())

	cfg := testConfig()
	cfg.BackoffBase = 10 * time.Second
	cfg.BackoffCap = 10 * time.Second
	tr := newTestTransport(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tr.Fetch(ctx, mock.URL()+"/x", nil)
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Fetch() error = %v, want ErrContextCancelled", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fetch() took %v, should return promptly on cancel", elapsed)
	}
}

// brokenBackend rejects every operation.
type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) (*cache.Entry, error) {
	return nil, cache.ErrCacheMiss
}

func (brokenBackend) Set(context.Context, string, *cache.Entry) error {
	return errors.New("read-only filesystem")
}

func (brokenBackend) Name() string { return "broken" }
