// Package crawler expands an endpoint spec into fetch contexts and crawls
// them in bounded-concurrency batches, yielding row chunks lazily.
package crawler

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/Sternrassler/elexon-crawler/pkg/client"
	"github.com/Sternrassler/elexon-crawler/pkg/endpoint"
	"github.com/Sternrassler/elexon-crawler/pkg/logging"
	"github.com/Sternrassler/elexon-crawler/pkg/request"
	"github.com/Sternrassler/elexon-crawler/pkg/rows"
	"github.com/Sternrassler/elexon-crawler/pkg/window"
)

var (
	crawlContexts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elexon_crawl_contexts_total",
		Help: "Fetch contexts processed by spec",
	}, []string{"spec"})

	crawlRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elexon_crawl_rows_total",
		Help: "Rows yielded by spec",
	}, []string{"spec"})

	crawlInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "elexon_crawl_inflight",
		Help: "Fetch tasks currently running",
	})
)

// Fetcher performs one resilient GET. *client.Transport implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, params map[string]string) (*http.Response, error)
}

// Config holds crawler configuration.
type Config struct {
	// BaseURL is joined with each spec's path template.
	BaseURL string

	// MaxConcurrency bounds the fetches in flight.
	MaxConcurrency int

	// BatchSize is the number of contexts per batch. Zero means 8 x MaxConcurrency.
	BatchSize int
}

// DefaultConfig returns the BMRS defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://data.elexon.co.uk/bmrs/api/v1",
		MaxConcurrency: 128,
	}
}

// Crawler turns specs into row chunks.
type Crawler struct {
	fetcher Fetcher
	cfg     Config
	logger  zerolog.Logger
}

// New creates a crawler on top of fetcher.
func New(fetcher Fetcher, cfg Config) (*Crawler, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("max_concurrency must be > 0 (got %d)", cfg.MaxConcurrency)
	}
	if cfg.BatchSize < 0 {
		return nil, fmt.Errorf("batch_size must be >= 0 (got %d)", cfg.BatchSize)
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 8 * cfg.MaxConcurrency
	}

	return &Crawler{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logging.NewLogger("crawler"),
	}, nil
}

// BatchSize returns the effective batch size.
func (c *Crawler) BatchSize() int {
	return c.cfg.BatchSize
}

// Pages crawls spec over the calendar days [start, end] and yields one chunk
// of rows per batch, in context order. Empty batches are not yielded. The
// first error cancels the rest of its batch, is yielded, and ends the
// sequence. Breaking out of the loop stops the crawl.
func (c *Crawler) Pages(ctx context.Context, spec endpoint.Spec, start, end time.Time, extra map[string]string) iter.Seq2[[]rows.Row, error] {
	return func(yield func([]rows.Row, error) bool) {
		logger := c.logger.With().
			Str("run_id", uuid.NewString()).
			Str("spec", spec.Name).
			Logger()

		contexts, err := window.Expand(start, end, spec.Strategy, spec.Dimensions)
		if err != nil {
			yield(nil, fmt.Errorf("expand %s: %w", spec.Name, err))
			return
		}

		logger.Info().
			Str("start", start.Format(window.DateLayout)).
			Str("end", end.Format(window.DateLayout)).
			Int("contexts", len(contexts)).
			Int("batch_size", c.cfg.BatchSize).
			Msg("Crawl started")

		began := time.Now()
		total := 0
		for lo := 0; lo < len(contexts); lo += c.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				yield(nil, fmt.Errorf("%w: %v", client.ErrContextCancelled, err))
				return
			}

			hi := min(lo+c.cfg.BatchSize, len(contexts))
			chunk, err := c.runBatch(ctx, spec, contexts[lo:hi], extra)
			if err != nil {
				logger.Error().Err(err).Int("batch_start", lo).Msg("Batch aborted")
				yield(nil, err)
				return
			}
			if len(chunk) == 0 {
				continue
			}

			total += len(chunk)
			crawlRows.WithLabelValues(spec.Name).Add(float64(len(chunk)))
			logger.Info().Int("rows", len(chunk)).Int("contexts_done", hi).Msg("Chunk ready")

			if !yield(chunk, nil) {
				logger.Info().Int("rows", total).Msg("Crawl stopped by consumer")
				return
			}
		}

		logger.Info().
			Int("rows", total).
			Dur("duration", time.Since(began)).
			Msg("Crawl complete")
	}
}

// runBatch fetches every context of batch and concatenates the rows in
// submission order.
func (c *Crawler) runBatch(ctx context.Context, spec endpoint.Spec, batch []window.Context, extra map[string]string) ([]rows.Row, error) {
	results := make([][]rows.Row, len(batch))

	p := pool.New().
		WithMaxGoroutines(c.cfg.MaxConcurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for i, fc := range batch {
		p.Go(func(ctx context.Context) error {
			crawlInflight.Inc()
			defer crawlInflight.Dec()

			out, err := c.fetchContext(ctx, spec, fc, extra)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	var n int
	for _, r := range results {
		n += len(r)
	}
	chunk := make([]rows.Row, 0, n)
	for _, r := range results {
		chunk = append(chunk, r...)
	}
	return chunk, nil
}

// fetchContext fetches one context and runs the row pipeline on the result.
func (c *Crawler) fetchContext(ctx context.Context, spec endpoint.Spec, fc window.Context, extra map[string]string) ([]rows.Row, error) {
	crawlContexts.WithLabelValues(spec.Name).Inc()

	rawURL, params, err := request.Build(c.cfg.BaseURL, spec.Request, fc, extra)
	if err != nil {
		return nil, err
	}

	resp, err := c.fetcher.Fetch(ctx, rawURL, params)
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %w", spec.Name, fc.Kind(), fc.Day(), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Debug().Str("url", rawURL).Int("status", resp.StatusCode).Msg("No data")
		return nil, nil
	case http.StatusOK:
	default:
		return nil, client.NewStatusError(resp, rawURL, params)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	payload, err := rows.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", rawURL, err)
	}

	items := rows.Extract(payload, spec.ItemsPath)
	items = rows.Enrich(items, fc, spec.Enricher)
	return rows.Apply(items, fc, spec.Filter), nil
}
