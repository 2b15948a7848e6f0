// Command elexon-dl crawls the Elexon BMRS Insights API into local tables.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/elexon-crawler/pkg/cache"
	"github.com/Sternrassler/elexon-crawler/pkg/client"
	"github.com/Sternrassler/elexon-crawler/pkg/config"
	"github.com/Sternrassler/elexon-crawler/pkg/crawler"
	"github.com/Sternrassler/elexon-crawler/pkg/endpoint"
	"github.com/Sternrassler/elexon-crawler/pkg/logging"
	"github.com/Sternrassler/elexon-crawler/pkg/progress"
	"github.com/Sternrassler/elexon-crawler/pkg/store"
	"github.com/Sternrassler/elexon-crawler/pkg/window"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(os.Stdout, os.Stderr, endpoint.Elexon()).ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err, os.Stderr))
}

// exitError ends the process with code. An empty message prints nothing.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// BadParameterError reports malformed command-line input.
type BadParameterError struct {
	Msg string
}

func (e *BadParameterError) Error() string { return "invalid value: " + e.Msg }

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.msg != "" {
			fmt.Fprintln(stderr, "Error:", exit.msg)
		}
		return exit.code
	}
	fmt.Fprintln(stderr, "Error:", err)
	var bad *BadParameterError
	if errors.As(err, &bad) {
		return 2
	}
	return 1
}

// app carries what every command needs once configuration is loaded.
type app struct {
	stdout   io.Writer
	stderr   io.Writer
	registry *endpoint.Registry
	cfg      config.Config
	logger   zerolog.Logger
}

func newRootCmd(stdout, stderr io.Writer, registry *endpoint.Registry) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, registry: registry}

	cmd := &cobra.Command{
		Use:           "elexon-dl",
		Short:         "Download Elexon BMRS data into local tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logCfg := cfg.Logging()
			logCfg.Output = a.stderr
			logging.Setup(logCfg)

			a.cfg = cfg
			a.logger = logging.NewLogger("cli")
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.AddCommand(a.newCrawlCmd(), a.newHealthCmd(), a.newSpecsCmd())
	return cmd
}

type crawlOptions struct {
	spec        string
	startDate   string
	endDate     string
	outputDir   string
	format      string
	progress    bool
	interval    time.Duration
	metricsAddr string
	batchSize   int
}

func (a *app) newCrawlCmd() *cobra.Command {
	var opts crawlOptions

	cmd := &cobra.Command{
		Use:   "crawl [key=value...]",
		Short: "Crawl one spec over a date range",
		Long: `Crawl expands the spec over every calendar day (Europe/London) from
--start-date to --end-date inclusive and upserts the rows into
<output-dir>/<table>.<format>. Extra key=value arguments are sent as query
parameters and override the spec's own.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCrawl(cmd.Context(), opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.spec, "spec", "", "spec name (see the specs command)")
	f.StringVar(&opts.startDate, "start-date", "", "first day, YYYY-MM-DD")
	f.StringVar(&opts.endDate, "end-date", "", "last day, YYYY-MM-DD")
	f.StringVar(&opts.outputDir, "output-dir", "data", "output directory")
	f.StringVar(&opts.format, "format", string(store.JSONLines), "jsonl|csv|parquet")
	f.BoolVar(&opts.progress, "progress", false, "print a live progress table")
	f.DurationVar(&opts.interval, "progress-interval", progress.DefaultInterval, "progress table period")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.IntVar(&opts.batchSize, "batch-size", 0, "contexts per batch (0 = 8 x max concurrency)")
	_ = cmd.MarkFlagRequired("spec")
	_ = cmd.MarkFlagRequired("start-date")
	_ = cmd.MarkFlagRequired("end-date")

	return cmd
}

func (a *app) runCrawl(ctx context.Context, opts crawlOptions, args []string) error {
	spec, err := a.registry.Lookup(opts.spec)
	if err != nil {
		return &BadParameterError{Msg: fmt.Sprintf("unknown spec %q, available: %s", opts.spec, strings.Join(a.registry.Names(), ", "))}
	}
	start, err := window.ParseDate(opts.startDate)
	if err != nil {
		return &BadParameterError{Msg: err.Error()}
	}
	end, err := window.ParseDate(opts.endDate)
	if err != nil {
		return &BadParameterError{Msg: err.Error()}
	}
	if end.Before(start) {
		return &BadParameterError{Msg: fmt.Sprintf("end date %s is before start date %s", opts.endDate, opts.startDate)}
	}
	format, err := store.ParseFormat(opts.format)
	if err != nil {
		return &BadParameterError{Msg: err.Error()}
	}
	extra, err := parseParams(args)
	if err != nil {
		return err
	}

	out, err := store.New(opts.outputDir, format)
	if err != nil {
		return err
	}

	transport, closeTransport, err := newTransport(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer closeTransport()

	c, err := crawler.New(transport, crawler.Config{
		BaseURL:        a.cfg.BaseURL,
		MaxConcurrency: a.cfg.MaxConcurrency,
		BatchSize:      opts.batchSize,
	})
	if err != nil {
		return err
	}

	if opts.metricsAddr != "" {
		shutdown := serveMetrics(opts.metricsAddr, a.logger)
		defer shutdown()
	}

	if opts.progress {
		reporter := progress.New(transport.Metrics(), a.stdout, opts.interval)
		reporter.Start(ctx)
		defer reporter.Stop()
	}

	total := 0
	for chunk, err := range c.Pages(ctx, spec, start, end, extra) {
		if err != nil {
			return fmt.Errorf("crawl %s: %w", spec.Name, err)
		}
		if err := out.Upsert(spec.Table, chunk, spec.PrimaryKeys); err != nil {
			return fmt.Errorf("store %s: %w", spec.Table, err)
		}
		total += len(chunk)
	}

	fmt.Fprintf(a.stdout, "Wrote %d rows to %s (%s.%s)\n", total, opts.outputDir, spec.Table, format)
	return nil
}

func (a *app) newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Query the API health endpoint",
		Long:  "Health prints the health payload as JSON and exits 1 when the API is not healthy.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			cfg.CacheEnabled = false
			transport, closeTransport, err := newTransport(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeTransport()

			res, err := transport.Health(cmd.Context())
			if err != nil {
				return err
			}
			text, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("encode health: %w", err)
			}
			fmt.Fprintln(a.stdout, string(text))

			if ok, _ := res["_ok"].(bool); !ok {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func (a *app) newSpecsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "specs",
		Short: "List the available specs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range a.registry.Names() {
				spec, err := a.registry.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%-28s %-24s %s\n", spec.Name, spec.Strategy.Kind, spec.Table)
			}
			return nil
		},
	}
}

// parseParams turns key=value arguments into query parameters. Later
// arguments win.
func parseParams(args []string) (map[string]string, error) {
	extra := make(map[string]string, len(args))
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, &BadParameterError{Msg: fmt.Sprintf("bad param format: %s, expected key=value", kv)}
		}
		extra[k] = v
	}
	return extra, nil
}

// newTransport builds the transport and its cache backend from cfg. The
// returned func releases the backend.
func newTransport(ctx context.Context, cfg config.Config) (*client.Transport, func(), error) {
	tcfg := client.DefaultConfig()
	tcfg.UserAgent = cfg.UserAgent
	tcfg.Timeout = cfg.Timeout
	tcfg.MaxRetries = cfg.MaxRetries
	tcfg.BackoffBase = cfg.BackoffBase
	tcfg.BackoffCap = cfg.BackoffCap
	tcfg.MaxConcurrency = cfg.MaxConcurrency
	tcfg.RatePerSec = cfg.RatePerSec
	tcfg.HealthURL = cfg.HealthURL

	release := func() {}
	if cfg.CacheEnabled {
		backend, closeBackend, err := newCacheBackend(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		tcfg.Cache = cache.NewManager(backend, cfg.CacheTTL)
		release = closeBackend
	}

	transport, err := client.New(tcfg)
	if err != nil {
		release()
		return nil, nil, err
	}
	return transport, func() {
		transport.Close()
		release()
	}, nil
}

func newCacheBackend(ctx context.Context, cfg config.Config) (cache.Backend, func(), error) {
	var (
		backend cache.Backend
		release = func() {}
	)

	switch cfg.CacheBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		backend = cache.NewRedisStore(rdb, cfg.CacheTTL)
		release = func() { rdb.Close() }
	default:
		disk, err := cache.NewDiskStore(cfg.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		backend = disk
	}

	if cfg.CacheMemoryEntries > 0 {
		tier, err := cache.NewMemoryTier(cfg.CacheMemoryEntries, backend)
		if err != nil {
			release()
			return nil, nil, err
		}
		backend = tier
	}
	return backend, release, nil
}

// serveMetrics exposes /metrics on addr until the returned func is called.
func serveMetrics(addr string, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
