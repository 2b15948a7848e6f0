// Package progress prints a periodic table of request statistics while a
// crawl runs.
package progress

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/elexon-crawler/pkg/metrics"
)

// DefaultInterval is the reporting period used when none is given.
const DefaultInterval = 15 * time.Second

// Source provides the statistics to report. *metrics.HTTPMetrics implements it.
type Source interface {
	Snapshot() metrics.Snapshot
}

// Reporter writes one line per interval until stopped.
type Reporter struct {
	src      Source
	out      io.Writer
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a reporter. A non-positive interval means DefaultInterval.
func New(src Source, out io.Writer, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		src:      src,
		out:      out,
		interval: interval,
		now:      time.Now,
	}
}

// Header returns the table header and its rule.
func Header() string {
	h := fmt.Sprintf("%8s | %8s | %8s | %8s | %8s | %8s", "Time", "Reqs", "Avg Lat", "Max Lat", "Thr/sec", "Thr/min")
	return h + "\n" + strings.Repeat("-", 62)
}

// Line formats one table row for snap taken at now, elapsed after start.
// Latencies are in seconds.
func Line(now time.Time, elapsed time.Duration, snap metrics.Snapshot) string {
	secs := elapsed.Seconds()
	if secs <= 0 {
		secs = 1
	}
	rps := float64(snap.Count) / secs
	return fmt.Sprintf("%8s | %8d | %8.3f | %8.3f | %8.2f | %8.0f",
		now.Format("15:04:05"),
		snap.Count,
		snap.AvgLatency.Seconds(),
		snap.MaxLatency.Seconds(),
		rps,
		rps*60,
	)
}

// Start prints the header and begins reporting in the background. It is a
// no-op when the reporter is already running. The reporter stops when ctx
// ends or Stop is called.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	fmt.Fprintln(r.out, Header())
	go r.run(ctx, r.done)
}

// Stop ends reporting and waits for the background goroutine to exit.
func (r *Reporter) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Reporter) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	start := r.now()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := r.now()
			fmt.Fprintln(r.out, Line(now, now.Sub(start), r.src.Snapshot()))
		}
	}
}
