package client

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// retriableStatus lists the transient statuses worth another attempt.
var retriableStatus = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsRetriable reports whether status is transient.
func IsRetriable(status int) bool {
	return retriableStatus[status]
}

// newBackoff returns an exponential policy whose i-th value (0-indexed) lies
// in [0.5, 1.5] × min(cap, base·2^i).
func newBackoff(base, cap time.Duration) *backoff.ExponentialBackOff {
	initial := base
	if cap > 0 && initial > cap {
		initial = cap
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = cap
	b.Reset()
	return b
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
