package ratelimit

import (
	"math"
	"time"
)

// State is a read-only snapshot of a Limiter.
type State struct {
	// Tokens currently available, 0 <= Tokens <= Capacity.
	Tokens float64 `json:"tokens"`

	// Capacity is the burst size of the bucket.
	Capacity float64 `json:"capacity"`

	// Rate is the refill rate in tokens per second. 0 means unlimited.
	Rate float64 `json:"rate"`

	// LastAcquire is when a token was last granted, or when the limiter
	// was created if none has been.
	LastAcquire time.Time `json:"last_acquire"`
}

// Empty reports whether the next Acquire will have to wait.
func (s State) Empty() bool {
	return s.Rate > 0 && s.Tokens < 1
}

// WaitEstimate returns how long a caller would wait for one token.
// Returns 0 if a token is available or limiting is disabled.
func (s State) WaitEstimate() time.Duration {
	if !s.Empty() {
		return 0
	}
	seconds := (1 - s.Tokens) / s.Rate
	return time.Duration(math.Ceil(seconds * float64(time.Second)))
}

// MinDuration returns the shortest wall time in which n back-to-back
// acquisitions can complete starting from a full bucket.
func (s State) MinDuration(n int) time.Duration {
	if s.Rate <= 0 || float64(n) <= s.Capacity {
		return 0
	}
	seconds := (float64(n) - s.Capacity) / s.Rate
	return time.Duration(seconds * float64(time.Second))
}
