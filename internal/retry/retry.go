// Package retry provides the single backoff policy every sink index path
// shares. Centralizing it keeps attempt counts and delays consistent instead
// of each adapter growing its own ad hoc loop.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the initial backoff interval; it doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the interval. Zero means 10x BaseDelay.
	MaxDelay time.Duration
}

// DefaultPolicy matches the configured ingestion defaults.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond}
}

// Permanent marks err non-retryable; Do returns it immediately.
// Re-exported so callers do not import the backoff library directly.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op under the policy. It stops early on success, on a Permanent
// error, or when ctx is done; otherwise it retries with exponential backoff
// up to MaxAttempts.
func (p Policy) Do(ctx context.Context, op func() error) error {
	maxDelay := p.MaxDelay
	if maxDelay == 0 {
		maxDelay = 10 * p.BaseDelay
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0 // deterministic schedule, simpler to reason about
	b.MaxElapsedTime = 0      // bounded by attempts and ctx, not wall clock

	attempts := uint64(1)
	if p.MaxAttempts > 1 {
		attempts = uint64(p.MaxAttempts)
	}

	// WithMaxRetries counts retries after the first attempt.
	wrapped := backoff.WithMaxRetries(backoff.WithContext(b, ctx), attempts-1)
	return backoff.Retry(op, wrapped)
}
