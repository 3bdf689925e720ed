package sink

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransient marks failures worth retrying: timeouts, rate limits,
	// temporary backend unavailability.
	ErrTransient = errors.New("transient sink error")

	// ErrPermanent marks failures retrying cannot fix: malformed payloads,
	// authentication failures. Surfaced in per-sink status as error.
	ErrPermanent = errors.New("permanent sink error")
)

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsTransient reports whether err should be retried. Context deadline and
// cancellation count as transient: the next attempt gets a fresh budget.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	if errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	// Unclassified errors default to transient so a misbehaving backend
	// gets the benefit of the retry budget rather than a hard failure.
	return true
}
