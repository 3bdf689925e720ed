package sink

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestTransientClassification(t *testing.T) {
	base := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient wrap", Transient(base), true},
		{"permanent wrap", Permanent(base), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, true},
		{"unclassified defaults transient", base, true},
		{"permanent survives extra wrapping", fmt.Errorf("index: %w", Permanent(base)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Transient(nil) != nil || Permanent(nil) != nil {
		t.Error("wrapping nil must return nil")
	}
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	base := errors.New("401 unauthorized")
	err := Permanent(base)

	if !errors.Is(err, ErrPermanent) {
		t.Error("expected errors.Is(err, ErrPermanent)")
	}
	if !errors.Is(err, base) {
		t.Error("expected the base error to remain reachable")
	}
}
