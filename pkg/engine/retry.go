package engine

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryPolicy describes how a single action is retried on retryable failures.
// Policies are attached explicitly to actions with Retrying; an action
// without a policy runs exactly once.
type RetryPolicy struct {
	// MaxAttempts is the total number of executions, including the first one.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`

	// MaxDelay caps the exponential growth of the delay. Zero means one minute.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`

	// Multiplier is the growth factor between attempts. Values below 1 are treated as 2.
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// Validate checks the policy for consistency.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must not be negative")
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max_delay (%s) must not be smaller than initial_delay (%s)", p.MaxDelay, p.InitialDelay)
	}
	return nil
}

// defaultMaxDelay caps backoff for policies that leave MaxDelay unset.
const defaultMaxDelay = time.Minute

// Backoff returns the delay to wait after the given failed attempt (1-based).
// Throttled errors wait twice as long. The result never exceeds MaxDelay.
func (p RetryPolicy) Backoff(attempt int, err error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}

	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if IsThrottled(err) {
		delay *= 2
	}

	limit := float64(p.MaxDelay)
	if p.MaxDelay <= 0 {
		limit = float64(defaultMaxDelay)
	}
	if delay > limit {
		return time.Duration(limit)
	}
	return time.Duration(delay)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
