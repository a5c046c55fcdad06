// Package retry wraps fallible operations with bounded retry, exponential
// backoff and optional jitter. Retryability is decided by the policy's
// predicate; by default the error category classification from the errors
// package is used.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/soundvault/wavegen/internal/errors"
)

// jitterSpread is the symmetric jitter applied to computed delays when
// enabled, matching a ±10% window.
const jitterSpread = 0.2

// Policy is the immutable retry configuration for one dependency class.
type Policy struct {
	MaxAttempts  int             // total attempts including the first (>= 1)
	InitialDelay time.Duration   // delay before the first retry (> 0)
	Multiplier   float64         // backoff multiplier per attempt (>= 1)
	MaxDelay     time.Duration   // cap for the computed delay, 0 means no cap
	Jitter       bool            // randomize the delay within ±10%
	RetryIf      func(error) bool // nil means errors.IsRetryable
}

// ExhaustedError is returned once a policy's attempts are used up. It
// carries the attempt count and wraps the last underlying failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Operation is a fallible unit of work re-invoked on each attempt. The
// operation is responsible for being idempotent under retry.
type Operation func(ctx context.Context) error

// Do executes op under the policy. A success returns immediately with no
// delay incurred. A retryable failure sleeps for the backoff delay and
// retries; a non-retryable failure propagates without consuming further
// attempts. Context cancellation aborts the inter-attempt sleep.
func Do(ctx context.Context, policy Policy, op Operation) error {
	if policy.MaxAttempts < 1 {
		return errors.Newf("retry policy max attempts must be at least 1, got %d", policy.MaxAttempts).
			Component("retry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	retryIf := policy.RetryIf
	if retryIf == nil {
		retryIf = errors.IsRetryable
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(policy.delayFor(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryIf(lastErr) {
			return lastErr
		}
	}

	return &ExhaustedError{Attempts: policy.MaxAttempts, Err: lastErr}
}

// Delay exposes the backoff schedule so callers that manage their own
// scheduling (the task queue re-enqueues rather than sleeping) can share
// the same curve.
func (p Policy) Delay(n int) time.Duration {
	return p.delayFor(n)
}

// delayFor computes the backoff delay after the n-th failed attempt
// (0-indexed): min(InitialDelay * Multiplier^n, MaxDelay), with optional
// symmetric jitter. Deterministic when jitter is disabled.
func (p Policy) delayFor(n int) time.Duration {
	backoff := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(n))

	if p.MaxDelay > 0 && backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	if p.Jitter {
		// ±10% around the computed delay to avoid synchronized retry storms
		factor := 1 - jitterSpread/2 + jitterSpread*rand.Float64()
		backoff *= factor
	}

	return time.Duration(backoff)
}
