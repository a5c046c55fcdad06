package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundvault/wavegen/internal/errors"
)

func retryableErr(msg string) error {
	return errors.Newf("%s", msg).Category(errors.CategoryNetwork).Build()
}

func fatalErr(msg string) error {
	return errors.Newf("%s", msg).Category(errors.CategoryValidation).Build()
}

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Millisecond,
	}
}

func TestDoSucceedsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	start := time.Now()
	err := Do(context.Background(), Policy{MaxAttempts: 3, InitialDelay: time.Hour, Multiplier: 2.0}, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second, "success must not incur any delay")
}

func TestDoInvokesExactlyMaxAttemptsThenExhausts(t *testing.T) {
	t.Parallel()

	const attempts = 4
	calls := 0
	err := Do(context.Background(), fastPolicy(attempts), func(ctx context.Context) error {
		calls++
		return retryableErr("still down")
	})

	assert.Equal(t, attempts, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, attempts, exhausted.Attempts)
	assert.Contains(t, exhausted.Err.Error(), "still down")
}

func TestDoFatalErrorPropagatesAfterSingleCall(t *testing.T) {
	t.Parallel()

	calls := 0
	wantErr := fatalErr("corrupt input")
	err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return wantErr
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, wantErr)

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted), "fatal failures must not be reported as exhaustion")
}

func TestDoEventualSuccessStopsRetrying(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return retryableErr("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoCustomPredicateOverridesDefault(t *testing.T) {
	t.Parallel()

	policy := fastPolicy(3)
	policy.RetryIf = func(error) bool { return false }

	calls := 0
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return retryableErr("would normally retry")
	})

	assert.Equal(t, 1, calls)
	assert.Error(t, err)
}

func TestDoContextCancellationAbortsSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Hour, Multiplier: 2.0}

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, policy, func(ctx context.Context) error {
			return retryableErr("fail then sleep forever")
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestDoRejectsInvalidPolicy(t *testing.T) {
	t.Parallel()

	err := Do(context.Background(), Policy{MaxAttempts: 0}, func(ctx context.Context) error { return nil })
	require.Error(t, err)

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, errors.CategoryConfiguration, ee.Category)
}

func TestDelayForExactWithoutJitter(t *testing.T) {
	t.Parallel()

	policy := Policy{
		MaxAttempts:  10,
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     2 * time.Second,
	}

	want := []time.Duration{
		100 * time.Millisecond, // attempt 0
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		2 * time.Second, // capped
		2 * time.Second, // stays capped
	}

	for n, expect := range want {
		assert.Equal(t, expect, policy.delayFor(n), "delay for attempt %d", n)
	}
}

func TestDelayForJitterStaysWithinBounds(t *testing.T) {
	t.Parallel()

	policy := Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
	}

	for i := 0; i < 100; i++ {
		d := policy.delayFor(0)
		assert.GreaterOrEqual(t, d, 90*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
	}
}

func TestPrebuiltPoliciesAreSane(t *testing.T) {
	t.Parallel()

	for name, p := range map[string]Policy{
		"catalog": CatalogPolicy(),
		"storage": StoragePolicy(),
		"http":    HTTPPolicy(),
	} {
		assert.GreaterOrEqual(t, p.MaxAttempts, 1, "%s max attempts", name)
		assert.Greater(t, p.InitialDelay, time.Duration(0), "%s initial delay", name)
		assert.GreaterOrEqual(t, p.Multiplier, 1.0, "%s multiplier", name)
		assert.GreaterOrEqual(t, p.MaxDelay, p.InitialDelay, "%s max delay", name)
	}
}
