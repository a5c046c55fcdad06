// Package circuitbreaker implements a per-dependency fault tolerance state
// machine. A breaker fails fast once a downstream dependency is observed to
// be persistently failing and probes for recovery after a timeout.
package circuitbreaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soundvault/wavegen/internal/errors"
	"github.com/soundvault/wavegen/internal/logging"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed means the circuit is closed and calls are flowing normally.
	StateClosed State = iota
	// StateHalfOpen means the circuit is testing if the dependency has recovered.
	StateHalfOpen
	// StateOpen means the circuit is open and calls are rejected immediately.
	StateOpen
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a call is rejected because the breaker is open.
// It is a distinct condition, not a downstream failure: callers must treat
// it as a fast failure and must not feed it back into the breaker.
var ErrOpen = errors.Newf("circuit breaker is open").
	Component("circuitbreaker").
	Category(errors.CategoryCircuitBreaker).
	Build()

// Config holds configuration for a circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long to wait before transitioning from open to
	// half-open. The transition is lazy, checked on the next call attempt.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of consecutive successes in half-open
	// state required to close the circuit.
	SuccessThreshold int
}

// DefaultConfig returns the default circuit breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Validate checks if the circuit breaker configuration is valid.
func (c Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1, got %d", c.FailureThreshold)
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("recovery timeout must be positive, got %v", c.RecoveryTimeout)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("success threshold must be at least 1, got %d", c.SuccessThreshold)
	}
	return nil
}

// Stats contains cumulative statistics about a circuit breaker.
type Stats struct {
	State               State
	TotalCalls          int64
	SuccessfulCalls     int64
	FailedCalls         int64
	RejectedCalls       int64
	ConsecutiveFailures int
	LastStateChange     time.Time
}

// Breaker tracks call outcomes against one named dependency and applies
// the closed/open/half-open transition rules.
type Breaker struct {
	name   string
	config Config
	logger *slog.Logger

	mu              sync.Mutex
	state           State
	failures        int // consecutive failures
	successes       int // consecutive successes, used only in half-open
	lastStateChange time.Time

	totalCalls      int64
	successfulCalls int64
	failedCalls     int64
	rejectedCalls   int64
}

// New creates a breaker for the named dependency. An invalid config is
// logged and used as provided, to allow tests with very short timeouts.
func New(name string, config Config) *Breaker {
	b := &Breaker{
		name:            name,
		config:          config,
		logger:          logging.ForService("circuitbreaker").With("dependency", name),
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
	if err := config.Validate(); err != nil {
		b.logger.Warn("circuit breaker config validation failed, proceeding with provided config",
			"error", err)
	}
	return b
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Call executes fn if the breaker allows it and records the outcome.
// While open and before the recovery timeout has elapsed it returns ErrOpen
// without invoking fn. Once the timeout has elapsed the breaker moves to
// half-open and lets the call through as a probe.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	b.afterCall(err)
	return err
}

// beforeCall checks whether the breaker allows the call and counts it.
func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		b.totalCalls++
		return nil

	case StateOpen:
		if time.Since(b.lastStateChange) >= b.config.RecoveryTimeout {
			b.setState(StateHalfOpen)
			b.totalCalls++
			return nil
		}
		b.rejectedCalls++
		return ErrOpen

	default:
		b.rejectedCalls++
		return ErrOpen
	}
}

// afterCall records the result of a call and applies transitions.
func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.onSuccess()
		return
	}

	// Client-side cancellation is not a dependency failure.
	if errors.Is(err, context.Canceled) {
		return
	}

	b.onFailure()
}

func (b *Breaker) onSuccess() {
	b.successfulCalls++
	b.failures = 0

	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.setState(StateClosed)
		}
	}
}

func (b *Breaker) onFailure() {
	b.failedCalls++
	b.failures++

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		// Any failure while probing reopens immediately.
		b.setState(StateOpen)
	case StateOpen:
	}
}

// setState transitions the breaker. Opening resets the success counter,
// closing resets the failure counter. Must be called with the lock held.
func (b *Breaker) setState(newState State) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState
	b.lastStateChange = time.Now()

	switch newState {
	case StateOpen:
		b.successes = 0
	case StateClosed:
		b.failures = 0
		b.successes = 0
	case StateHalfOpen:
		b.successes = 0
	}

	b.logger.Info("circuit breaker state transition",
		"old_state", oldState.String(),
		"new_state", newState.String(),
		"consecutive_failures", b.failures)
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset administratively returns the breaker to closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.successes = 0
	b.setState(StateClosed)
}

// GetStats returns a snapshot of the breaker's cumulative statistics.
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		State:               b.state,
		TotalCalls:          b.totalCalls,
		SuccessfulCalls:     b.successfulCalls,
		FailedCalls:         b.failedCalls,
		RejectedCalls:       b.rejectedCalls,
		ConsecutiveFailures: b.failures,
		LastStateChange:     b.lastStateChange,
	}
}
