// Package resilience provides the circuit breaker that guards calls to the
// VOICEVOX engine.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open). While
// open it rejects calls with [ErrCircuitOpen] so that an unreachable engine
// fails admin requests fast instead of holding each one for the full HTTP
// timeout. [Call] adapts it to functions that return a value.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open or its half-open probe budget is spent.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successful probes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels log records and state change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker, and the number of probes admitted while half-open. Default: 3.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker. Errors it
	// rejects are returned to the caller unchanged but treated as successes,
	// which keeps client mistakes such as a malformed id from tripping the
	// breaker. Default: every error except context cancellation.
	IsFailure func(error) bool

	// OnStateChange, when set, is called after every transition. It runs
	// with the breaker locked and must not call back into it.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	probeWins int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Execute runs fn if the breaker admits the call and returns fn's error. A
// rejected call returns [ErrCircuitOpen] without running fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err != nil && cb.cfg.IsFailure(err))
	return err
}

// Call runs fn through cb and returns its result. On rejection it returns the
// zero value and [ErrCircuitOpen].
func Call[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var out T
	err := cb.Execute(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// admit decides whether a call may proceed and reports whether it is a
// half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) settle(probe, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case probe && failed:
		cb.trip()
	case probe:
		// A stale probe may finish after another probe re-opened the breaker.
		if cb.state != StateHalfOpen {
			return
		}
		cb.probeWins++
		if cb.probeWins >= cb.cfg.HalfOpenMax {
			cb.transition(StateClosed)
		}
	case failed:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			cb.trip()
		}
	default:
		cb.failures = 0
	}
}

// trip opens the breaker. Must be called with cb.mu held.
func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.cfg.Now()
	if cb.state != StateOpen {
		slog.Warn("circuit breaker opened", "breaker", cb.cfg.Name, "consecutive_failures", cb.failures)
		cb.transition(StateOpen)
	}
}

// transition moves to state `to` and resets the counters owned by it. Must
// be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	switch to {
	case StateClosed:
		cb.failures = 0
		slog.Info("circuit breaker closed", "breaker", cb.cfg.Name)
	case StateHalfOpen:
		cb.probes, cb.probeWins = 0, 0
		slog.Info("circuit breaker half-open", "breaker", cb.cfg.Name)
	}
	if cb.cfg.OnStateChange != nil && from != to {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transition(StateClosed)
	cb.probes, cb.probeWins = 0, 0
}
