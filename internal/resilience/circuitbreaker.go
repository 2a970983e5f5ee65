// Package resilience provides circuit breaker and provider failover primitives
// for the transcription and responder backends.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops Friday from hammering a backend that keeps failing. [FallbackGroup]
// puts one breaker in front of each provider of a kind so that a failing
// primary is bypassed in favour of the next healthy fallback.
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

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

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
	// Name labels the protected provider in logs and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed in the half-open
	// state; that many successes close the breaker. Default: 3.
	HalfOpenMax int

	// IsFailure classifies errors returned by the protected call. Errors for
	// which it returns false are outcomes rather than faults (a transcriber
	// hearing only silence) and count as successes. Nil means every non-nil
	// error is a failure.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every state change, outside the
	// breaker's lock.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now. Tests use it to step past ResetTimeout.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	probes       int
	probeSuccess int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with their defaults.
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
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. In the half-open state at most
// HalfOpenMax probe calls are let through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	callErr := fn()

	cb.mu.Lock()
	var change func()
	if callErr != nil && cb.countsAsFailure(callErr) {
		change = cb.onFailure(probe)
	} else {
		change = cb.onSuccess(probe)
	}
	cb.mu.Unlock()
	change()

	return callErr
}

// admit decides whether a call may proceed and reports whether it is a
// half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	change := noChange
	defer func() {
		cb.mu.Unlock()
		change()
	}()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		change = cb.moveTo(StateHalfOpen)
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

func (cb *CircuitBreaker) countsAsFailure(err error) bool {
	return cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err)
}

// onFailure must be called with cb.mu held. The returned func must be
// called after unlocking.
func (cb *CircuitBreaker) onFailure(probe bool) func() {
	switch {
	case probe && cb.state == StateHalfOpen:
		return cb.moveTo(StateOpen)
	case cb.state == StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			return cb.moveTo(StateOpen)
		}
	}
	return noChange
}

// onSuccess must be called with cb.mu held. The returned func must be
// called after unlocking.
func (cb *CircuitBreaker) onSuccess(probe bool) func() {
	switch {
	case probe && cb.state == StateHalfOpen:
		cb.probeSuccess++
		if cb.probeSuccess >= cb.cfg.HalfOpenMax {
			return cb.moveTo(StateClosed)
		}
	case cb.state == StateClosed:
		cb.failures = 0
	}
	return noChange
}

// moveTo switches state and resets the counters of the new state. It must be
// called with cb.mu held and returns the notification to run once the lock
// is released.
func (cb *CircuitBreaker) moveTo(to State) func() {
	from := cb.state
	if from == to {
		return noChange
	}
	cb.state = to
	switch to {
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
	case StateHalfOpen:
		cb.probes, cb.probeSuccess = 0, 0
	case StateClosed:
		cb.failures, cb.probes, cb.probeSuccess = 0, 0, 0
	}

	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		"provider", cb.cfg.Name, "from", from.String(), "to", to.String())

	hook := cb.cfg.OnStateChange
	if hook == nil {
		return noChange
	}
	name := cb.cfg.Name
	return func() { hook(name, from, to) }
}

func noChange() {}

// State returns the current [State] of the breaker. An open breaker whose
// reset timeout has elapsed reports [StateHalfOpen]; the transition itself
// happens on the next [CircuitBreaker.Execute].
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
	change := cb.moveTo(StateClosed)
	cb.failures, cb.probes, cb.probeSuccess = 0, 0, 0
	cb.mu.Unlock()
	change()
}
