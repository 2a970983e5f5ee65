package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every provider in a [FallbackGroup] failed or
// was skipped by its open breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for the breaker placed in front of each
	// provider. Its Name is replaced by the provider name.
	CircuitBreaker CircuitBreakerConfig

	// Stop reports errors that end the walk immediately and are returned
	// unwrapped: trying another provider cannot change the outcome (silent
	// audio, a cancelled context). Nil means only cancellation stops.
	Stop func(error) bool

	// Report, if set, is called once per provider call with its outcome.
	// Calls refused by an open breaker are not reported.
	Report func(provider string, err error)
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds providers of one kind in priority order, each behind
// its own [CircuitBreaker]. A call goes to the first provider whose breaker
// admits it and moves down the list on failure.
//
// Providers must be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup creates a [FallbackGroup] whose first choice is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a provider after those already in the group.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cb := fg.cfg.CircuitBreaker
	cb.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: fallback, breaker: NewCircuitBreaker(cb)})
}

// Names returns the provider names in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.members))
	for i, m := range fg.members {
		names[i] = m.name
	}
	return names
}

// Execute calls fn with each provider in turn until one succeeds. When all
// fail the result wraps [ErrAllFailed] and the last error.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := Call(fg, func(v T) (struct{}, error) { return struct{}{}, fn(v) })
	return err
}

// Call is [FallbackGroup.Execute] for calls that produce a value.
func Call[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for _, m := range fg.members {
		var out R
		err := m.breaker.Execute(func() error {
			var callErr error
			out, callErr = fn(m.value)
			if fg.cfg.Report != nil {
				fg.cfg.Report(m.name, callErr)
			}
			return callErr
		})
		switch {
		case err == nil:
			return out, nil
		case fg.stops(err):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("provider skipped, circuit open", "provider", m.name)
		default:
			slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

func (fg *FallbackGroup[T]) stops(err error) bool {
	return errors.Is(err, context.Canceled) || (fg.cfg.Stop != nil && fg.cfg.Stop(err))
}
