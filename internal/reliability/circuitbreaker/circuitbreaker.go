// Package circuitbreaker stops calling a dependency that keeps failing and
// lets a trial call through once a cool-down has passed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Settings configures a breaker. Zero thresholds default to 1.
type Settings struct {
	// Name identifies the guarded dependency in callbacks and metrics.
	Name string
	// FailureThreshold consecutive failures open a closed breaker.
	FailureThreshold int
	// SuccessThreshold consecutive successes close a half-open breaker.
	SuccessThreshold int
	// OpenTimeout is how long the breaker stays open before a trial call.
	OpenTimeout time.Duration
	// OnStateChange runs after every transition, outside the lock.
	OnStateChange func(name string, from, to State)
}

type CircuitBreaker struct {
	settings Settings
	now      func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

func New(s Settings) *CircuitBreaker {
	if s.FailureThreshold < 1 {
		s.FailureThreshold = 1
	}
	if s.SuccessThreshold < 1 {
		s.SuccessThreshold = 1
	}
	return &CircuitBreaker{settings: s, now: time.Now}
}

func (cb *CircuitBreaker) Name() string { return cb.settings.Name }

// Execute runs fn when the breaker allows it and records the outcome.
// Context cancellation is not counted as a dependency failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		return ErrOpen
	}
	err := fn(ctx)
	switch {
	case err == nil:
		cb.record(true)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		cb.record(false)
	}
	return err
}

// State reports the current state. An open breaker whose cool-down has
// elapsed still reads as open until the next call is attempted.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return true
	}
	if cb.now().Sub(cb.openedAt) <= cb.settings.OpenTimeout {
		cb.mu.Unlock()
		return false
	}
	from := cb.transitionLocked(StateHalfOpen)
	cb.mu.Unlock()
	cb.notify(from, StateHalfOpen)
	return true
}

func (cb *CircuitBreaker) record(ok bool) {
	cb.mu.Lock()
	from, to := cb.state, cb.state
	switch {
	case ok && cb.state == StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.settings.SuccessThreshold {
			to = StateClosed
		}
	case ok:
		cb.failures = 0
	case cb.state == StateHalfOpen:
		to = StateOpen
	case cb.state == StateClosed:
		cb.failures++
		if cb.failures >= cb.settings.FailureThreshold {
			to = StateOpen
		}
	}
	if to != from {
		cb.transitionLocked(to)
	}
	cb.mu.Unlock()

	if to != from {
		cb.notify(from, to)
	}
}

// transitionLocked switches state and resets the counters. It returns the
// previous state.
func (cb *CircuitBreaker) transitionLocked(to State) State {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	return from
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}
