package circuitbreaker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

type State int32

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

var ErrOpen = errors.New("circuit breaker is open")

// Breaker is a thread-safe circuit breaker for calls that only report an error.
type Breaker struct {
	maxFailures      int64
	resetTimeout     time.Duration
	halfOpenRequests int64
	onStateChange    func(from, to State)
	isFailure        func(error) bool

	state           atomic.Int32
	failures        atomic.Int64
	lastFailureTime atomic.Int64 // Unix nano
	successCount    atomic.Int64
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithStateChange registers a hook called after every state transition.
func WithStateChange(fn func(from, to State)) Option {
	return func(cb *Breaker) {
		cb.onStateChange = fn
	}
}

// WithFailurePredicate decides which errors from fn count as failures.
// Errors it rejects are returned to the caller without being recorded.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *Breaker) {
		cb.isFailure = fn
	}
}

// New creates a breaker that opens after maxFailures consecutive failures
// and probes again once resetTimeout has passed.
func New(maxFailures int, resetTimeout time.Duration, opts ...Option) *Breaker {
	cb := &Breaker{
		maxFailures:      int64(maxFailures),
		resetTimeout:     resetTimeout,
		halfOpenRequests: 1,
		isFailure:        func(err error) bool { return err != nil },
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.state.Store(int32(StateClosed))
	return cb
}

// State returns the current state.
func (cb *Breaker) State() State {
	return State(cb.state.Load())
}

// Execute runs fn unless the circuit is open. Errors returned by fn count
// as failures unless the failure predicate rejects them.
func (cb *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.canExecute() {
		return ErrOpen
	}

	err := fn(ctx)
	if err != nil && !cb.isFailure(err) {
		return err
	}
	cb.recordResult(err)
	return err
}

func (cb *Breaker) canExecute() bool {
	switch cb.State() {
	case StateClosed:
		return true
	case StateOpen:
		lastFailure := cb.lastFailureTime.Load()
		if time.Now().UnixNano() > lastFailure+cb.resetTimeout.Nanoseconds() {
			if cb.transition(StateOpen, StateHalfOpen) {
				cb.successCount.Store(0)
			}
			return true
		}
		return false
	case StateHalfOpen:
		return cb.successCount.Load() < cb.halfOpenRequests
	default:
		return false
	}
}

func (cb *Breaker) recordResult(err error) {
	current := cb.State()

	if err != nil {
		newFailures := cb.failures.Add(1)
		cb.lastFailureTime.Store(time.Now().UnixNano())
		if current == StateHalfOpen || (current == StateClosed && newFailures >= cb.maxFailures) {
			cb.transition(current, StateOpen)
		}
		return
	}

	if current == StateHalfOpen {
		if cb.successCount.Add(1) >= cb.halfOpenRequests && cb.transition(StateHalfOpen, StateClosed) {
			cb.failures.Store(0)
		}
		return
	}
	cb.failures.Store(0)
}

func (cb *Breaker) transition(from, to State) bool {
	if !cb.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
	return true
}
