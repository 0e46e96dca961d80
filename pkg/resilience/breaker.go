// Package resilience guards calls to optional dependencies.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is the position of a Breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets one trial call through.
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

// ErrOpen is returned without calling fn while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker opens after maxFailures consecutive failures and lets a single
// trial call through once cooldown has elapsed. A successful trial closes
// it, a failed one reopens it.
type Breaker struct {
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
	onChange    func(from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithStateChange registers a callback invoked on every transition.
// It runs outside the breaker lock.
func WithStateChange(fn func(from, to State)) BreakerOption {
	return func(b *Breaker) { b.onChange = fn }
}

// NewBreaker creates a closed breaker. maxFailures below 1 is treated as 1.
func NewBreaker(maxFailures int, cooldown time.Duration, opts ...BreakerOption) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	b := &Breaker{maxFailures: maxFailures, cooldown: cooldown, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Do calls fn unless the breaker is open and records its outcome.
func (b *Breaker) Do(fn func() error) error {
	if !b.acquire() {
		return ErrOpen
	}
	err := fn()
	b.record(err)
	return err
}

// State returns the current state. An open breaker whose cooldown has
// elapsed still reports open until the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.transition(func() State {
		b.failures = 0
		b.trial = false
		return StateClosed
	})
}

func (b *Breaker) acquire() bool {
	allowed := false
	b.transition(func() State {
		switch b.state {
		case StateClosed:
			allowed = true
		case StateOpen:
			if b.now().Sub(b.openedAt) >= b.cooldown {
				b.trial = true
				allowed = true
				return StateHalfOpen
			}
		case StateHalfOpen:
			// one trial at a time
			if !b.trial {
				b.trial = true
				allowed = true
			}
		}
		return b.state
	})
	return allowed
}

func (b *Breaker) record(err error) {
	b.transition(func() State {
		if err == nil {
			b.failures = 0
			b.trial = false
			return StateClosed
		}
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.trial = false
			b.openedAt = b.now()
			return StateOpen
		}
		return b.state
	})
}

// transition applies step under the lock and reports a state change.
func (b *Breaker) transition(step func() State) {
	b.mu.Lock()
	from := b.state
	b.state = step()
	to := b.state
	b.mu.Unlock()

	if from != to && b.onChange != nil {
		b.onChange(from, to)
	}
}
