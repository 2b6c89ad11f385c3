package notification

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = 0 // sends pass through
	BreakerOpen     BreakerState = 1 // sends rejected until the reset timeout elapses
	BreakerHalfOpen BreakerState = 2 // a single trial send allowed through
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a send.
var ErrCircuitOpen = errors.New("notification: circuit breaker is open")

// Breaker wraps a Notifier. After maxFailures consecutive send failures it
// opens and rejects sends for resetTimeout, then lets one trial send
// through. Success closes it again; failure reopens it.
type Breaker struct {
	inner Notifier

	mu           sync.Mutex
	state        BreakerState
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time
	trialing     bool // a half-open trial send is in flight
	now          func() time.Time

	OnStateChange func(from, to BreakerState)
}

// NewBreaker wraps inner with a circuit breaker.
func NewBreaker(inner Notifier, maxFailures int, resetTimeout time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &Breaker{
		inner:        inner,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        BreakerClosed,
		now:          time.Now,
	}
}

// Send delivers through the wrapped notifier unless the breaker is open.
// While half-open only one send is in flight; concurrent callers get
// ErrCircuitOpen until it finishes.
func (b *Breaker) Send(ctx context.Context, alert Alert) error {
	b.mu.Lock()
	if b.state == BreakerOpen {
		if b.now().Sub(b.lastFailure) <= b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.transition(BreakerHalfOpen)
	}
	trial := b.state == BreakerHalfOpen
	if trial {
		if b.trialing {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.trialing = true
	}
	b.mu.Unlock()

	err := b.inner.Send(ctx, alert)

	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.trialing = false
	}

	if err != nil {
		b.failures++
		b.lastFailure = b.now()
		if trial || b.failures >= b.maxFailures {
			b.transition(BreakerOpen)
		}
		return err
	}

	if b.state != BreakerClosed {
		b.transition(BreakerClosed)
	}
	b.failures = 0
	return nil
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == BreakerClosed {
		b.failures = 0
	}
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}
