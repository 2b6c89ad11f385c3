package notification

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := NewBreaker(&recordingNotifier{}, 3, 100*time.Millisecond)
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	errFail := errors.New("fail")
	inner := &recordingNotifier{err: errFail}
	b := NewBreaker(inner, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := b.Send(context.Background(), Alert{}); !errors.Is(err, errFail) {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after 3 failures, got %v", b.State())
	}

	if err := b.Send(context.Background(), Alert{}); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.count() != 3 {
		t.Errorf("inner calls = %d, want 3", inner.count())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	inner := &recordingNotifier{err: errors.New("fail")}
	b := NewBreaker(inner, 2, 10*time.Second)
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b.now = clock.now

	var transitions []BreakerState
	b.OnStateChange = func(_, to BreakerState) { transitions = append(transitions, to) }

	b.Send(context.Background(), Alert{})
	b.Send(context.Background(), Alert{})

	clock.set(time.Unix(1011, 0))
	inner.err = nil
	if err := b.Send(context.Background(), Alert{}); err != nil {
		t.Fatalf("trial send: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed after successful trial send, got %v", b.State())
	}

	want := []BreakerState{BreakerOpen, BreakerHalfOpen, BreakerClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	inner := &recordingNotifier{err: errors.New("fail")}
	b := NewBreaker(inner, 2, 10*time.Second)
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b.now = clock.now

	b.Send(context.Background(), Alert{})
	b.Send(context.Background(), Alert{})
	clock.set(time.Unix(1011, 0))
	b.Send(context.Background(), Alert{})

	if b.State() != BreakerOpen {
		t.Errorf("expected open after failed trial send, got %v", b.State())
	}
}

type gateNotifier struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateNotifier) Send(context.Context, Alert) error {
	g.entered <- struct{}{}
	<-g.release
	return nil
}

func TestBreaker_HalfOpenAdmitsOneSend(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("fail")}
	b := NewBreaker(failing, 1, 10*time.Second)
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b.now = clock.now
	b.Send(context.Background(), Alert{})
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	gate := &gateNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	b.inner = gate
	clock.set(time.Unix(1011, 0))

	done := make(chan error, 1)
	go func() { done <- b.Send(context.Background(), Alert{}) }()
	<-gate.entered

	// The trial send is in flight; everyone else is rejected.
	for i := 0; i < 3; i++ {
		if err := b.Send(context.Background(), Alert{}); !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("concurrent half-open send %d: expected ErrCircuitOpen, got %v", i, err)
		}
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("trial send: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}
