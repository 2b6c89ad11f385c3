// Package supervisor runs long-lived tasks and restarts them when they fail.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Task is a long-lived unit of work. It should return nil once ctx is done.
type Task func(ctx context.Context) error

// Supervisor restarts a task after restartDelay whenever it returns an error
// or panics while ctx is still live. A task that returns nil is finished.
type Supervisor struct {
	ctx          context.Context
	restartDelay time.Duration
	wg           sync.WaitGroup

	OnRestart func(name string, err error)
}

// New creates a supervisor bound to ctx.
func New(ctx context.Context, restartDelay time.Duration) *Supervisor {
	if restartDelay <= 0 {
		restartDelay = time.Second
	}
	return &Supervisor{ctx: ctx, restartDelay: restartDelay}
}

// Go starts task under supervision.
func (s *Supervisor) Go(name string, task Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			err := s.runSafe(name, task)
			if s.ctx.Err() != nil {
				slog.Info("[supervisor] task stopped", "task", name)
				return
			}
			if err == nil {
				slog.Info("[supervisor] task finished", "task", name)
				return
			}

			slog.Error("[supervisor] task failed, restarting", "task", name, "error", err, "delay", s.restartDelay.String())
			if s.OnRestart != nil {
				s.OnRestart(name, err)
			}

			timer := time.NewTimer(s.restartDelay)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
}

// Wait blocks until every supervised task has exited.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) runSafe(name string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[supervisor] task panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return task(s.ctx)
}
