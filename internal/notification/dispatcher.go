package notification

import (
	"context"
	"log/slog"
	"time"

	"candle-alerts/internal/logger"
	"candle-alerts/internal/model"
)

// Outcome is the result of a single Dispatch call.
type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
	OutcomeDryRun     Outcome = "dry_run"
)

// Record describes one dispatch attempt for journaling.
type Record struct {
	Key     string
	Title   string
	Body    string
	Outcome Outcome
	Error   string
	At      time.Time
}

// Recorder persists dispatch records. Errors are logged and otherwise ignored.
type Recorder interface {
	RecordAlert(ctx context.Context, rec Record) error
}

// Dispatcher sends alerts through a Notifier, suppressing any dedup key that
// was sent within the cooldown window. Dispatch never returns an error:
// delivery failures are logged and reported through the hooks.
//
// A nil Notifier puts the dispatcher in degraded mode. Cooldown accounting
// still happens, but alerts are only written to the log.
type Dispatcher struct {
	notifier Notifier
	cooldown CooldownStore
	now      func() time.Time

	Recorder  Recorder
	OnOutcome func(key string, outcome Outcome)
}

// NewDispatcher creates a dispatcher. A nil cooldown uses an in-process
// cooldown with a zero window (no suppression).
func NewDispatcher(notifier Notifier, cooldown CooldownStore) *Dispatcher {
	if cooldown == nil {
		cooldown = NewMemoryCooldown(0)
	}
	return &Dispatcher{
		notifier: notifier,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Degraded reports whether no notifier is configured.
func (d *Dispatcher) Degraded() bool { return d.notifier == nil }

// Dispatch sends title/body under key unless key is cooling down. The
// cooldown slot is claimed before sending, so a failed send still consumes
// the window.
func (d *Dispatcher) Dispatch(ctx context.Context, title, body, key string) Outcome {
	return d.dispatch(ctx, Alert{Level: AlertInfo, Title: title, Message: body, Key: key})
}

// DispatchIntent dispatches an evaluator intent, carrying its instrument,
// trigger and notes through to the notifier.
func (d *Dispatcher) DispatchIntent(ctx context.Context, in model.Intent) Outcome {
	return d.dispatch(ctx, Alert{
		Level:      AlertInfo,
		Title:      in.Title,
		Message:    in.Body,
		Key:        in.DedupKey,
		Instrument: in.Instrument,
		Trigger:    in.Trigger,
		Notes:      in.Notes,
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, alert Alert) Outcome {
	now := d.now()
	title, body, key := alert.Title, alert.Message, alert.Key

	allowed, err := d.cooldown.Allow(ctx, key, now)
	if err != nil {
		slog.Warn("[dispatch] cooldown check failed, sending anyway", "key", key, "error", err)
		allowed = true
	}
	if !allowed {
		slog.Debug("[dispatch] suppressed", "key", key)
		d.finish(ctx, Record{Key: key, Title: title, Body: body, Outcome: OutcomeSuppressed, At: now})
		return OutcomeSuppressed
	}

	if d.notifier == nil {
		slog.Info("[DRY] "+title, "key", key, "body", body)
		d.finish(ctx, Record{Key: key, Title: title, Body: body, Outcome: OutcomeDryRun, At: now})
		return OutcomeDryRun
	}

	if err := d.notifier.Send(ctx, alert); err != nil {
		slog.Error("[dispatch] send failed", append([]any{"key", key, "title", title, "error", err}, logger.Attrs(ctx)...)...)
		d.finish(ctx, Record{Key: key, Title: title, Body: body, Outcome: OutcomeFailed, Error: err.Error(), At: now})
		return OutcomeFailed
	}

	slog.Info("[dispatch] sent", append([]any{"key", key, "title", title}, logger.Attrs(ctx)...)...)
	d.finish(ctx, Record{Key: key, Title: title, Body: body, Outcome: OutcomeSent, At: now})
	return OutcomeSent
}

func (d *Dispatcher) finish(ctx context.Context, rec Record) {
	if d.OnOutcome != nil {
		d.OnOutcome(rec.Key, rec.Outcome)
	}
	if d.Recorder != nil {
		if err := d.Recorder.RecordAlert(ctx, rec); err != nil {
			slog.Warn("[dispatch] journal write failed", "key", rec.Key, "error", err)
		}
	}
}
