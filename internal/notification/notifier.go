// Package notification delivers alerts to external channels (Telegram,
// webhooks, logs) and gates them through a per-key cooldown so that
// concurrent producers cannot flood a channel with duplicates.
package notification

import (
	"context"
	"log/slog"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Instrument, Trigger and Notes
// are set for evaluator alerts and empty for housekeeping ones.
type Alert struct {
	Level      AlertLevel
	Title      string
	Message    string
	Key        string
	Instrument string
	Trigger    string
	Notes      []string
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	attrs := []any{
		slog.String("level", string(alert.Level)),
		slog.String("key", alert.Key),
		slog.String("message", alert.Message),
	}
	if alert.Instrument != "" {
		attrs = append(attrs, slog.String("instrument", alert.Instrument), slog.String("trigger", alert.Trigger))
	}
	n.logger.InfoContext(ctx, "[notify] "+alert.Title, attrs...)
	return nil
}

// MultiNotifier fans an alert out to several backends. It fails if any
// backend fails, after trying all of them.
type MultiNotifier []Notifier

func (m MultiNotifier) Send(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
