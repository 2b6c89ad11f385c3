// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context and carries an
// evaluation trace (instrument + candle open time) through context.Context
// so dispatch logs can be tied back to the candle that caused them.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
)

type ctxKey string

const (
	traceIDKey    ctxKey = "trace_id"
	instrumentKey ctxKey = "instrument"
)

// Init creates a JSON logger on stdout for service and installs it as the
// slog default.
func Init(service string, level slog.Level) *slog.Logger {
	logger := New(os.Stdout, service, level)
	slog.SetDefault(logger)
	return logger
}

// New creates a JSON logger writing to w without touching the default.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With(slog.String("service", service))
}

// WithTrace stores the instrument and a trace ID for the candle at
// openTimeMs in ctx.
func WithTrace(ctx context.Context, instrument string, openTimeMs int64) context.Context {
	ctx = context.WithValue(ctx, instrumentKey, instrument)
	return context.WithValue(ctx, traceIDKey, TraceIDFor(instrument, openTimeMs))
}

// TraceIDFor formats a trace ID as "{instrument}-{openTimeMs}".
func TraceIDFor(instrument string, openTimeMs int64) string {
	return instrument + "-" + strconv.FormatInt(openTimeMs, 10)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// Instrument extracts the instrument from context. Returns "" if not set.
func Instrument(ctx context.Context) string {
	if v, ok := ctx.Value(instrumentKey).(string); ok {
		return v
	}
	return ""
}

// Attrs returns slog key/value pairs for the trace in ctx, or nil.
// Usage: slog.Info("msg", logger.Attrs(ctx)...)
func Attrs(ctx context.Context) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("trace_id", tid), slog.String("instrument", Instrument(ctx))}
}
