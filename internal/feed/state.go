// Package feed connects to market-data sources and turns their payloads into
// normalized candles. Streaming feeds run an explicit connection state
// machine over an injected transport; polling feeds fetch recent bars on a
// fixed interval, one loop per instrument.
package feed

import (
	"context"

	"candle-alerts/internal/model"
)

// State is the connection state of a streaming feed.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Handler receives one normalized candle update. Calls for a feed are made
// sequentially in arrival order.
type Handler func(ctx context.Context, c model.Candle)

// BatchHandler receives the bars of one poll cycle for an instrument, oldest
// first. evaluate is true when the newest closed bar has not been evaluated
// before.
type BatchHandler func(ctx context.Context, instrument string, bars []model.Candle, evaluate bool)
