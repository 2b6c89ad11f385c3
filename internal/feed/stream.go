package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// StreamConfig configures a streaming feed.
type StreamConfig struct {
	// Name labels logs and metrics, e.g. "Binance".
	Name string

	// URL of the WebSocket endpoint, e.g. "wss://stream.binance.com:9443/ws".
	URL string

	Instruments []string
	Interval    string

	// ReconnectDelay is the fixed delay before every reconnect attempt.
	// Defaults to 5 seconds if zero.
	ReconnectDelay time.Duration
}

func (c *StreamConfig) defaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.Interval == "" {
		c.Interval = "1m"
	}
	if c.Name == "" {
		c.Name = "stream"
	}
}

// Stream is a streaming feed driven by an explicit state machine:
//
//	Disconnected -> Connecting -> Connected -> Disconnected (transport error)
//	Connected -> Closing -> Disconnected (shutdown)
//
// Transport errors never escape Run; they lead to a reconnect after the
// fixed delay.
type Stream struct {
	cfg     StreamConfig
	dialer  Dialer
	handler Handler

	mu    sync.Mutex
	state State

	// Optional hooks.
	OnTransition  func(from, to State)
	OnReconnect   func()
	OnDecodeError func(err error)
}

// NewStream creates a streaming feed. Returns an error if the URL is
// unparseable or no instruments are configured.
func NewStream(cfg StreamConfig, dialer Dialer, handler Handler) (*Stream, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("stream: parse url: %w", err)
	}
	if len(cfg.Instruments) == 0 {
		return nil, errors.New("stream: no instruments configured")
	}
	if dialer == nil {
		dialer = WSDialer{HandshakeTimeout: 10 * time.Second}
	}
	return &Stream{
		cfg:     cfg,
		dialer:  dialer,
		handler: handler,
		state:   StateDisconnected,
	}, nil
}

// Name returns the feed label.
func (s *Stream) Name() string { return s.cfg.Name }

// State returns the current connection state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from == to {
		return
	}
	slog.Debug("[stream] state", "feed", s.cfg.Name, "from", from.String(), "to", to.String())
	if s.OnTransition != nil {
		s.OnTransition(from, to)
	}
}

// Run connects and streams candles into the handler until ctx is cancelled.
// It always returns nil after shutdown.
func (s *Stream) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if attempt > 0 && s.OnReconnect != nil {
			s.OnReconnect()
		}
		attempt++

		err := s.runOnce(ctx)
		if err == nil {
			return nil
		}

		slog.Warn("[stream] disconnected, reconnecting",
			"feed", s.cfg.Name, "error", err, "delay", s.cfg.ReconnectDelay.String())

		timer := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// runOnce makes one connection attempt and reads until a transport error or
// shutdown. A nil return means ctx was cancelled.
func (s *Stream) runOnce(ctx context.Context) error {
	s.setState(StateConnecting)

	conn, err := s.dialer.Dial(ctx, s.cfg.URL)
	if err != nil {
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	s.setState(StateConnected)
	slog.Info("[stream] connected", "feed", s.cfg.Name, "url", s.cfg.URL, "instruments", len(s.cfg.Instruments))

	// Closing the conn on shutdown unblocks the in-flight read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	err = s.readLoop(ctx, conn)
	if ctx.Err() != nil {
		s.setState(StateClosing)
		conn.Close()
		s.setState(StateDisconnected)
		slog.Info("[stream] closed", "feed", s.cfg.Name)
		return nil
	}

	conn.Close()
	s.setState(StateDisconnected)
	return err
}

func (s *Stream) readLoop(ctx context.Context, conn Conn) error {
	sub, err := SubscribePayload(s.cfg.Instruments, s.cfg.Interval, 1)
	if err != nil {
		return fmt.Errorf("build subscription: %w", err)
	}
	if err := conn.WriteMessage(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		c, err := ParseKline(raw)
		if errors.Is(err, ErrNotKline) {
			slog.Debug("[stream] ignoring non-kline payload", "feed", s.cfg.Name, "raw", truncate(raw, 200))
			continue
		}
		if err != nil {
			slog.Warn("[stream] decode error", "feed", s.cfg.Name, "error", err, "raw", truncate(raw, 200))
			if s.OnDecodeError != nil {
				s.OnDecodeError(err)
			}
			continue
		}

		if s.handler != nil {
			s.handler(ctx, c)
		}
	}
}

func truncate(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}
