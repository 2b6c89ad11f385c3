package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"candle-alerts/internal/model"
)

// Fetcher returns the most recent bars for an instrument, oldest first.
type Fetcher interface {
	Fetch(ctx context.Context, instrument string, limit int) ([]model.Candle, error)
}

// PollConfig configures a polling feed.
type PollConfig struct {
	Name        string
	Instruments []string

	// Limit is the number of recent bars fetched per cycle. Defaults to 200.
	Limit int

	// Interval between cycles. Defaults to 30 seconds. Errors use the same
	// interval.
	Interval time.Duration
}

func (c *PollConfig) defaults() {
	if c.Limit <= 0 {
		c.Limit = 200
	}
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Name == "" {
		c.Name = "poll"
	}
}

// Poller polls each instrument in its own goroutine so a slow or failing
// instrument never delays the others.
type Poller struct {
	cfg     PollConfig
	fetcher Fetcher
	handler BatchHandler

	// Optional hooks.
	OnFetchError func(instrument string, err error)
	OnCycle      func(instrument string, bars int)
}

// NewPoller creates a polling feed.
func NewPoller(cfg PollConfig, fetcher Fetcher, handler BatchHandler) (*Poller, error) {
	cfg.defaults()
	if fetcher == nil {
		return nil, errors.New("poll: nil fetcher")
	}
	if len(cfg.Instruments) == 0 {
		return nil, errors.New("poll: no instruments configured")
	}
	return &Poller{cfg: cfg, fetcher: fetcher, handler: handler}, nil
}

// Name returns the feed label.
func (p *Poller) Name() string { return p.cfg.Name }

// Run polls every instrument until ctx is cancelled, then waits for all
// instrument loops to exit.
func (p *Poller) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, inst := range p.cfg.Instruments {
		wg.Add(1)
		go func(instrument string) {
			defer wg.Done()
			p.loop(ctx, instrument)
		}(inst)
	}
	wg.Wait()
	return nil
}

func (p *Poller) loop(ctx context.Context, instrument string) {
	slog.Info("[poll] started", "feed", p.cfg.Name, "instrument", instrument, "interval", p.cfg.Interval.String())

	var lastEvaluated int64
	for {
		if err := p.cycle(ctx, instrument, &lastEvaluated); err != nil && ctx.Err() == nil {
			slog.Warn("[poll] fetch failed", "feed", p.cfg.Name, "instrument", instrument, "error", err)
			if p.OnFetchError != nil {
				p.OnFetchError(instrument, err)
			}
		}

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) cycle(ctx context.Context, instrument string, lastEvaluated *int64) error {
	bars, err := p.fetcher.Fetch(ctx, instrument, p.cfg.Limit)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", instrument, err)
	}
	if p.OnCycle != nil {
		p.OnCycle(instrument, len(bars))
	}
	if len(bars) == 0 {
		return nil
	}

	newest := newestClosed(bars)
	evaluate := newest > *lastEvaluated
	if evaluate {
		*lastEvaluated = newest
	}

	if p.handler != nil {
		p.handler(ctx, instrument, bars, evaluate)
	}
	return nil
}

// newestClosed returns the open time of the newest closed bar, or 0.
func newestClosed(bars []model.Candle) int64 {
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].IsClosed {
			return bars[i].OpenTime
		}
	}
	return 0
}
