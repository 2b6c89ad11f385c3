// Package pipeline wires one instrument's candle history to the evaluator
// and the dispatcher. A Pipeline is owned by exactly one feed task and is
// not safe for concurrent use.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"candle-alerts/internal/logger"
	"candle-alerts/internal/model"
	"candle-alerts/internal/notification"
	"candle-alerts/internal/ringbuf"
	"candle-alerts/internal/strategy"
)

// ErrDuplicateInstrument is returned when an instrument is registered twice.
var ErrDuplicateInstrument = errors.New("pipeline: instrument already registered")

// Sink receives alert intents.
type Sink interface {
	DispatchIntent(ctx context.Context, in model.Intent) notification.Outcome
}

// Observer receives pipeline activity for metrics.
type Observer interface {
	CandleIngested(feed, instrument string)
	Evaluated(instrument string, d time.Duration, trigger string)
	RingDropped(instrument string, evicted, stale uint64)
}

type nopObserver struct{}

func (nopObserver) CandleIngested(string, string)           {}
func (nopObserver) Evaluated(string, time.Duration, string) {}
func (nopObserver) RingDropped(string, uint64, uint64)      {}

// Pipeline holds one instrument's history ring and evaluates it.
type Pipeline struct {
	feed       string
	instrument string
	ring       *ringbuf.Ring
	eval       *strategy.Evaluator
	sink       Sink
	obs        Observer

	lastEvicted uint64
	lastStale   uint64
}

// New creates a pipeline for instrument. A nil observer disables metrics.
func New(feed, instrument string, capacity int, eval *strategy.Evaluator, sink Sink, obs Observer) *Pipeline {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Pipeline{
		feed:       feed,
		instrument: instrument,
		ring:       ringbuf.New(capacity),
		eval:       eval,
		sink:       sink,
		obs:        obs,
	}
}

// History returns a copy of the cached candles, oldest first.
func (p *Pipeline) History() []model.Candle { return p.ring.History() }

// Handle upserts one streaming update and evaluates every bar it newly
// closes. A sealed predecessor is evaluated before the update itself;
// repeated or stale closed updates are not evaluated again. It reports
// whether an intent was produced.
func (p *Pipeline) Handle(ctx context.Context, c model.Candle) bool {
	ch := p.ingest(c)
	produced := false
	if ch.Sealed {
		h := p.ring.History()
		last := len(h) - 1
		if h[last].IsClosed {
			// The update closed its own bar too; judge the sealed one alone.
			h = h[:last]
		}
		produced = p.evaluate(ctx, h)
	}
	if ch.Closed {
		produced = p.evaluate(ctx, p.ring.History()) || produced
	}
	return produced
}

// HandleBatch upserts a polled batch in order and evaluates once if asked.
func (p *Pipeline) HandleBatch(ctx context.Context, bars []model.Candle, evaluate bool) bool {
	for _, c := range bars {
		p.ingest(c)
	}
	if !evaluate {
		return false
	}
	return p.evaluate(ctx, p.ring.History())
}

// evaluate runs the evaluator over history and dispatches any intent. The
// trace id names the newest closed bar, the one being judged.
func (p *Pipeline) evaluate(ctx context.Context, history []model.Candle) bool {
	start := time.Now()
	intent, ok := p.eval.Evaluate(p.instrument, history)
	trigger := ""
	if ok {
		trigger = intent.Trigger
	}
	p.obs.Evaluated(p.instrument, time.Since(start), trigger)

	if !ok {
		return false
	}
	if bar, found := newestClosed(history); found {
		ctx = logger.WithTrace(ctx, p.instrument, bar.OpenTime)
	}
	slog.Debug("[pipeline] intent", append([]any{"trigger", intent.Trigger, "key", intent.DedupKey}, logger.Attrs(ctx)...)...)
	if p.sink != nil {
		p.sink.DispatchIntent(ctx, intent)
	}
	return true
}

func (p *Pipeline) ingest(c model.Candle) ringbuf.Change {
	ch := p.ring.Upsert(c)
	p.obs.CandleIngested(p.feed, p.instrument)

	evicted, stale := p.ring.Evicted(), p.ring.Stale()
	if evicted != p.lastEvicted || stale != p.lastStale {
		p.obs.RingDropped(p.instrument, evicted-p.lastEvicted, stale-p.lastStale)
		p.lastEvicted, p.lastStale = evicted, stale
	}
	return ch
}

func newestClosed(history []model.Candle) (model.Candle, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].IsClosed {
			return history[i], true
		}
	}
	return model.Candle{}, false
}

// Registry maps instrument symbols to their pipelines. It is built once at
// startup and handed to a single feed task.
type Registry struct {
	pipelines map[string]*Pipeline
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pipelines: make(map[string]*Pipeline)}
}

// Add registers p under its instrument.
func (r *Registry) Add(p *Pipeline) error {
	if _, ok := r.pipelines[p.instrument]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateInstrument, p.instrument)
	}
	r.pipelines[p.instrument] = p
	return nil
}

// Instruments returns the registered symbols, sorted.
func (r *Registry) Instruments() []string {
	out := make([]string, 0, len(r.pipelines))
	for k := range r.pipelines {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HandleCandle routes a streaming update to its pipeline. Updates for
// unregistered instruments are dropped.
func (r *Registry) HandleCandle(ctx context.Context, c model.Candle) {
	p, ok := r.pipelines[c.Instrument]
	if !ok {
		slog.Debug("[pipeline] update for unregistered instrument", "instrument", c.Instrument)
		return
	}
	p.Handle(ctx, c)
}

// HandleBatch routes a polled batch to its pipeline.
func (r *Registry) HandleBatch(ctx context.Context, instrument string, bars []model.Candle, evaluate bool) {
	p, ok := r.pipelines[instrument]
	if !ok {
		slog.Debug("[pipeline] batch for unregistered instrument", "instrument", instrument)
		return
	}
	p.HandleBatch(ctx, bars, evaluate)
}
