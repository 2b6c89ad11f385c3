package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"candle-alerts/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher returns per-instrument scripted responses; past the end of
// the script it repeats the last entry. A "STALL" instrument blocks until ctx
// is done.
type scriptedFetcher struct {
	mu      sync.Mutex
	scripts map[string][]fetchResult
	calls   map[string]int
}

type fetchResult struct {
	bars []model.Candle
	err  error
}

func (f *scriptedFetcher) Fetch(ctx context.Context, instrument string, _ int) ([]model.Candle, error) {
	if instrument == "STALL" {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls[instrument]
	f.calls[instrument]++
	script := f.scripts[instrument]
	if i >= len(script) {
		i = len(script) - 1
	}
	return script[i].bars, script[i].err
}

func (f *scriptedFetcher) callCount(instrument string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[instrument]
}

func bar(inst string, openTime int64, closed bool) model.Candle {
	return model.Candle{Instrument: inst, OpenTime: openTime, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 1, IsClosed: closed}
}

type batchCall struct {
	instrument string
	n          int
	evaluate   bool
}

func TestPoller_EvaluatesOnlyOnNewClosedBar(t *testing.T) {
	f := &scriptedFetcher{
		calls: map[string]int{},
		scripts: map[string][]fetchResult{
			"MXUSDT": {
				{bars: []model.Candle{bar("MXUSDT", 60_000, true), bar("MXUSDT", 120_000, false)}},
				{bars: []model.Candle{bar("MXUSDT", 60_000, true), bar("MXUSDT", 120_000, false)}},
				{bars: []model.Candle{bar("MXUSDT", 60_000, true), bar("MXUSDT", 120_000, true), bar("MXUSDT", 180_000, false)}},
			},
		},
	}

	var mu sync.Mutex
	var calls []batchCall
	handler := func(_ context.Context, inst string, bars []model.Candle, evaluate bool) {
		mu.Lock()
		calls = append(calls, batchCall{inst, len(bars), evaluate})
		mu.Unlock()
	}

	p, err := NewPoller(PollConfig{Instruments: []string{"MXUSDT"}, Interval: time.Millisecond}, f, handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.callCount("MXUSDT") >= 4 }, 2*time.Second, time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(calls), 4)
	assert.Equal(t, batchCall{"MXUSDT", 2, true}, calls[0])
	assert.Equal(t, batchCall{"MXUSDT", 2, false}, calls[1])
	assert.Equal(t, batchCall{"MXUSDT", 3, true}, calls[2])
	assert.Equal(t, batchCall{"MXUSDT", 3, false}, calls[3])
}

func TestPoller_ErrorsContinueAndInstrumentsAreIndependent(t *testing.T) {
	f := &scriptedFetcher{
		calls: map[string]int{},
		scripts: map[string][]fetchResult{
			"BTCUSDT": {
				{err: errors.New("502 bad gateway")},
				{err: errors.New("timeout")},
				{bars: []model.Candle{bar("BTCUSDT", 60_000, true)}},
			},
		},
	}

	var mu sync.Mutex
	handled := map[string]int{}
	handler := func(_ context.Context, inst string, _ []model.Candle, _ bool) {
		mu.Lock()
		handled[inst]++
		mu.Unlock()
	}

	p, err := NewPoller(PollConfig{
		Instruments: []string{"STALL", "BTCUSDT"},
		Interval:    time.Millisecond,
	}, f, handler)
	require.NoError(t, err)

	var fetchErrs sync.Map
	p.OnFetchError = func(inst string, err error) { fetchErrs.Store(inst+err.Error(), true) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled["BTCUSDT"] > 0
	}, 2*time.Second, time.Millisecond, "stalled instrument must not block others")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}

	var n int
	fetchErrs.Range(func(_, _ any) bool { n++; return true })
	assert.Equal(t, 2, n, "both scripted errors reported, stall cancellation not reported")
	assert.Zero(t, handled["STALL"])
}

func TestNewPoller_Validation(t *testing.T) {
	_, err := NewPoller(PollConfig{Instruments: []string{"X"}}, nil, nil)
	assert.Error(t, err)

	_, err = NewPoller(PollConfig{}, &scriptedFetcher{}, nil)
	assert.Error(t, err)

	p, err := NewPoller(PollConfig{Instruments: []string{"X"}}, &scriptedFetcher{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, p.cfg.Limit)
	assert.Equal(t, 30*time.Second, p.cfg.Interval)
}
