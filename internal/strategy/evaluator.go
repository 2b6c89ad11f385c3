// Package strategy turns a closed-candle history into an alert decision.
//
// The Evaluator computes the indicator set on every closed candle, builds a
// list of human-readable notes and decides whether the state is worth a
// notification. It holds no state between calls.
package strategy

import (
	"fmt"
	"math"
	"strings"

	"candle-alerts/internal/indicator"
	"candle-alerts/internal/model"
	"candle-alerts/internal/session"
)

// Trigger names why an intent was produced.
const (
	TriggerSweep       = "sweep"
	TriggerEMADistance = "ema_distance"
)

// Config holds the evaluation thresholds.
type Config struct {
	MinBars              int
	RSIPeriod            int
	RSIOversold          float64
	RSIOverbought        float64
	EMASpan              int
	EMADistanceThreshold float64 // fraction of EMA, 0.001 = 0.1%
	VolLookback          int
	VolMultiplier        float64
	VWAPBandWindow       int
	EnableVWAPBandAlerts bool
	SweepLookback        int
	Session              session.Policy
}

// DefaultConfig mirrors config.Default().
func DefaultConfig() Config {
	return Config{
		MinBars:              30,
		RSIPeriod:            14,
		RSIOversold:          30,
		RSIOverbought:        70,
		EMASpan:              20,
		EMADistanceThreshold: 0.001,
		VolLookback:          60,
		VolMultiplier:        3.0,
		VWAPBandWindow:       50,
		EnableVWAPBandAlerts: true,
		SweepLookback:        20,
		Session:              session.Daily(),
	}
}

// Snapshot is the indicator state at the newest closed candle.
type Snapshot struct {
	Close       float64
	RSI         float64
	EMA         float64
	VWAP        float64
	Plus1       float64 // NaN when the band window is not full
	Minus1      float64
	Plus2       float64
	Minus2      float64
	HighSweep   bool
	LowSweep    bool
	VolumeRatio float64 // NaN when there is too little history
	VolumeSpike bool
}

// EMADistance is |close - ema| / |ema| with the denominator clamped.
func (s Snapshot) EMADistance() float64 {
	return indicator.SafeDiv(math.Abs(s.Close-s.EMA), math.Abs(s.EMA))
}

// Evaluator evaluates one feed's instruments. Safe for concurrent use.
type Evaluator struct {
	source string
	cfg    Config
}

// NewEvaluator creates an evaluator whose alerts are titled "<source> Scan".
func NewEvaluator(source string, cfg Config) *Evaluator {
	return &Evaluator{source: source, cfg: cfg}
}

// Compute derives the indicator snapshot for the newest closed candle.
// It returns false when the closed history is shorter than MinBars.
func (e *Evaluator) Compute(history []model.Candle) (Snapshot, bool) {
	closed := closedOnly(history)
	n := len(closed)
	if n == 0 || n < e.cfg.MinBars {
		return Snapshot{}, false
	}

	closes := model.Closes(closed)
	vwap := indicator.SessionVWAP(closed, e.cfg.Session.Resets(closed))
	bands := indicator.VWAPBands(closes, vwap, e.cfg.VWAPBandWindow)
	high, low := indicator.DetectSweep(closed, e.cfg.SweepLookback)
	ratio, spike := indicator.VolumeSpike(model.Volumes(closed), e.cfg.VolLookback, e.cfg.VolMultiplier)

	return Snapshot{
		Close:       closes[n-1],
		RSI:         indicator.Last(indicator.RSI(closes, e.cfg.RSIPeriod)),
		EMA:         indicator.Last(indicator.EMA(closes, e.cfg.EMASpan)),
		VWAP:        vwap[n-1],
		Plus1:       bands.Plus1[n-1],
		Minus1:      bands.Minus1[n-1],
		Plus2:       bands.Plus2[n-1],
		Minus2:      bands.Minus2[n-1],
		HighSweep:   high,
		LowSweep:    low,
		VolumeRatio: ratio,
		VolumeSpike: spike,
	}, true
}

// Notes renders the snapshot as a note list. The first notes are always
// present; the rest appear only when their condition holds.
func (e *Evaluator) Notes(s Snapshot) []string {
	notes := make([]string, 0, 8)

	if indicator.Ready(s.RSI) {
		notes = append(notes, fmt.Sprintf("RSI %.1f", s.RSI))
	}
	if s.Close > s.EMA {
		notes = append(notes, fmt.Sprintf("close > EMA%d", e.cfg.EMASpan))
	} else {
		notes = append(notes, fmt.Sprintf("close < EMA%d", e.cfg.EMASpan))
	}
	switch {
	case !indicator.Ready(s.VWAP):
		notes = append(notes, "VWAP n/a")
	case s.Close > s.VWAP:
		notes = append(notes, "above VWAP")
	default:
		notes = append(notes, "below VWAP")
	}

	if indicator.Ready(s.RSI) {
		if s.RSI <= e.cfg.RSIOversold {
			notes = append(notes, fmt.Sprintf("RSI %.1f <= %g", s.RSI, e.cfg.RSIOversold))
		}
		if s.RSI >= e.cfg.RSIOverbought {
			notes = append(notes, fmt.Sprintf("RSI %.1f >= %g", s.RSI, e.cfg.RSIOverbought))
		}
	}
	if s.HighSweep {
		notes = append(notes, "High Sweep")
	}
	if s.LowSweep {
		notes = append(notes, "Low Sweep")
	}

	if e.cfg.EnableVWAPBandAlerts && indicator.Ready(s.Plus1) {
		// +2σ wins over +1σ; above and below are judged independently.
		if s.Close >= s.Plus2 {
			notes = append(notes, "≥ +2σ above VWAP")
		} else if s.Close >= s.Plus1 {
			notes = append(notes, "≥ +1σ above VWAP")
		}
		if s.Close <= s.Minus2 {
			notes = append(notes, "≤ -2σ below VWAP")
		} else if s.Close <= s.Minus1 {
			notes = append(notes, "≤ -1σ below VWAP")
		}
	}

	if s.VolumeSpike {
		notes = append(notes, fmt.Sprintf("Volume Spike %.1fx", s.VolumeRatio))
	}
	return notes
}

// Decide applies the trigger policy: a sweep, or a close further than
// EMADistanceThreshold from the EMA. The empty trigger means suppress.
func (e *Evaluator) Decide(s Snapshot) string {
	if s.HighSweep || s.LowSweep {
		return TriggerSweep
	}
	if indicator.Ready(s.EMA) && s.EMADistance() > e.cfg.EMADistanceThreshold {
		return TriggerEMADistance
	}
	return ""
}

// Evaluate runs Compute, Notes and Decide and assembles the intent. It
// returns false when history is insufficient or the policy suppresses.
func (e *Evaluator) Evaluate(instrument string, history []model.Candle) (model.Intent, bool) {
	snap, ok := e.Compute(history)
	if !ok {
		return model.Intent{}, false
	}
	trigger := e.Decide(snap)
	if trigger == "" {
		return model.Intent{}, false
	}

	notes := e.Notes(snap)
	return model.Intent{
		Instrument: instrument,
		Title:      e.source + " Scan",
		Body:       fmt.Sprintf("%s close=%s | %s", instrument, formatPrice(snap.Close), strings.Join(notes, ", ")),
		DedupKey:   DedupKey(instrument, trigger),
		Trigger:    trigger,
		Notes:      notes,
	}, true
}

// DedupKey returns the cooldown key: sweeps and indicator alerts for the
// same instrument cool down independently.
func DedupKey(instrument, trigger string) string {
	if trigger == TriggerSweep {
		return instrument + "-sweep"
	}
	return instrument + "-indicators"
}

func closedOnly(history []model.Candle) []model.Candle {
	if n := len(history); n > 0 && !history[n-1].IsClosed {
		return history[:n-1]
	}
	return history
}

func formatPrice(p float64) string {
	if math.Abs(p) >= 1 {
		return fmt.Sprintf("%.2f", p)
	}
	return fmt.Sprintf("%.6f", p)
}
