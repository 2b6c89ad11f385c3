package model

import "time"

// Candle is one OHLCV bar for a single instrument, normalized from any feed.
// A candle with IsClosed=false is still forming and may be replaced by a
// later update carrying the same OpenTime.
type Candle struct {
	Instrument string  `json:"instrument"`
	OpenTime   int64   `json:"open_time"` // bucket start, unix milliseconds (UTC)
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
	IsClosed   bool    `json:"is_closed"`
}

// Time returns OpenTime as a UTC time.Time.
func (c *Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// TypicalPrice returns (high+low+close)/3.
func (c *Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3.0
}

// Valid reports whether the candle carries usable prices. Feeds drop
// invalid candles before they reach a cache.
func (c *Candle) Valid() bool {
	if c.Instrument == "" || c.OpenTime <= 0 {
		return false
	}
	if c.High < c.Low || c.Open <= 0 || c.Close <= 0 || c.Low <= 0 {
		return false
	}
	return c.Volume >= 0
}

// Closes extracts the close series from candles.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// Volumes extracts the volume series from candles.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Volume
	}
	return out
}
