// Package session decides where session-bound cumulative indicators (VWAP)
// restart. A boundary is either a change of UTC calendar day or, in SESSION
// mode, the first bar at or after a configured trading-session open.
package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"candle-alerts/internal/model"
)

// Mode selects the reset rule.
type Mode string

const (
	ModeNone    Mode = "NONE"
	ModeDaily   Mode = "DAILY"
	ModeSession Mode = "SESSION"
)

// ParseMode parses a case-insensitive mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeNone, ModeDaily, ModeSession:
		return m, nil
	default:
		return "", fmt.Errorf("session: unknown reset mode %q", s)
	}
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("session: bad clock %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("session: bad hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("session: bad minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// Policy is a reset mode plus the session opens used by ModeSession.
type Policy struct {
	Mode     Mode
	Location *time.Location // zone the Starts are expressed in; UTC if nil
	Starts   []Clock
}

// Daily is the default policy.
func Daily() Policy { return Policy{Mode: ModeDaily} }

// maxScanDays bounds the day walk between two far-apart bars.
const maxScanDays = 7

// Resets returns one flag per candle; true means cumulative sums restart
// at that candle before including it.
func (p Policy) Resets(candles []model.Candle) []bool {
	out := make([]bool, len(candles))
	if p.Mode == ModeNone || len(candles) == 0 {
		return out
	}

	out[0] = true
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Time()
		cur := candles[i].Time()
		if !sameUTCDay(prev, cur) {
			out[i] = true
			continue
		}
		if p.Mode == ModeSession && p.sessionOpened(prev, cur) {
			out[i] = true
		}
	}
	return out
}

// sessionOpened reports whether a session open falls in (prev, cur].
func (p Policy) sessionOpened(prev, cur time.Time) bool {
	if len(p.Starts) == 0 {
		return false
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	lp := prev.In(loc)
	lc := cur.In(loc)

	day := time.Date(lp.Year(), lp.Month(), lp.Day(), 0, 0, 0, 0, loc)
	for i := 0; i <= maxScanDays && !day.After(lc); i++ {
		for _, s := range p.Starts {
			open := time.Date(day.Year(), day.Month(), day.Day(), s.Hour, s.Minute, 0, 0, loc)
			if open.After(lp) && !open.After(lc) {
				return true
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return false
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
