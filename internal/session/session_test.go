package session

import (
	"testing"
	"time"

	"candle-alerts/internal/model"
)

func bars(times ...time.Time) []model.Candle {
	out := make([]model.Candle, len(times))
	for i, ts := range times {
		out[i] = model.Candle{Instrument: "X", OpenTime: ts.UnixMilli(), IsClosed: true}
	}
	return out
}

func TestResets_None(t *testing.T) {
	base := time.Date(2024, 3, 1, 23, 58, 0, 0, time.UTC)
	r := Policy{Mode: ModeNone}.Resets(bars(base, base.Add(time.Minute), base.Add(3*time.Minute)))
	for i, v := range r {
		if v {
			t.Errorf("bar %d: NONE must never reset", i)
		}
	}
}

func TestResets_Daily(t *testing.T) {
	base := time.Date(2024, 3, 1, 23, 58, 0, 0, time.UTC)
	r := Daily().Resets(bars(
		base,
		base.Add(time.Minute),   // 23:59
		base.Add(2*time.Minute), // 00:00 next day
		base.Add(3*time.Minute),
	))
	want := []bool{true, false, true, false}
	for i := range want {
		if r[i] != want[i] {
			t.Errorf("bar %d: expected reset=%v, got %v", i, want[i], r[i])
		}
	}
}

func TestResets_Session(t *testing.T) {
	dubai := time.FixedZone("GST", 4*3600)
	p := Policy{
		Mode:     ModeSession,
		Location: dubai,
		Starts:   []Clock{{11, 0}, {16, 30}},
	}
	// 10:58, 10:59, 11:00, 11:01 Dubai time → reset at 11:00.
	base := time.Date(2024, 3, 1, 10, 58, 0, 0, dubai)
	r := p.Resets(bars(base, base.Add(time.Minute), base.Add(2*time.Minute), base.Add(3*time.Minute)))
	want := []bool{true, false, true, false}
	for i := range want {
		if r[i] != want[i] {
			t.Errorf("bar %d: expected reset=%v, got %v", i, want[i], r[i])
		}
	}

	// A gap that jumps over 16:30 resets on the first bar after it.
	a := time.Date(2024, 3, 1, 16, 0, 0, 0, dubai)
	r = p.Resets(bars(a, a.Add(45*time.Minute)))
	if !r[1] {
		t.Error("expected reset on first bar after 16:30 open")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"none": ModeNone, "Daily": ModeDaily, " SESSION ": ModeSession} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("weekly"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("16:30")
	if err != nil || c.Hour != 16 || c.Minute != 30 {
		t.Fatalf("ParseClock(16:30) = %v, %v", c, err)
	}
	for _, bad := range []string{"1630", "25:00", "10:61", "ab:cd"} {
		if _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q): expected error", bad)
		}
	}
}
