package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candle-alerts/internal/session"
	"candle-alerts/internal/strategy"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 500, cfg.HistoryCapacity)
	assert.Equal(t, 900*time.Second, cfg.Cooldown())
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay())
	assert.InDelta(t, 0.001, cfg.EMADistanceThreshold, 1e-12)
	assert.Equal(t, "DAILY", cfg.VWAPReset)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STREAM_INSTRUMENTS", "SOLUSDT, ,XRPUSDT")
	t.Setenv("RSI_PERIOD", "21")
	t.Setenv("EMA_DISTANCE_THRESHOLD", "0.002")
	t.Setenv("ENABLE_POLL", "TRUE")
	t.Setenv("DUPLICATE_COOLDOWN_SECONDS", "60")
	t.Setenv("VWAP_RESET", "session")
	t.Setenv("NOTIFY_LOG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"SOLUSDT", "XRPUSDT"}, cfg.StreamInstruments)
	assert.Equal(t, 21, cfg.RSIPeriod)
	assert.InDelta(t, 0.002, cfg.EMADistanceThreshold, 1e-12)
	assert.True(t, cfg.EnablePoll)
	assert.Equal(t, time.Minute, cfg.Cooldown())
	assert.True(t, cfg.NotifyLog)

	p, err := cfg.SessionPolicy()
	require.NoError(t, err)
	assert.Equal(t, session.ModeSession, p.Mode)
	assert.Len(t, p.Starts, 2)
}

func TestLoad_InvalidIntKeepsDefault(t *testing.T) {
	t.Setenv("SWEEP_LOOKBACK", "twenty")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.SweepLookback)
}

func TestLoadFile_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alertd.yaml")
	yml := `
poll_instruments: [BTCUSDT]
enable_poll: true
enable_stream: false
vwap_reset: NONE
cooldown_seconds: 300
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.PollInstruments)
	assert.False(t, cfg.EnableStream)
	assert.Equal(t, "NONE", cfg.VWAPReset)
	assert.Equal(t, 300, cfg.CooldownSeconds)
	// untouched fields keep defaults
	assert.Equal(t, 14, cfg.RSIPeriod)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]func(c *Config){
		"no feeds":          func(c *Config) { c.EnableStream, c.EnablePoll = false, false },
		"rsi bands crossed": func(c *Config) { c.RSIOversold, c.RSIOverbought = 80, 20 },
		"bad vwap reset":    func(c *Config) { c.VWAPReset = "WEEKLY" },
		"min bars > cap":    func(c *Config) { c.MinBars = 600 },
		"bad session clock": func(c *Config) { c.VWAPReset = "SESSION"; c.SessionStarts = []string{"25:00"} },
		"bad timezone":      func(c *Config) { c.VWAPReset = "SESSION"; c.Timezone = "Mars/Olympus" },
		"bad log level":     func(c *Config) { c.LogLevel = "LOUD" },
		"band window":       func(c *Config) { c.VWAPBandWindow = 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	lvl, err := cfg.ParseLogLevel()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", lvl.String())
}

func TestStrategyConfig_MatchesEvaluatorDefaults(t *testing.T) {
	cfg := Default()
	sc, err := cfg.StrategyConfig()
	require.NoError(t, err)

	want := strategy.DefaultConfig()
	assert.Equal(t, want.MinBars, sc.MinBars)
	assert.Equal(t, want.RSIPeriod, sc.RSIPeriod)
	assert.Equal(t, want.EMASpan, sc.EMASpan)
	assert.Equal(t, want.EMADistanceThreshold, sc.EMADistanceThreshold)
	assert.Equal(t, want.SweepLookback, sc.SweepLookback)
	assert.Equal(t, want.VWAPBandWindow, sc.VWAPBandWindow)
	assert.Equal(t, want.Session.Mode, sc.Session.Mode)
}

func TestStrategyConfig_SessionPolicy(t *testing.T) {
	cfg := Default()
	cfg.VWAPReset = "session"
	sc, err := cfg.StrategyConfig()
	require.NoError(t, err)

	assert.Equal(t, session.ModeSession, sc.Session.Mode)
	require.NotNil(t, sc.Session.Location)
	assert.Equal(t, "Asia/Dubai", sc.Session.Location.String())
	assert.Equal(t, []session.Clock{{Hour: 11, Minute: 0}, {Hour: 16, Minute: 30}}, sc.Session.Starts)
}
