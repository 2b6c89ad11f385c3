package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // session timezones without relying on the host zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"candle-alerts/internal/session"
	"candle-alerts/internal/strategy"
)

// Config holds all application configuration. Every field has a default in
// Default(); Load layers a .env file, an optional YAML file and the process
// environment on top, then validates once.
type Config struct {
	// Instruments
	StreamInstruments []string `yaml:"stream_instruments"` // Binance symbols, e.g. BTCUSDT
	PollInstruments   []string `yaml:"poll_instruments"`   // MEXC symbols
	Interval          string   `yaml:"interval"`           // kline interval, e.g. 1m

	// Feeds
	EnableStream          bool   `yaml:"enable_stream"`
	EnablePoll            bool   `yaml:"enable_poll"`
	StreamURL             string `yaml:"stream_url"`
	PollURL               string `yaml:"poll_url"`
	PollLimit             int    `yaml:"poll_limit"`
	PollIntervalSeconds   int    `yaml:"poll_interval_seconds"`
	ReconnectDelaySeconds int    `yaml:"reconnect_delay_seconds"`

	// History / indicators
	HistoryCapacity      int     `yaml:"history_capacity"`
	MinBars              int     `yaml:"min_bars"`
	RSIPeriod            int     `yaml:"rsi_period"`
	RSIOversold          float64 `yaml:"rsi_oversold"`
	RSIOverbought        float64 `yaml:"rsi_overbought"`
	EMASpan              int     `yaml:"ema_span"`
	EMADistanceThreshold float64 `yaml:"ema_distance_threshold"` // fraction, 0.001 = 0.1%
	VolLookback          int     `yaml:"vol_lookback"`
	VolMultiplier        float64 `yaml:"vol_multiplier"`
	VWAPReset            string  `yaml:"vwap_reset"` // NONE | DAILY | SESSION
	VWAPBandWindow       int     `yaml:"vwap_band_window"`
	EnableVWAPBandAlerts bool    `yaml:"enable_vwap_band_alerts"`
	SweepLookback        int     `yaml:"sweep_lookback"`

	// Sessions (SESSION VWAP reset)
	Timezone      string   `yaml:"timezone"`
	SessionStarts []string `yaml:"session_starts"` // HH:MM in Timezone

	// Alerts
	CooldownSeconds  int    `yaml:"cooldown_seconds"`
	HeartbeatSeconds int    `yaml:"heartbeat_seconds"`
	TelegramToken    string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
	WebhookURL       string `yaml:"webhook_url"`
	NotifyLog        bool   `yaml:"notify_log"` // also deliver alerts to the structured log

	// Infrastructure
	RedisAddr     string `yaml:"redis_addr"` // empty = in-process cooldowns
	RedisPassword string `yaml:"redis_password"`
	SQLitePath    string `yaml:"sqlite_path"` // empty = no alert journal
	MetricsAddr   string `yaml:"metrics_addr"`
	LogLevel      string `yaml:"log_level"`
}

// Default returns the configuration with every field set to its default.
func Default() *Config {
	return &Config{
		// An instrument on both feeds shares one cooldown per trigger:
		// dedup keys carry no feed name.
		StreamInstruments: []string{"BTCUSDT", "ETHUSDT"},
		PollInstruments:   []string{"BTCUSDT", "ETHUSDT"},
		Interval:          "1m",

		EnableStream:          true,
		EnablePoll:            false,
		StreamURL:             "wss://stream.binance.com:9443/ws",
		PollURL:               "https://api.mexc.com",
		PollLimit:             200,
		PollIntervalSeconds:   30,
		ReconnectDelaySeconds: 5,

		HistoryCapacity:      500,
		MinBars:              30,
		RSIPeriod:            14,
		RSIOversold:          30,
		RSIOverbought:        70,
		EMASpan:              20,
		EMADistanceThreshold: 0.001,
		VolLookback:          60,
		VolMultiplier:        3.0,
		VWAPReset:            string(session.ModeDaily),
		VWAPBandWindow:       50,
		EnableVWAPBandAlerts: true,
		SweepLookback:        20,

		Timezone:      "Asia/Dubai",
		SessionStarts: []string{"11:00", "16:30"},

		CooldownSeconds:  900,
		HeartbeatSeconds: 7200,

		MetricsAddr: ":9090",
		LogLevel:    "INFO",
	}
}

// Load builds the configuration: defaults, then .env (if present), then the
// YAML file named by ALERTD_CONFIG (if set), then environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("ALERTD_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads defaults plus a YAML file, without consulting the
// environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.StreamInstruments = getList("STREAM_INSTRUMENTS", c.StreamInstruments)
	c.PollInstruments = getList("POLL_INSTRUMENTS", c.PollInstruments)
	c.Interval = getEnv("KLINE_INTERVAL", c.Interval)

	c.EnableStream = getBool("ENABLE_STREAM", c.EnableStream)
	c.EnablePoll = getBool("ENABLE_POLL", c.EnablePoll)
	c.StreamURL = getEnv("STREAM_URL", c.StreamURL)
	c.PollURL = getEnv("POLL_URL", c.PollURL)
	c.PollLimit = getInt("POLL_LIMIT", c.PollLimit)
	c.PollIntervalSeconds = getInt("POLL_INTERVAL_SECONDS", c.PollIntervalSeconds)
	c.ReconnectDelaySeconds = getInt("RECONNECT_DELAY_SECONDS", c.ReconnectDelaySeconds)

	c.HistoryCapacity = getInt("HISTORY_CAPACITY", c.HistoryCapacity)
	c.MinBars = getInt("MIN_BARS", c.MinBars)
	c.RSIPeriod = getInt("RSI_PERIOD", c.RSIPeriod)
	c.RSIOversold = getFloat("RSI_OVERSOLD", c.RSIOversold)
	c.RSIOverbought = getFloat("RSI_OVERBOUGHT", c.RSIOverbought)
	c.EMASpan = getInt("EMA_SPAN", c.EMASpan)
	c.EMADistanceThreshold = getFloat("EMA_DISTANCE_THRESHOLD", c.EMADistanceThreshold)
	c.VolLookback = getInt("VOLUME_SPIKE_LOOKBACK", c.VolLookback)
	c.VolMultiplier = getFloat("VOLUME_SPIKE_MULTIPLIER", c.VolMultiplier)
	c.VWAPReset = getEnv("VWAP_RESET", c.VWAPReset)
	c.VWAPBandWindow = getInt("VWAP_BAND_WINDOW", c.VWAPBandWindow)
	c.EnableVWAPBandAlerts = getBool("ENABLE_VWAP_BAND_ALERTS", c.EnableVWAPBandAlerts)
	c.SweepLookback = getInt("SWEEP_LOOKBACK", c.SweepLookback)

	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	c.SessionStarts = getList("SESSION_STARTS", c.SessionStarts)

	c.CooldownSeconds = getInt("DUPLICATE_COOLDOWN_SECONDS", c.CooldownSeconds)
	c.HeartbeatSeconds = getInt("HEARTBEAT_SECONDS", c.HeartbeatSeconds)
	c.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramToken)
	c.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.TelegramChatID)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.NotifyLog = getBool("NOTIFY_LOG", c.NotifyLog)

	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.EnableStream || c.EnablePoll, "at least one of enable_stream, enable_poll must be set")
	check(!c.EnableStream || len(c.StreamInstruments) > 0, "stream_instruments is empty")
	check(!c.EnablePoll || len(c.PollInstruments) > 0, "poll_instruments is empty")
	check(c.Interval != "", "interval is required")
	check(c.PollLimit > 0, "poll_limit must be positive")
	check(c.PollIntervalSeconds > 0, "poll_interval_seconds must be positive")
	check(c.ReconnectDelaySeconds > 0, "reconnect_delay_seconds must be positive")

	check(c.HistoryCapacity > 0, "history_capacity must be positive")
	check(c.MinBars > 1, "min_bars must be at least 2")
	check(c.MinBars <= c.HistoryCapacity, "min_bars (%d) exceeds history_capacity (%d)", c.MinBars, c.HistoryCapacity)
	check(c.RSIPeriod > 0, "rsi_period must be positive")
	check(c.RSIOversold >= 0 && c.RSIOversold < c.RSIOverbought && c.RSIOverbought <= 100,
		"rsi thresholds must satisfy 0 <= oversold < overbought <= 100")
	check(c.EMASpan > 0, "ema_span must be positive")
	check(c.EMADistanceThreshold >= 0, "ema_distance_threshold must be non-negative")
	check(c.VolLookback > 0, "vol_lookback must be positive")
	check(c.VolMultiplier > 0, "vol_multiplier must be positive")
	check(c.VWAPBandWindow > 1, "vwap_band_window must be at least 2")
	check(c.SweepLookback > 0, "sweep_lookback must be positive")

	check(c.CooldownSeconds >= 0, "cooldown_seconds must be non-negative")
	check(c.HeartbeatSeconds >= 0, "heartbeat_seconds must be non-negative")

	if _, err := c.SessionPolicy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ParseLogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SessionPolicy returns the VWAP reset policy described by the config.
func (c *Config) SessionPolicy() (session.Policy, error) {
	mode, err := session.ParseMode(c.VWAPReset)
	if err != nil {
		return session.Policy{}, err
	}
	p := session.Policy{Mode: mode}
	if mode != session.ModeSession {
		return p, nil
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return session.Policy{}, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	p.Location = loc
	for _, s := range c.SessionStarts {
		clk, err := session.ParseClock(s)
		if err != nil {
			return session.Policy{}, err
		}
		p.Starts = append(p.Starts, clk)
	}
	return p, nil
}

// StrategyConfig returns the evaluator thresholds described by the config.
func (c *Config) StrategyConfig() (strategy.Config, error) {
	policy, err := c.SessionPolicy()
	if err != nil {
		return strategy.Config{}, err
	}
	return strategy.Config{
		MinBars:              c.MinBars,
		RSIPeriod:            c.RSIPeriod,
		RSIOversold:          c.RSIOversold,
		RSIOverbought:        c.RSIOverbought,
		EMASpan:              c.EMASpan,
		EMADistanceThreshold: c.EMADistanceThreshold,
		VolLookback:          c.VolLookback,
		VolMultiplier:        c.VolMultiplier,
		VWAPBandWindow:       c.VWAPBandWindow,
		EnableVWAPBandAlerts: c.EnableVWAPBandAlerts,
		SweepLookback:        c.SweepLookback,
		Session:              policy,
	}, nil
}

// ParseLogLevel maps LogLevel onto slog levels.
func (c *Config) ParseLogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Cooldown returns the dedup window.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// PollInterval returns the delay between polls of one instrument.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ReconnectDelay returns the fixed stream reconnect backoff.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

// Heartbeat returns the heartbeat period; zero disables it.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("config: ignoring invalid int", "key", key, "value", v)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		slog.Warn("config: ignoring invalid float", "key", key, "value", v)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// getList parses a comma-separated list, skipping blanks.
func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
