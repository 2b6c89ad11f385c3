package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candle-alerts/config"
	"candle-alerts/internal/metrics"
	"candle-alerts/internal/notification"
	"candle-alerts/internal/pipeline"
	sqlitestore "candle-alerts/internal/store/sqlite"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, "version")
	assert.True(t, strings.HasPrefix(out, "alertd version "), out)
}

func TestHistoryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.db")

	j, err := sqlitestore.Open(sqlitestore.Config{DBPath: path})
	require.NoError(t, err)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordAlert(context.Background(), notification.Record{
		Key: "BTCUSDT-sweep", Title: "Binance Scan", Body: "BTCUSDT close=104.00 | High Sweep",
		Outcome: notification.OutcomeSent, At: at,
	}))
	require.NoError(t, j.RecordAlert(context.Background(), notification.Record{
		Key: "ETHUSDT-indicators", Title: "Binance Scan", Body: "ETHUSDT close=2001.00",
		Outcome: notification.OutcomeFailed, Error: "webhook: unexpected status 500", At: at.Add(time.Minute),
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j.Run(ctx)
	require.NoError(t, j.Close())

	out := execute(t, "history", "--db", path, "--outcome", "")
	assert.Contains(t, out, "BTCUSDT-sweep")
	assert.Contains(t, out, "webhook: unexpected status 500")
	assert.Less(t, strings.Index(out, "ETHUSDT-indicators"), strings.Index(out, "BTCUSDT-sweep"), "newest first")

	out = execute(t, "history", "--db", path, "--outcome", "sent")
	assert.Contains(t, out, "BTCUSDT-sweep")
	assert.NotContains(t, out, "ETHUSDT-indicators")
}

func TestBuildFeeds(t *testing.T) {
	cfg := config.Default()
	cfg.EnablePoll = true
	stratCfg, err := cfg.StrategyConfig()
	require.NoError(t, err)
	sink := notification.NewDispatcher(nil, nil)

	feeds, err := buildFeeds(cfg, stratCfg, sink, metrics.NewMetrics(), metrics.NewHealthStatus())
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, "stream", feeds[0].name)
	assert.Equal(t, "poll", feeds[1].name)
}

func TestBuildFeeds_PollErrorAfterValidStream(t *testing.T) {
	cfg := config.Default()
	cfg.EnablePoll = true
	cfg.PollInstruments = []string{"MXUSDT", "MXUSDT"}
	stratCfg, err := cfg.StrategyConfig()
	require.NoError(t, err)

	feeds, err := buildFeeds(cfg, stratCfg, notification.NewDispatcher(nil, nil), metrics.NewMetrics(), metrics.NewHealthStatus())
	require.ErrorIs(t, err, pipeline.ErrDuplicateInstrument)
	assert.Nil(t, feeds)
}

func TestBuildFeeds_BadInterval(t *testing.T) {
	cfg := config.Default()
	cfg.EnableStream = false
	cfg.EnablePoll = true
	cfg.Interval = "7x"
	stratCfg, err := cfg.StrategyConfig()
	require.NoError(t, err)

	_, err = buildFeeds(cfg, stratCfg, notification.NewDispatcher(nil, nil), metrics.NewMetrics(), metrics.NewHealthStatus())
	assert.Error(t, err)
}

func TestBuildNotifierPlain(t *testing.T) {
	cfg := config.Default()
	assert.Nil(t, buildNotifierPlain(cfg))

	cfg.NotifyLog = true
	_, ok := buildNotifierPlain(cfg).(*notification.LogNotifier)
	assert.True(t, ok, "log-only config should build a LogNotifier")

	cfg.WebhookURL = "http://127.0.0.1:1/hook"
	multi, ok := buildNotifierPlain(cfg).(notification.MultiNotifier)
	require.True(t, ok)
	assert.Len(t, multi, 2)
}
