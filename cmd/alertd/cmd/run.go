package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"candle-alerts/config"
	"candle-alerts/internal/feed"
	"candle-alerts/internal/logger"
	"candle-alerts/internal/metrics"
	"candle-alerts/internal/model"
	"candle-alerts/internal/notification"
	"candle-alerts/internal/pipeline"
	sqlitestore "candle-alerts/internal/store/sqlite"
	"candle-alerts/internal/strategy"
	"candle-alerts/internal/supervisor"
)

const (
	restartDelay      = 5 * time.Second
	livenessInterval  = 10 * time.Second
	breakerMaxFailure = 5
	breakerReset      = time.Minute
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the alert daemon",
	Long: `Start the configured feeds, evaluate every closed candle and dispatch
alerts until SIGINT or SIGTERM.

Without Telegram or webhook settings the daemon runs in degraded mode and
only logs the alerts it would have sent.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level, err := cfg.ParseLogLevel()
	if err != nil {
		return err
	}
	logger.Init("alertd", level)

	stratCfg, err := cfg.StrategyConfig()
	if err != nil {
		return fmt.Errorf("strategy config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("[alertd] starting",
		"version", version,
		"stream_instruments", strings.Join(cfg.StreamInstruments, ","),
		"poll_instruments", strings.Join(cfg.PollInstruments, ","),
		"vwap_reset", cfg.VWAPReset,
	)

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	// ---- Dispatch path ----
	notifier := buildNotifier(cfg, m)
	health.SetNotifierReady(notifier != nil)

	cooldown, rdb, err := buildCooldown(ctx, cfg, health)
	if err != nil {
		return err
	}
	if closer, ok := cooldown.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	dispatcher := notification.NewDispatcher(notifier, cooldown)
	dispatcher.OnOutcome = func(key string, o notification.Outcome) {
		m.Dispatched(key, string(o))
		if o == notification.OutcomeSent || o == notification.OutcomeDryRun {
			health.SetLastAlertTime(time.Now())
		}
	}

	var journal *sqlitestore.Journal
	if cfg.SQLitePath != "" {
		journal, err = sqlitestore.Open(sqlitestore.Config{
			DBPath:   cfg.SQLitePath,
			OnCommit: func(_ int, d time.Duration) { m.JournalWriteDur.Observe(d.Seconds()) },
		})
		if err != nil {
			return err
		}
		defer journal.Close()
		dispatcher.Recorder = journal
		health.EnableSQLite()
	}

	// ---- Tasks ----
	// Feeds are built before any task starts.
	feeds, err := buildFeeds(cfg, stratCfg, dispatcher, m, health)
	if err != nil {
		return err
	}

	sup := supervisor.New(ctx, restartDelay)

	sup.Go("metrics", metrics.NewServer(cfg.MetricsAddr, m, health).Run)
	if journal != nil {
		sup.Go("journal", journal.Run)
	}
	if rdb != nil || journal != nil {
		sqlDB := journalDB(journal)
		sup.Go("liveness", func(ctx context.Context) error {
			health.RunLivenessChecker(ctx, rdb, sqlDB, livenessInterval)
			return nil
		})
	}
	for _, f := range feeds {
		sup.Go(f.name, f.task)
	}

	started := time.Now()
	sup.Go("heartbeat", supervisor.Heartbeat(cfg.Heartbeat(), dispatcher, func() string {
		return fmt.Sprintf("alive | uptime=%s", time.Since(started).Round(time.Second))
	}))

	<-ctx.Done()
	slog.Info("[alertd] shutdown signal received, cleaning up...")
	sup.Wait()
	slog.Info("[alertd] stopped")
	return nil
}

// buildNotifierPlain returns the configured channels without a breaker, or
// nil when none is configured.
func buildNotifierPlain(cfg *config.Config) notification.Notifier {
	var backends notification.MultiNotifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.NotifyLog {
		backends = append(backends, notification.NewLogNotifier(nil))
	}
	switch len(backends) {
	case 0:
		return nil
	case 1:
		return backends[0]
	default:
		return backends
	}
}

// buildNotifier wraps the channels in a circuit breaker. It returns nil when
// no channel is configured.
func buildNotifier(cfg *config.Config, m *metrics.Metrics) notification.Notifier {
	inner := buildNotifierPlain(cfg)
	if inner == nil {
		slog.Warn("[alertd] no notification channel configured, alerts will only be logged")
		return nil
	}

	breaker := notification.NewBreaker(inner, breakerMaxFailure, breakerReset)
	breaker.OnStateChange = func(from, to notification.BreakerState) {
		slog.Warn("[alertd] notifier circuit breaker", "from", from.String(), "to", to.String())
		m.NotifierBreakerState.Set(float64(to))
		if to == notification.BreakerOpen {
			m.NotifierBreakerTrips.Inc()
		}
	}
	return breaker
}

// buildCooldown prefers a shared Redis cooldown and falls back to memory.
func buildCooldown(ctx context.Context, cfg *config.Config, health *metrics.HealthStatus) (notification.CooldownStore, *goredis.Client, error) {
	if cfg.RedisAddr == "" {
		return notification.NewMemoryCooldown(cfg.Cooldown()), nil, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rc, err := notification.NewRedisCooldown(pingCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.Cooldown())
	if err != nil {
		slog.Warn("[alertd] redis unavailable, using in-process cooldown", "addr", cfg.RedisAddr, "error", err)
		return notification.NewMemoryCooldown(cfg.Cooldown()), nil, nil
	}
	health.EnableRedis()
	slog.Info("[alertd] shared cooldown on redis", "addr", cfg.RedisAddr)
	return rc, rc.Client(), nil
}

func buildRegistry(feedName string, instruments []string, cfg *config.Config, stratCfg strategy.Config, sink pipeline.Sink, m *metrics.Metrics) (*pipeline.Registry, error) {
	eval := strategy.NewEvaluator(feedName, stratCfg)
	reg := pipeline.NewRegistry()
	for _, inst := range instruments {
		p := pipeline.New(feedName, strings.ToUpper(inst), cfg.HistoryCapacity, eval, sink, m)
		if err := reg.Add(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

type feedTask struct {
	name string
	task supervisor.Task
}

// buildFeeds constructs every enabled feed without starting any.
func buildFeeds(cfg *config.Config, stratCfg strategy.Config, sink pipeline.Sink, m *metrics.Metrics, health *metrics.HealthStatus) ([]feedTask, error) {
	var feeds []feedTask
	if cfg.EnableStream && len(cfg.StreamInstruments) > 0 {
		task, err := buildStream(cfg, stratCfg, sink, m, health)
		if err != nil {
			return nil, fmt.Errorf("stream feed: %w", err)
		}
		feeds = append(feeds, feedTask{name: "stream", task: task})
	}
	if cfg.EnablePoll && len(cfg.PollInstruments) > 0 {
		task, err := buildPoller(cfg, stratCfg, sink, m, health)
		if err != nil {
			return nil, fmt.Errorf("poll feed: %w", err)
		}
		feeds = append(feeds, feedTask{name: "poll", task: task})
	}
	return feeds, nil
}

func buildStream(cfg *config.Config, stratCfg strategy.Config, sink pipeline.Sink, m *metrics.Metrics, health *metrics.HealthStatus) (supervisor.Task, error) {
	const name = "Binance"
	reg, err := buildRegistry(name, cfg.StreamInstruments, cfg, stratCfg, sink, m)
	if err != nil {
		return nil, err
	}

	stream, err := feed.NewStream(feed.StreamConfig{
		Name:           name,
		URL:            cfg.StreamURL,
		Instruments:    reg.Instruments(),
		Interval:       cfg.Interval,
		ReconnectDelay: cfg.ReconnectDelay(),
	}, nil, func(ctx context.Context, c model.Candle) {
		health.SetLastCandleTime(time.Now())
		reg.HandleCandle(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	health.SetFeedState(name, stream.State().String())
	stream.OnTransition = func(_, to feed.State) {
		m.FeedState.WithLabelValues(name).Set(float64(to))
		health.SetFeedState(name, to.String())
	}
	stream.OnReconnect = func() { m.WSReconnects.WithLabelValues(name).Inc() }
	stream.OnDecodeError = func(error) { m.DecodeErrors.WithLabelValues(name).Inc() }
	return stream.Run, nil
}

func buildPoller(cfg *config.Config, stratCfg strategy.Config, sink pipeline.Sink, m *metrics.Metrics, health *metrics.HealthStatus) (supervisor.Task, error) {
	const name = "MEXC"
	reg, err := buildRegistry(name, cfg.PollInstruments, cfg, stratCfg, sink, m)
	if err != nil {
		return nil, err
	}

	fetcher, err := feed.NewMEXCFetcher(cfg.PollURL, cfg.Interval)
	if err != nil {
		return nil, err
	}

	poller, err := feed.NewPoller(feed.PollConfig{
		Name:        name,
		Instruments: reg.Instruments(),
		Limit:       cfg.PollLimit,
		Interval:    cfg.PollInterval(),
	}, fetcher, func(ctx context.Context, instrument string, bars []model.Candle, evaluate bool) {
		health.SetLastCandleTime(time.Now())
		reg.HandleBatch(ctx, instrument, bars, evaluate)
	})
	if err != nil {
		return nil, err
	}
	poller.OnFetchError = func(instrument string, _ error) {
		m.PollErrors.WithLabelValues(name, instrument).Inc()
	}
	poller.OnCycle = func(instrument string, bars int) { m.PollCycled(name, instrument, bars) }
	return poller.Run, nil
}

func journalDB(j *sqlitestore.Journal) *sql.DB {
	if j == nil {
		return nil
	}
	return j.DB()
}
