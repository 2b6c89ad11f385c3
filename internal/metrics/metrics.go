package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the alert daemon.
type Metrics struct {
	// Feed metrics
	CandlesTotal *prometheus.CounterVec // labels: feed
	WSReconnects *prometheus.CounterVec // labels: feed
	DecodeErrors *prometheus.CounterVec // labels: feed
	PollErrors   *prometheus.CounterVec // labels: feed, instrument
	PollCycles   *prometheus.CounterVec // labels: feed, instrument
	PollBars     *prometheus.GaugeVec   // labels: feed, instrument; size of the last batch
	FeedState    *prometheus.GaugeVec   // labels: feed; 0=disconnected 1=connecting 2=connected 3=closing

	// Candle cache
	RingEvictions *prometheus.CounterVec // labels: instrument
	StaleCandles  *prometheus.CounterVec // labels: instrument

	// Evaluation
	EvaluationsTotal *prometheus.CounterVec // labels: instrument
	IntentsTotal     *prometheus.CounterVec // labels: trigger
	EvaluationDur    prometheus.Histogram

	// Dispatch
	DispatchTotal        *prometheus.CounterVec // labels: outcome
	NotifierBreakerState prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	NotifierBreakerTrips prometheus.Counter
	JournalWriteDur      prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_candles_total",
			Help: "Candle updates received (by feed)",
		}, []string{"feed"}),
		WSReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_ws_reconnects_total",
			Help: "WebSocket reconnection attempts",
		}, []string{"feed"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_decode_errors_total",
			Help: "Feed payloads discarded as unparseable",
		}, []string{"feed"}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_poll_errors_total",
			Help: "Failed poll fetches",
		}, []string{"feed", "instrument"}),
		PollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_poll_cycles_total",
			Help: "Successful poll fetches",
		}, []string{"feed", "instrument"}),
		PollBars: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alertd_poll_batch_bars",
			Help: "Bars returned by the last poll fetch",
		}, []string{"feed", "instrument"}),
		FeedState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alertd_feed_state",
			Help: "Streaming feed state (0=disconnected, 1=connecting, 2=connected, 3=closing)",
		}, []string{"feed"}),

		RingEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_ring_evictions_total",
			Help: "Candles evicted from a full history ring",
		}, []string{"instrument"}),
		StaleCandles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_stale_candles_total",
			Help: "Out-of-order candle updates dropped",
		}, []string{"instrument"}),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_evaluations_total",
			Help: "Signal evaluations run",
		}, []string{"instrument"}),
		IntentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_intents_total",
			Help: "Alert intents produced (by trigger)",
		}, []string{"trigger"}),
		EvaluationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertd_evaluation_duration_seconds",
			Help:    "Indicator computation and evaluation latency",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),

		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_dispatch_total",
			Help: "Dispatch outcomes (sent, suppressed, failed, dry_run)",
		}, []string{"outcome"}),
		NotifierBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertd_notifier_breaker_state",
			Help: "Notifier circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		NotifierBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertd_notifier_breaker_trips_total",
			Help: "Times the notifier circuit breaker tripped open",
		}),
		JournalWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertd_journal_write_duration_seconds",
			Help:    "SQLite alert journal insert latency",
			Buckets: prometheus.DefBuckets,
		}),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.CandlesTotal,
		m.WSReconnects,
		m.DecodeErrors,
		m.PollErrors,
		m.PollCycles,
		m.PollBars,
		m.FeedState,
		m.RingEvictions,
		m.StaleCandles,
		m.EvaluationsTotal,
		m.IntentsTotal,
		m.EvaluationDur,
		m.DispatchTotal,
		m.NotifierBreakerState,
		m.NotifierBreakerTrips,
		m.JournalWriteDur,
	)

	return m
}

// Registry exposes the registry for the HTTP handler and tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// CandleIngested counts one candle update from feed.
func (m *Metrics) CandleIngested(feed, _ string) {
	m.CandlesTotal.WithLabelValues(feed).Inc()
}

// Evaluated records one evaluation. trigger is empty when no intent fired.
func (m *Metrics) Evaluated(instrument string, d time.Duration, trigger string) {
	m.EvaluationsTotal.WithLabelValues(instrument).Inc()
	m.EvaluationDur.Observe(d.Seconds())
	if trigger != "" {
		m.IntentsTotal.WithLabelValues(trigger).Inc()
	}
}

// RingDropped adds eviction and staleness deltas for instrument.
func (m *Metrics) RingDropped(instrument string, evicted, stale uint64) {
	if evicted > 0 {
		m.RingEvictions.WithLabelValues(instrument).Add(float64(evicted))
	}
	if stale > 0 {
		m.StaleCandles.WithLabelValues(instrument).Add(float64(stale))
	}
}

// PollCycled records one successful poll fetch of bars bars.
func (m *Metrics) PollCycled(feed, instrument string, bars int) {
	m.PollCycles.WithLabelValues(feed, instrument).Inc()
	m.PollBars.WithLabelValues(feed, instrument).Set(float64(bars))
}

// Dispatched counts one dispatch outcome.
func (m *Metrics) Dispatched(_ string, outcome string) {
	m.DispatchTotal.WithLabelValues(outcome).Inc()
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	Feeds          map[string]string `json:"feeds"` // feed name -> connection state
	LastCandleTime time.Time         `json:"last_candle_time"`
	LastAlertTime  time.Time         `json:"last_alert_time"`
	NotifierReady  bool              `json:"notifier_ready"`

	RedisEnabled   bool `json:"redis_enabled"`
	RedisConnected bool `json:"redis_connected"`
	SQLiteEnabled  bool `json:"sqlite_enabled"`
	SQLiteOK       bool `json:"sqlite_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		Feeds:     make(map[string]string),
		StartedAt: time.Now(),
		now:       time.Now,
	}
}

func (h *HealthStatus) SetFeedState(feed, state string) {
	h.mu.Lock()
	h.Feeds[feed] = state
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastAlertTime(t time.Time) {
	h.mu.Lock()
	h.LastAlertTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetNotifierReady(v bool) {
	h.mu.Lock()
	h.NotifierReady = v
	h.mu.Unlock()
}

// EnableRedis marks Redis as a dependency whose liveness counts toward health.
func (h *HealthStatus) EnableRedis() {
	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = true
	h.mu.Unlock()
}

// EnableSQLite marks SQLite as a dependency whose liveness counts toward health.
func (h *HealthStatus) EnableSQLite() {
	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = true
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// RunLivenessChecker runs periodic dependency checks until ctx is done.
// Nil dependencies are skipped.
func (h *HealthStatus) RunLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if rdb != nil {
				h.CheckRedis(probeCtx, rdb)
			}
			if sqlDB != nil {
				h.CheckSQLite(probeCtx, sqlDB)
			}
			cancel()
		}
	}
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	disconnected := make([]string, 0)
	for name, state := range h.Feeds {
		if state != "connected" {
			disconnected = append(disconnected, name)
		}
	}
	sort.Strings(disconnected)

	redisDown := h.RedisEnabled && !h.RedisConnected
	sqliteDown := h.SQLiteEnabled && !h.SQLiteOK
	if len(disconnected) > 0 || redisDown || sqliteDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if len(h.Feeds) > 0 && len(disconnected) == len(h.Feeds) {
		overallStatus = "unhealthy"
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = h.now().Sub(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string            `json:"status"`
		Uptime          string            `json:"uptime"`
		Feeds           map[string]string `json:"feeds"`
		Disconnected    []string          `json:"disconnected"`
		LastCandleTime  string            `json:"last_candle_time"`
		CandleAge       string            `json:"candle_age"`
		LastAlertTime   string            `json:"last_alert_time"`
		NotifierReady   bool              `json:"notifier_ready"`
		RedisEnabled    bool              `json:"redis_enabled"`
		RedisConnected  bool              `json:"redis_connected"`
		RedisLatencyMs  float64           `json:"redis_latency_ms"`
		SQLiteEnabled   bool              `json:"sqlite_enabled"`
		SQLiteOK        bool              `json:"sqlite_ok"`
		SQLiteLatencyMs float64           `json:"sqlite_latency_ms"`
		LastCheckAt     string            `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          h.now().Sub(h.StartedAt).Round(time.Second).String(),
		Feeds:           h.Feeds,
		Disconnected:    disconnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		LastAlertTime:   h.LastAlertTime.Format(time.RFC3339),
		NotifierReady:   h.NotifierReady,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("[metrics] server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
