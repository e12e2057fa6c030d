// Package metrics exposes Prometheus metrics and a health endpoint for
// the trading bot.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading bot.
type Metrics struct {
	CyclesTotal prometheus.Counter
	CycleDur    prometheus.Histogram

	FetchErrors     *prometheus.CounterVec // labels: symbol
	IndicatorSkips  *prometheus.CounterVec // labels: symbol
	LLMCallDur      prometheus.Histogram
	LLMTimeouts     prometheus.Counter
	DecisionsTotal  *prometheus.CounterVec // labels: type, outcome
	GuardrailCloses *prometheus.CounterVec // labels: reason
	PersistErrors   prometheus.Counter
	PublishErrors   prometheus.Counter

	Equity        prometheus.Gauge
	CashBalance   prometheus.Gauge
	OpenPositions prometheus.Gauge
	RealizedPnL   prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_cycles_total",
			Help: "Total trading cycles completed",
		}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_cycle_duration_seconds",
			Help:    "Wall time of one full trading cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_fetch_errors_total",
			Help: "Market data fetch failures per symbol",
		}, []string{"symbol"}),
		IndicatorSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_indicator_skips_total",
			Help: "Symbols skipped for insufficient candle history",
		}, []string{"symbol"}),
		LLMCallDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_llm_call_duration_seconds",
			Help:    "Decision service call latency",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 15, 30},
		}),
		LLMTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_llm_timeouts_total",
			Help: "Decision service calls that timed out (cycle degraded to hold)",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_decisions_total",
			Help: "Decisions processed by type and outcome (accepted, rejected)",
		}, []string{"type", "outcome"}),
		GuardrailCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_guardrail_closes_total",
			Help: "Positions force-closed by stop loss or take profit",
		}, []string{"reason"}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_persist_errors_total",
			Help: "Cycle snapshot writes that failed",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_publish_errors_total",
			Help: "Live cycle publishes that failed",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_equity",
			Help: "Total equity (cash + unrealized pnl)",
		}),
		CashBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_cash_balance",
			Help: "Free cash balance",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Currently open positions",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_realized_pnl",
			Help: "Cumulative realized pnl net of fees",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDur,
		m.FetchErrors,
		m.IndicatorSkips,
		m.LLMCallDur,
		m.LLMTimeouts,
		m.DecisionsTotal,
		m.GuardrailCloses,
		m.PersistErrors,
		m.PublishErrors,
		m.Equity,
		m.CashBalance,
		m.OpenPositions,
		m.RealizedPnL,
	)

	return m
}

// HealthStatus represents bot health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	LastCycleTime  time.Time `json:"last_cycle_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetLastCycleTime(t time.Time) {
	h.mu.Lock()
	h.LastCycleTime = t
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

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
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
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	// Redis is the live channel only; SQLite failing means persisted
	// state is at risk.
	if !h.RedisConnected {
		overallStatus = "degraded"
	}
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	cycleAge := ""
	if !h.LastCycleTime.IsZero() {
		cycleAge = time.Since(h.LastCycleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		LastCycleTime   string  `json:"last_cycle_time"`
		CycleAge        string  `json:"cycle_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		LastCycleTime:   h.LastCycleTime.Format(time.RFC3339),
		CycleAge:        cycleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
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
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
