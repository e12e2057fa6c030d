// Package bot runs the trading loop: fetch market data, compute
// indicators, enforce stops, solicit decisions, execute them, and
// persist the cycle.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"llm-crypto-trader/config"
	"llm-crypto-trader/internal/ledger"
	"llm-crypto-trader/internal/llm"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/market"
	"llm-crypto-trader/internal/metrics"
	"llm-crypto-trader/internal/model"
	"llm-crypto-trader/internal/notification"
	redisstore "llm-crypto-trader/internal/store/redis"
	sqlitestore "llm-crypto-trader/internal/store/sqlite"
)

// Service is the top-level orchestrator for the trading bot. It wires all
// collaborators, manages lifecycle, and runs the cycle loop.
type Service struct {
	configs   model.ConfigStore
	market    model.MarketData
	decider   model.DecisionService
	store     model.SnapshotStore
	publisher model.LivePublisher

	ledger     *ledger.Ledger
	tradingCfg model.BotConfig

	prom   *metrics.Metrics
	health *metrics.HealthStatus
	notify *notification.Multi
	log    *slog.Logger
	now    func() time.Time

	// fan-out bound for per-symbol market fetches
	fetchConcurrency int
}

// New creates a Service from environment config, connecting to SQLite,
// Redis, and loading the current trading config.
func New(envCfg *config.Config) (*Service, error) {
	log := logger.Init("trader", slog.LevelInfo)

	os.MkdirAll("data", 0o755)

	configs, err := sqlitestore.NewConfigStore(envCfg.ConfigDBPath)
	if err != nil {
		return nil, err
	}

	tradingCfg, err := configs.Current()
	if err != nil {
		return nil, err
	}
	if err := tradingCfg.Validate(); err != nil {
		return nil, err
	}

	store, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: envCfg.SQLitePath})
	if err != nil {
		return nil, err
	}

	svc := &Service{
		configs:    configs,
		market:     market.NewClient(market.WithBaseURL(envCfg.BinanceBaseURL)),
		decider:    llm.NewClient(envCfg.GeminiAPIKey, llm.WithModel(envCfg.GeminiModel), llm.WithTimeout(time.Duration(envCfg.LLMTimeoutS)*time.Second)),
		store:      store,
		ledger:     ledger.New(tradingCfg.InitialBalance, tradingCfg.MaxPositions),
		tradingCfg: tradingCfg,

		prom:             metrics.NewMetrics(),
		health:           metrics.NewHealthStatus(),
		notify:           buildNotifier(envCfg),
		log:              log,
		now:              time.Now,
		fetchConcurrency: 3,
	}

	// Redis is optional; without it there is no live push, only SQLite.
	pub, err := redisstore.NewPublisher(redisstore.PublisherConfig{
		Addr:     envCfg.RedisAddr,
		Password: envCfg.RedisPassword,
		DB:       envCfg.RedisDB,
	})
	if err != nil {
		log.Warn("redis unavailable, live publishing disabled", "err", err)
	} else {
		svc.publisher = pub
		svc.health.StartLivenessChecker(context.Background(), pub.Client(), store.DB(), 30*time.Second)
	}

	// Metrics + health server
	metrics.NewServer(envCfg.MetricsAddr, svc.health).Start()

	return svc, nil
}

// buildNotifier assembles the alert fan-out from whatever channels the
// environment configures. No channels means no notifier at all.
func buildNotifier(envCfg *config.Config) *notification.Multi {
	var backends []notification.Notifier
	if envCfg.TelegramBotToken != "" && envCfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(envCfg.TelegramBotToken, envCfg.TelegramChatID))
	}
	if envCfg.AlertWebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(envCfg.AlertWebhookURL))
	}
	if len(backends) == 0 {
		return nil
	}
	return notification.NewMulti(backends...)
}

// Run executes trading cycles until ctx is cancelled. Cycle starts are
// aligned to CheckInterval boundaries so persisted rows land on a
// predictable grid.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("trading bot starting",
		"symbols", s.tradingCfg.Symbols,
		"interval", s.tradingCfg.Interval,
		"check_interval_s", s.tradingCfg.CheckInterval,
		"initial_balance", s.tradingCfg.InitialBalance,
	)

	for {
		if err := s.sleepUntilNextCycle(ctx); err != nil {
			s.shutdown()
			return nil
		}

		s.reloadConfig()
		s.runCycle(ctx)
	}
}

// sleepUntilNextCycle blocks until the next CheckInterval boundary or
// context cancellation.
func (s *Service) sleepUntilNextCycle(ctx context.Context) error {
	interval := time.Duration(s.tradingCfg.CheckInterval) * time.Second
	now := s.now()
	next := now.Truncate(interval).Add(interval)

	timer := time.NewTimer(next.Sub(now))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reloadConfig picks up config changes between cycles. Symbols, risk
// limits, and intervals take effect immediately; InitialBalance only
// seeds a fresh ledger and is ignored on reload.
func (s *Service) reloadConfig() {
	cfg, err := s.configs.Current()
	if err != nil {
		s.log.Warn("config reload failed, keeping previous", "err", err)
		return
	}
	if cfg.Version != s.tradingCfg.Version {
		s.log.Info("config updated", "version", cfg.Version)
		s.tradingCfg = cfg
		s.ledger.SetMaxPositions(cfg.MaxPositions)
	}
}

func (s *Service) shutdown() {
	s.log.Info("shutdown signal received")

	if s.publisher != nil {
		if p, ok := s.publisher.(*redisstore.Publisher); ok {
			p.Close()
		}
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn("store close", "err", err)
	}

	s.log.Info("shutdown complete",
		"cash_balance", fmt.Sprintf("%.2f", s.ledger.CashBalance()),
		"realized_pnl", fmt.Sprintf("%.2f", s.ledger.RealizedPnL()),
		"open_positions", s.ledger.PositionCount(),
	)
}
