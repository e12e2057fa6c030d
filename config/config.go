// Package config loads process configuration from the environment.
// Trading parameters (symbols, intervals, risk limits) live in the
// versioned config store, not here; this covers credentials and
// infrastructure addresses only.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all environment-sourced configuration.
type Config struct {
	// Decision service
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" required:"true"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash-exp"`
	LLMTimeoutS  int    `envconfig:"LLM_TIMEOUT_S" default:"15"`

	// Exchange REST
	BinanceBaseURL string `envconfig:"BINANCE_BASE_URL" default:"https://fapi.binance.com"`

	// Infrastructure
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"data/trading.db"`
	ConfigDBPath  string `envconfig:"CONFIG_DB_PATH" default:"data/config.db"`
	MetricsAddr   string `envconfig:"METRICS_ADDR" default:":9090"`

	// Dashboard API
	DashboardAddr string `envconfig:"DASHBOARD_ADDR" default:":8080"`

	// Alert channels. All empty disables notifications.
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID" default:""`
	AlertWebhookURL  string `envconfig:"ALERT_WEBHOOK_URL" default:""`

	// TOTP secret guarding config mutation endpoints. Empty disables the
	// check (local development).
	AdminTOTPSecret string `envconfig:"ADMIN_TOTP_SECRET" default:""`
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.LLMTimeoutS < 5 || cfg.LLMTimeoutS > 15 {
		return nil, fmt.Errorf("config: LLM_TIMEOUT_S must be in [5, 15], got %d", cfg.LLMTimeoutS)
	}
	return &cfg, nil
}
