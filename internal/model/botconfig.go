package model

import (
	"fmt"
	"time"
)

// BotConfig holds the trading parameters the bot runs with. A config is
// immutable per version; every save produces a new version entry.
type BotConfig struct {
	Version         int       `json:"version"`
	UpdatedAt       time.Time `json:"updated_at"`
	Symbols         []string  `json:"symbols"`
	Interval        string    `json:"interval"`
	CheckInterval   int       `json:"check_interval"` // seconds between cycles
	InitialBalance  float64   `json:"initial_balance"`
	StopLossPct     float64   `json:"stop_loss_pct"`
	TakeProfitPct   float64   `json:"take_profit_pct"`
	MaxPositions    int       `json:"max_positions"`
	RiskPerTradePct float64   `json:"risk_per_trade_pct"`
	MaxLeverage     float64   `json:"max_leverage"`
	SystemPrompt    string    `json:"system_prompt"`
}

// DefaultBotConfig returns the configuration seeded on first run.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Symbols:         []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "DOGEUSDT", "BNBUSDT"},
		Interval:        "3m",
		CheckInterval:   180,
		InitialBalance:  10000,
		StopLossPct:     5.0,
		TakeProfitPct:   5.0,
		MaxPositions:    3,
		RiskPerTradePct: 2.0,
		MaxLeverage:     10,
		SystemPrompt: `You are a crypto trading expert. Analyze market data and positions to decide:
- "hold": Keep current position
- "entry": Open new position with side, quantity, stop_loss, profit_target, leverage
- "close": Close existing position

Return JSON with decisions for each coin.`,
	}
}

// Validate checks that the config is runnable. A config error at startup is
// the only fatal error class in the system.
func (c *BotConfig) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: no symbols configured")
	}
	if c.CheckInterval < 1 {
		return fmt.Errorf("config: check_interval must be >= 1s, got %d", c.CheckInterval)
	}
	if c.InitialBalance <= 0 {
		return fmt.Errorf("config: initial_balance must be positive, got %v", c.InitialBalance)
	}
	if c.StopLossPct <= 0 || c.TakeProfitPct <= 0 {
		return fmt.Errorf("config: stop_loss_pct and take_profit_pct must be positive")
	}
	if c.MaxPositions < 1 {
		return fmt.Errorf("config: max_positions must be >= 1, got %d", c.MaxPositions)
	}
	if c.MaxLeverage < 1 {
		return fmt.Errorf("config: max_leverage must be >= 1, got %v", c.MaxLeverage)
	}
	return nil
}
