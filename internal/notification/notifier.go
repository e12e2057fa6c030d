// Package notification delivers trading alerts (fills, guardrail closes,
// persistent failures) to external channels.
package notification

import (
	"context"
	"fmt"
	"log"

	"llm-crypto-trader/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is a notification to be delivered.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier delivers an alert to one backend.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// TradeAlert builds an alert for a ledger trade event.
func TradeAlert(tr model.TradeRecord) Alert {
	if tr.Action == model.ActionOpen {
		return Alert{
			Level: AlertInfo,
			Title: fmt.Sprintf("Opened %s %s", tr.Side, tr.Symbol),
			Message: fmt.Sprintf("qty %.6f @ %.4f, fee %.4f USDT (%s)",
				tr.Quantity, tr.Price, tr.Fee, tr.Reason),
		}
	}
	level := AlertInfo
	if tr.PnL < 0 {
		level = AlertWarning
	}
	return Alert{
		Level: level,
		Title: fmt.Sprintf("Closed %s %s", tr.Side, tr.Symbol),
		Message: fmt.Sprintf("qty %.6f @ %.4f, pnl %+.4f USDT (%s)",
			tr.Quantity, tr.Price, tr.PnL, tr.Reason),
	}
}

// GuardrailAlert builds an alert for a stop-loss or take-profit close.
func GuardrailAlert(tr model.TradeRecord) Alert {
	a := TradeAlert(tr)
	a.Level = AlertWarning
	a.Title = fmt.Sprintf("Guardrail close: %s %s", tr.Side, tr.Symbol)
	return a
}

// Multi fans out to several backends; a failing backend is logged and does
// not block the others.
type Multi struct {
	backends []Notifier
}

// NewMulti builds a fan-out notifier. Nil backends are skipped.
func NewMulti(backends ...Notifier) *Multi {
	m := &Multi{}
	for _, b := range backends {
		if b != nil {
			m.backends = append(m.backends, b)
		}
	}
	return m
}

// Enabled reports whether any backend is configured.
func (m *Multi) Enabled() bool { return len(m.backends) > 0 }

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, b := range m.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] delivery failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LogNotifier writes alerts to the process log. Used when no external
// channel is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}
