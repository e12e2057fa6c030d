package notification

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// TelegramNotifier sends alerts through the Telegram Bot API.
type TelegramNotifier struct {
	http   *resty.Client
	token  string
	chatID string
}

// NewTelegramNotifier builds a Telegram backend. token is the Bot API token
// from @BotFather, chatID the target chat, group or channel.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		http: resty.New().
			SetBaseURL("https://api.telegram.org").
			SetTimeout(10 * time.Second).
			SetRetryCount(1),
		token:  token,
		chatID: chatID,
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	prefix := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		prefix = "⚠️"
	case AlertCritical:
		prefix = "🚨"
	}

	text := fmt.Sprintf("%s *%s*\n\n%s",
		prefix, escapeMarkdownV2(alert.Title), escapeMarkdownV2(alert.Message))

	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "MarkdownV2",
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode(), resp.String())
	}

	log.Printf("[notify] telegram alert sent: %s", alert.Title)
	return nil
}

// escapeMarkdownV2 escapes the characters Telegram MarkdownV2 reserves.
func escapeMarkdownV2(s string) string {
	const specials = `_*[]()~` + "`" + `>#+-=|{}.!`
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
