package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookNotifier POSTs alerts as JSON to a generic HTTP endpoint
// (Discord/Slack-style incoming webhooks, or anything self-hosted).
type WebhookNotifier struct {
	http *resty.Client
	url  string
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		http: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(1),
		url: url,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	resp, err := w.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"level":   string(alert.Level),
			"title":   alert.Title,
			"message": alert.Message,
			"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook: status %d", resp.StatusCode())
	}

	log.Printf("[notify] webhook alert sent: %s", alert.Title)
	return nil
}
