package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// webhookPayload is the JSON document POSTed for every alert.
type webhookPayload struct {
	Level      string   `json:"level"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	Key        string   `json:"key"`
	Instrument string   `json:"instrument,omitempty"`
	Trigger    string   `json:"trigger,omitempty"`
	Notes      []string `json:"notes,omitempty"`
	SentAtMs   int64    `json:"sent_at_ms"`
}

// WebhookNotifier POSTs alerts as JSON to a generic HTTP endpoint. Any
// non-2xx response is a failed send.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Level:      string(alert.Level),
		Title:      alert.Title,
		Message:    alert.Message,
		Key:        alert.Key,
		Instrument: alert.Instrument,
		Trigger:    alert.Trigger,
		Notes:      alert.Notes,
		SentAtMs:   w.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal %s: %w", alert.Key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post %s: %w", alert.Key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook: %s: status %d: %s", alert.Key, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	slog.Debug("[webhook] delivered", "key", alert.Key, "instrument", alert.Instrument, "status", resp.StatusCode)
	return nil
}
