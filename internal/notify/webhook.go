package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// webhookPayload is the JSON body POSTed for every message
type webhookPayload struct {
	Kind      Kind      `json:"kind"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Host      string    `json:"host"`
	SessionID string    `json:"session_id"`
	SentAt    time.Time `json:"sent_at"`
}

// WebhookNotifier mirrors every message to an HTTP endpoint as JSON
type WebhookNotifier struct {
	url       string
	host      string
	sessionID string
	http      *retryablehttp.Client
}

func NewWebhookNotifier(url, host, sessionID string) *WebhookNotifier {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = nil

	return &WebhookNotifier{
		url:       url,
		host:      host,
		sessionID: sessionID,
		http:      client,
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	data, err := json.Marshal(webhookPayload{
		Kind:      msg.Kind,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Host:      w.host,
		SessionID: w.sessionID,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		slog.Error("webhook failed", "kind", msg.Kind, "error", err)
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("webhook rejected", "kind", msg.Kind, "status", resp.StatusCode)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
