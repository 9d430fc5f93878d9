// Package notify delivers best-effort status change notifications.
package notify

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

// Event describes a committed status change.
type Event struct {
	TenantID     string     `json:"tenant_id"`
	SubmissionID string     `json:"submission_id"`
	Title        string     `json:"title"`
	From         string     `json:"from"`
	To           string     `json:"to"`
	ActorID      string     `json:"actor_id"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	Slug         string     `json:"slug,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// Notifier delivers events. Delivery failures never affect the change that
// triggered them.
type Notifier interface {
	StatusChanged(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) StatusChanged(context.Context, Event) error { return nil }

// Webhook posts events as JSON. The body carries a human readable text field
// so chat webhooks render it directly.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}, logger: logger}
}

type webhookBody struct {
	Text  string `json:"text"`
	Event Event  `json:"event"`
}

func (w *Webhook) StatusChanged(ctx context.Context, event Event) error {
	body, err := json.Marshal(webhookBody{
		Text:  fmt.Sprintf("%q moved from %s to %s", event.Title, event.From, event.To),
		Event: event,
	})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building notification: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %s", resp.Status)
	}
	w.logger.DebugContext(ctx, "notification delivered", "submission_id", event.SubmissionID, "to", event.To)
	return nil
}
