package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const maxErrorBody = 512

// HTTPDispatcher POSTs requests as JSON to the job service.
type HTTPDispatcher struct {
	endpoint string
	auth     Authorizer
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPDispatcher creates a dispatcher for endpoint. A nil client gets a
// 10 second timeout; a nil auth sends no credentials.
func NewHTTPDispatcher(endpoint string, auth Authorizer, client *http.Client, logger *slog.Logger) *HTTPDispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if auth == nil {
		auth = NoAuth{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPDispatcher{endpoint: endpoint, auth: auth, client: client, logger: logger}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding job request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building job request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.JobID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	if err := d.auth.Authorize(ctx, httpReq); err != nil {
		return fmt.Errorf("authorizing job request: %w", err)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending job %s: %w", req.JobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("job service rejected %s: %s: %s", req.JobID, resp.Status, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	d.logger.DebugContext(ctx, "job submitted", "job_id", req.JobID, "job_type", req.JobType, "status", resp.StatusCode)
	return nil
}
