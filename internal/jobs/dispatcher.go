// Package jobs is the client side of the external job-execution service.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Request is the body submitted to the job service. JobID doubles as the
// correlation id the service echoes back on completion.
type Request struct {
	JobID   string          `json:"jobId"`
	JobType string          `json:"jobType"`
	Payload json.RawMessage `json:"payload"`
}

// Dispatcher submits a job. Callers treat it as fire-and-forget: a failure
// is reported but never retried.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// LogDispatcher records requests in the log instead of sending them. It is
// used when no job endpoint is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, req Request) error {
	d.logger.InfoContext(ctx, "job not sent, no endpoint configured",
		"job_id", req.JobID,
		"job_type", req.JobType,
		"payload_bytes", len(req.Payload))
	return nil
}
