package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/galley/internal/domain/access"
	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/record"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/domain/workflow"
)

// RecordService defines record operations needed by MCP.
type RecordService interface {
	Create(ctx context.Context, tenantID string, payload json.RawMessage) (*record.Record, error)
	Get(ctx context.Context, tenantID, id string) (*record.Record, error)
	Update(ctx context.Context, tenantID, id string, modify record.Modifier, opts ...record.UpdateOption) (*record.Record, error)
}

// SubmissionService defines workflow operations needed by MCP.
type SubmissionService interface {
	Create(ctx context.Context, actor scope.Principal, req workflow.CreateRequest) (*workflow.Submission, error)
	Get(ctx context.Context, tenantID, id string) (*workflow.Submission, error)
	GetBySlug(ctx context.Context, tenantID, slug string) (*workflow.Submission, error)
	Transition(ctx context.Context, actor scope.Principal, cmd workflow.TransitionCommand) (*workflow.Submission, error)
	CompleteJob(ctx context.Context, req workflow.CompletionRequest) (*workflow.Submission, error)
	AvailableTransitions(ctx context.Context, actor scope.Principal, submissionID string) ([]workflow.Transition, error)
}

// AccessService defines magic link operations needed by MCP.
type AccessService interface {
	Create(ctx context.Context, actor scope.Principal, req access.CreateRequest) (*access.Token, error)
	Get(ctx context.Context, tenantID, id string) (*access.Token, error)
	Revoke(ctx context.Context, actor scope.Principal, id string) (*access.Token, error)
	Reactivate(ctx context.Context, actor scope.Principal, id string) (*access.Token, error)
	Delete(ctx context.Context, actor scope.Principal, id string) error
	ValidateAndLogAccess(ctx context.Context, tokenID string, attempt access.Attempt) (access.Result, error)
	AccessLog(ctx context.Context, tenantID, tokenID string, limit int) ([]access.LogEntry, error)
}

// ActivityService defines activity operations needed by MCP.
type ActivityService interface {
	List(ctx context.Context, tenantID string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Records     RecordService
	Submissions SubmissionService
	Access      AccessService
	Activity    ActivityService
}

// PrincipalResolver resolves the caller behind a bearer token.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, token string) (scope.Principal, error)
}

// Config contains server configuration.
type Config struct {
	Services      Services
	Resolver      PrincipalResolver
	AuthEnabled   bool
	Default       scope.Principal
	TransportMode string // "stdio" or "http"
	Version       string
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "galley",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio is a local transport; it always runs as the default principal.
	if cfg.TransportMode == "stdio" || !cfg.AuthEnabled {
		server.AddReceivingMiddleware(noAuthMiddleware(cfg.Default))
	} else {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services, cfg.Logger)

	return server
}
