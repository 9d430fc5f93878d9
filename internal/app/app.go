// Package app assembles storage, domain services and transports from
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/galley/internal/config"
	"github.com/rpggio/galley/internal/domain/access"
	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/record"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/domain/workflow"
	"github.com/rpggio/galley/internal/jobs"
	"github.com/rpggio/galley/internal/mcp"
	"github.com/rpggio/galley/internal/notify"
	"github.com/rpggio/galley/internal/storage"
	"github.com/rpggio/galley/internal/transport"
)

// Version is reported to MCP clients. It is set at build time.
var Version = "dev"

// App holds every wired component.
type App struct {
	Config      config.Config
	Backend     *storage.Backend
	Workflows   *workflow.Registry
	Scopes      *scope.Service
	Records     *record.Service
	Activity    *activity.Service
	Engine      *workflow.Engine
	Submissions *workflow.Service
	Access      *access.Gate
	MCP         *sdkmcp.Server

	logger *slog.Logger
}

// New opens the database, applies migrations, loads workflows and builds
// the services.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	backend, err := storage.Open(ctx, cfg.DB.URL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := backend.Migrate(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	registry, err := loadWorkflows(cfg.Workflows.Dir, logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	dispatcher, err := newDispatcher(cfg.Jobs, logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	var notifier workflow.Notifier = notify.Nop{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout, logger)
	}

	scopes := scope.NewService(backend.Grants, backend.APIKeys, logger)
	records := record.NewService(backend.Records, backend.Activity, backend.Transactor, record.RetryPolicy{
		MaxRetries: cfg.OCC.MaxRetries,
		Delay:      cfg.OCC.RetryDelay,
	}, logger)
	activities := activity.NewService(backend.Activity, logger)
	engine := workflow.NewEngine(workflow.EngineConfig{
		Submissions:       backend.Submissions,
		Activities:        backend.Activity,
		Transactor:        backend.Transactor,
		Scopes:            scopes,
		Slugs:             workflow.NewSlugAssigner(backend.Slugs),
		Dispatcher:        dispatcher,
		Notifier:          notifier,
		MaxRetries:        cfg.OCC.MaxRetries,
		BackgroundTimeout: cfg.Jobs.BackgroundTimeout,
		Logger:            logger,
	})
	submissions := workflow.NewService(backend.Submissions, backend.Slugs, backend.Activity, backend.Transactor, registry, scopes, engine, logger)
	gate := access.NewGate(backend.Tokens, backend.AccessLog, backend.Activity, backend.Transactor, logger)

	a := &App{
		Config:      cfg,
		Backend:     backend,
		Workflows:   registry,
		Scopes:      scopes,
		Records:     records,
		Activity:    activities,
		Engine:      engine,
		Submissions: submissions,
		Access:      gate,
		logger:      logger,
	}
	a.MCP = mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Records:     records,
			Submissions: submissions,
			Access:      gate,
			Activity:    activities,
		},
		Resolver:      scopes,
		AuthEnabled:   cfg.Auth.Enabled,
		Default:       a.DefaultPrincipal(),
		TransportMode: cfg.Transport.Mode,
		Version:       Version,
		Logger:        logger,
	})
	return a, nil
}

// DefaultPrincipal is who callers act as when auth is disabled.
func (a *App) DefaultPrincipal() scope.Principal {
	return scope.Principal{TenantID: a.Config.Auth.DefaultTenant, ActorID: a.Config.Auth.DefaultActor}
}

// Handler returns the HTTP router serving the REST API and MCP.
func (a *App) Handler() http.Handler {
	auth := transport.AuthMiddleware(a.Scopes)
	if !a.Config.Auth.Enabled {
		auth = transport.StaticPrincipal(a.DefaultPrincipal())
	}
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return a.MCP
	}, &sdkmcp.StreamableHTTPOptions{
		Stateless:      false,
		SessionTimeout: 30 * time.Minute,
	})
	return transport.NewServer(transport.Services{
		Records:   a.Records,
		Workflows: a.Submissions,
		Access:    a.Access,
		Activity:  a.Activity,
	}, transport.Options{
		Auth:   auth,
		MCP:    mcpHandler,
		Logger: a.logger,
	})
}

// Close waits for in-flight job dispatches and notifications, then closes
// the database.
func (a *App) Close() error {
	a.Engine.Wait()
	return a.Backend.Close()
}

// loadWorkflows reads the workflow directory. A missing directory yields an
// empty registry so a fresh install can still serve records and links.
func loadWorkflows(dir string, logger *slog.Logger) (*workflow.Registry, error) {
	registry, err := workflow.LoadDir(dir)
	if err == nil {
		logger.Info("workflows loaded", "dir", dir, "count", len(registry.List()))
		return registry, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("workflow directory not found, no workflows loaded", "dir", dir)
		return workflow.NewRegistry()
	}
	return nil, fmt.Errorf("loading workflows: %w", err)
}

func newDispatcher(cfg config.JobsConfig, logger *slog.Logger) (workflow.Dispatcher, error) {
	if cfg.Endpoint == "" {
		return jobs.NewLogDispatcher(logger), nil
	}
	auth, err := jobs.NewAuthorizer(jobs.AuthConfig{
		Kind:          jobs.AuthKind(cfg.Auth.Kind),
		APIKey:        cfg.Auth.APIKey,
		APIKeyHeader:  cfg.Auth.APIKeyHeader,
		SigningSecret: cfg.Auth.SigningSecret,
		Issuer:        cfg.Auth.Issuer,
		Audience:      cfg.Auth.Audience,
		TokenTTL:      cfg.Auth.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring job auth: %w", err)
	}
	return jobs.NewHTTPDispatcher(cfg.Endpoint, auth, &http.Client{Timeout: cfg.Timeout}, logger), nil
}
