package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/rpggio/galley/internal/app"
	"github.com/rpggio/galley/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and MCP tools",
		Long: `Serve the REST API with MCP mounted at /mcp, or speak MCP over
stdin/stdout with --transport stdio.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if transport != "" {
				cfg.Transport.Mode = transport
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			// stdout carries the protocol in stdio mode.
			logWriter := cmd.OutOrStdout()
			if cfg.Transport.Mode == "stdio" {
				logWriter = cmd.ErrOrStderr()
			}
			if cfg.Log.Path != "" {
				fileWriter, err := newLogFileWriter(cfg.Log.Path)
				if err != nil {
					return fmt.Errorf("opening log file: %w", err)
				}
				defer fileWriter.Close()
				logWriter = fileWriter
			}
			logger := newLogger(logWriter, cfg.Log.Level)

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
			if err != nil {
				return fmt.Errorf("setting up tracing: %w", err)
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := shutdownTracing(flushCtx); err != nil {
					logger.Warn("trace flush failed", "error", err)
				}
			}()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Error("close failed", "error", err)
				}
			}()

			if cfg.Transport.Mode == "stdio" {
				return runStdio(ctx, logger, a.MCP, &sdkmcp.StdioTransport{})
			}
			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			return runHTTP(ctx, logger, addr, a.Handler())
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", "", "override transport mode (http|stdio)")
	return cmd
}

func runStdio(ctx context.Context, logger *slog.Logger, server *sdkmcp.Server, transport sdkmcp.Transport) error {
	logger.Info("starting stdio transport", "auth", "disabled")
	// Run returns when stdin closes or ctx is canceled.
	if err := server.Run(ctx, transport); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

func runHTTP(ctx context.Context, logger *slog.Logger, addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
