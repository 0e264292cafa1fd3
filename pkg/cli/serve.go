package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/handlers"
	"github.com/ekaya-inc/ekaya-assess/pkg/mcp"
	"github.com/ekaya-inc/ekaya-assess/pkg/middleware"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flag overrides for the serve command.
type ServeOptions struct {
	Transport string
	Port      string
}

func newServeCmd() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assessment workflow as MCP tools",
		Long: `Expose the assessment workflow to AI agents over the Model Context Protocol.

With --transport stdio (the default) the server speaks MCP on stdin/stdout and
logs to stderr. With --transport http it listens on bind_addr:port and serves
/mcp, /health, /ping and the read-only /api/reports endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := mustEnv(cmd)
			if err != nil {
				return err
			}
			if opts.Transport != "" {
				e.cfg.MCP.Transport = opts.Transport
			}
			if opts.Port != "" {
				e.cfg.MCP.Port = opts.Port
			}
			return runServe(cmd.Context(), e)
		},
	}

	cmd.Flags().StringVar(&opts.Transport, "transport", "", "stdio or http (overrides mcp.transport)")
	cmd.Flags().StringVar(&opts.Port, "port", "", "HTTP port (overrides mcp.port)")

	return cmd
}

func runServe(ctx context.Context, e *env) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	server := mcp.NewAssessmentServer(e.cfg.Version, a.service, a.healthInfo(), e.logger)

	switch e.cfg.MCP.Transport {
	case "stdio":
		if err := server.ServeStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio transport: %w", err)
		}
		return nil
	case "http":
		return serveHTTP(ctx, a, newRouter(a, server))
	default:
		return fmt.Errorf("unsupported mcp transport %q", e.cfg.MCP.Transport)
	}
}

// newRouter mounts the MCP endpoint next to the health and report routes.
func newRouter(a *app, server *mcp.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(a.logger.Named("http")))

	handlers.NewHealthHandler(a.cfg, a.pools, a.logger).RegisterRoutes(r)
	handlers.NewReportsHandler(a.reports, a.logger).RegisterRoutes(r)

	mcpHandler := middleware.MCPRequestLogger(a.logger.Named("mcp-http"))(server.NewStreamableHTTPServer())
	r.Handle("/mcp", mcpHandler)

	return r
}

func serveHTTP(ctx context.Context, a *app, handler http.Handler) error {
	addr := net.JoinHostPort(a.cfg.MCP.BindAddr, a.cfg.MCP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Serving MCP over HTTP",
			zap.String("addr", addr),
			zap.String("version", a.cfg.Version),
			zap.String("lakehouse", a.cfg.Lakehouse.Type))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
