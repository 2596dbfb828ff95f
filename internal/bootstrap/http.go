package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// NewHTTPServer returns a server with the timeouts used in every environment.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// ServeConfig contains what Serve needs to run and stop the server.
type ServeConfig struct {
	Server *http.Server
	// Listener is optional; when nil the server listens on Server.Addr.
	Listener net.Listener
	// OnShutdown runs after the server stopped accepting requests.
	OnShutdown func(ctx context.Context) error
	Logger     *slog.Logger
}

// Serve runs the server until ctx is cancelled or the server fails, then shuts
// it down gracefully.
func Serve(ctx context.Context, cfg ServeConfig) error {
	if cfg.Server == nil {
		return errors.New("server is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.InfoContext(gctx, "starting HTTP server", "addr", cfg.Server.Addr)
		var err error
		if cfg.Listener != nil {
			err = cfg.Server.Serve(cfg.Listener)
		} else {
			err = cfg.Server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		err := cfg.Server.Shutdown(shutdownCtx)
		if cfg.OnShutdown != nil {
			err = errors.Join(err, cfg.OnShutdown(shutdownCtx))
		}
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("HTTP server stopped")
		return nil
	})
	return g.Wait()
}
