package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/uicheck/api"
	"github.com/use-agent/uicheck/api/handler"
	"github.com/use-agent/uicheck/cache"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.Harness.Validate(); err != nil {
		return &exitError{code: 2, err: err}
	}
	slog.Info("uicheck starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxRuns", cfg.Server.MaxConcurrentRuns,
	)

	store := cache.New(cfg.Store.MaxEntries, cfg.Store.TTL)
	defer store.Close()

	// Runs outlive the request that started them but not the server.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	runs := handler.NewRunManager(runCtx, a.launch, cfg, store, a.opts...)

	startTime := time.Now()
	router := api.NewRouter(runs, store, cfg, startTime)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Cancelled runs still close their contexts and browsers.
	cancelRuns()
	runs.Wait()
	slog.Info("uicheck stopped")
	return nil
}
