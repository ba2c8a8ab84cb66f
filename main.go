package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/cyderes/employee-batch-service/internal/auth"
	"github.com/cyderes/employee-batch-service/internal/config"
	"github.com/cyderes/employee-batch-service/internal/ingestion"
	"github.com/cyderes/employee-batch-service/internal/queue"
	"github.com/cyderes/employee-batch-service/internal/server"
	"github.com/cyderes/employee-batch-service/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Logging)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()

	// Initialize storage
	store, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	opts := []ingestion.Option{ingestion.WithJobTTL(cfg.Storage.JobTTL)}
	if cfg.Ingestion.Launcher == "sqs" {
		launcher, err := queue.NewSQSLauncher(ctx, cfg.Queue.URL, cfg.Storage.Region, logger)
		if err != nil {
			return err
		}
		opts = append(opts, ingestion.WithLauncher(launcher))
	}
	svc := ingestion.NewService(cfg.Ingestion, store, logger, opts...)

	var verifier *auth.Verifier
	if !cfg.Auth.Disabled {
		verifier, err = auth.NewVerifier(cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.JWKSURL)
		if err != nil {
			return fmt.Errorf("failed to initialize token verifier: %w", err)
		}
	} else {
		logger.Warn().Str("tenant_id", cfg.Auth.LocalTenant).Msg("auth disabled; all requests use the local tenant")
	}

	httpServer := server.NewServer(cfg.Server, svc, logger,
		server.WithMetrics(),
		server.WithAuth(auth.Middleware(verifier, auth.MiddlewareConfig{
			TenantClaim: cfg.Auth.TenantClaim,
			DisableAuth: cfg.Auth.Disabled,
			LocalTenant: cfg.Auth.LocalTenant,
		})),
	)

	// Handle graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Str("storage", cfg.Storage.Type).Msg("starting HTTP server")
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	case <-sigCtx.Done():
		logger.Info().Msg("shutdown signal received, gracefully shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// detached jobs keep running after their responses; give them the rest of the window
	if err := svc.Drain(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("background jobs still running at shutdown; they stay running in the ledger")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
