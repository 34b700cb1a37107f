package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpHandler "payment-ledger/internal/adapter/http/handler"
	"payment-ledger/internal/authz"
	"payment-ledger/internal/service"
	"payment-ledger/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the admin HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret is required (LEDGER_JWT_SECRET)")
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("version", Version).
		Msg("Starting payment ledger")

	tp, err := telemetry.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint, log)
	if err != nil {
		log.Warn().Err(err).Msg("tracing unavailable, continuing without it")
	}
	if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	app, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	enforcer, err := authz.NewEnforcer(cfg.Authz.ExtraPolicies)
	if err != nil {
		return fmt.Errorf("loading authz policies: %w", err)
	}

	gin.SetMode(cfg.Server.Mode)
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Lifecycle:      app.lifecycle,
		Query:          app.query,
		TokenSvc:       service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer),
		Authorizer:     enforcer,
		RateLimitStore: app.rateLimitStore,
		HealthCheckers: app.health,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
