package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/appointment-booking-engine/internal/api"
	"github.com/hackgods/appointment-booking-engine/internal/app"
	"github.com/hackgods/appointment-booking-engine/internal/config"
	"github.com/hackgods/appointment-booking-engine/internal/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "api-server").Logger()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("lock_backend", cfg.LockBackend).
		Dur("offer_window", cfg.OfferWindow).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	idem, err := api.NewIdempotencyCache(cfg.IdempotencyCacheSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("idempotency cache")
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service:     a.Service,
			Idempotency: idem,
			PgPool:      a.PgPool,
			Redis:       a.Redis,
			Logger:      logger,
			Env:         cfg.Env,
			Version:     version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	case <-rootCtx.Done():
		logger.Info().Msg("shutting down api-server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
