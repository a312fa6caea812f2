package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-booking-engine/internal/app"
	"github.com/hackgods/appointment-booking-engine/internal/booking"
	"github.com/hackgods/appointment-booking-engine/internal/config"
	"github.com/hackgods/appointment-booking-engine/internal/logging"
)

// offer-sweeper expires waitlist offers whose window has passed. Reads
// already expire stale offers lazily; the sweeper keeps the stored state
// current for reporting and for the event log.
func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "offer-sweeper").Logger()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("offer-sweeper starting up")
	if !cfg.UsesPostgres() {
		logger.Fatal().Msg("POSTGRES_DSN is required: the in-memory store is not shared with the api-server")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	// Run once at startup
	runOnce(rootCtx, a.Service, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping offer sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, a.Service, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.ExpireStaleOffers(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("sweep failed")
		return
	}
	logger.Info().Int("expired", n).Dur("took", time.Since(start)).Msg("sweep complete")
}
