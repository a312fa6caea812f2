// Package app assembles a booking.Service from configuration: the store
// (Postgres or in-memory), the slot locker (Redis or local) and the
// publisher chain.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
	"github.com/hackgods/appointment-booking-engine/internal/config"
	"github.com/hackgods/appointment-booking-engine/internal/db"
	"github.com/hackgods/appointment-booking-engine/internal/events"
	redisclient "github.com/hackgods/appointment-booking-engine/internal/redis"
	"github.com/hackgods/appointment-booking-engine/internal/store/memstore"
	"github.com/hackgods/appointment-booking-engine/internal/store/pgstore"
)

type App struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool // nil with the in-memory store
	Redis   *redis.Client // nil with local locks

	closers []func()
}

func Policy(cfg config.Config) booking.Policy {
	return booking.Policy{
		OfferWindow:        cfg.OfferWindow,
		CheckInOpensBefore: cfg.CheckInOpensBefore,
		CheckInClosesAfter: cfg.CheckInClosesAfter,
		ReminderLead:       cfg.ReminderLead,
	}
}

// New connects whatever cfg asks for. On error everything opened so far is
// closed again.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var store booking.Store
	publishers := events.Fanout{events.NewLogPublisher(logger)}

	if cfg.UsesPostgres() {
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.PostgresMaxConns})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.PgPool = pool
		a.closers = append(a.closers, pool.Close)

		if err := db.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		pg := pgstore.New(pool)
		store = pg
		publishers = append(publishers, events.NewEventLogPublisher(pg))
		logger.Info().Msg("connected to Postgres")
	} else {
		store = memstore.New()
		logger.Warn().Msg("POSTGRES_DSN not set, using the in-memory store")
	}

	locker := redisclient.NewLocalSlotLocker()
	if cfg.LockBackend == config.LockBackendRedis {
		rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		})
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	}

	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return nil, fmt.Errorf("amqp: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := amqpPub.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing amqp publisher")
			}
		})
		publishers = append(publishers, amqpPub)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing to AMQP")
	}

	a.Service = booking.NewService(store, locker, publishers, Policy(cfg), logger)
	return a, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
