package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
)

type RouterConfig struct {
	Service     *booking.Service
	Idempotency *IdempotencyCache
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Logger      zerolog.Logger
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	logger := cfg.Logger.With().Str("component", "http").Logger()
	h := &handlers{svc: cfg.Service, idem: cfg.Idempotency, logger: logger}

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/slots", func(r chi.Router) {
		r.Post("/", h.createSlot)
		r.Get("/", h.listSlots)
		r.Post("/bulk", h.createSlots)
		r.Post("/block", h.blockSlots)
		r.Post("/unblock", h.unblockSlots)
		r.Get("/{id}", h.getSlot)
		r.Post("/{id}/cancel", h.cancelSlot)
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.createAppointment)
		r.Get("/", h.listAppointments)
		r.Get("/{id}", h.getAppointment)
		r.Get("/{id}/chain", h.rescheduleChain)
		r.Post("/{id}/cancel", h.cancelAppointment)
		r.Post("/{id}/reschedule", h.rescheduleAppointment)
		r.Post("/{id}/confirm", h.lifecycle(cfg.Service.ConfirmAppointment))
		r.Post("/{id}/check-in", h.lifecycle(cfg.Service.CheckIn))
		r.Post("/{id}/start", h.lifecycle(cfg.Service.StartAppointment))
		r.Post("/{id}/complete", h.lifecycle(cfg.Service.CompleteAppointment))
		r.Post("/{id}/no-show", h.lifecycle(cfg.Service.MarkNoShow))
	})

	r.Route("/waitlist", func(r chi.Router) {
		r.Post("/", h.joinWaitlist)
		r.Get("/", h.listWaitlist)
		r.Post("/promote", h.promoteWaitlist)
		r.Get("/{id}", h.getWaitlistEntry)
		r.Post("/{id}/offer", h.offerSlot)
		r.Post("/{id}/accept", h.acceptOffer)
		r.Post("/{id}/decline", h.waitlistStep(cfg.Service.DeclineOffer))
		r.Post("/{id}/cancel", h.waitlistStep(cfg.Service.CancelWaitlistEntry))
	})

	return r
}
