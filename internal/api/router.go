package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type RouterConfig struct {
	Service *appointment.Service
	Logger  *zap.Logger
	Metrics *metrics.Collector
	PgPool  *pgxpool.Pool // nil with STORE=memory
	Redis   *redis.Client // nil with LOCK_BACKEND=local
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	h := NewHandler(cfg.Service, cfg.Metrics, cfg.Logger)

	r.Route("/patients", func(r chi.Router) {
		r.Post("/", h.registerPatient)
		r.Get("/", h.listPatients)
		r.Get("/{id}", h.getPatient)
		r.Put("/{id}/contact", h.updatePatientContact)
		r.Get("/{id}/appointments", h.listPatientAppointments)
	})

	r.Route("/physicians", func(r chi.Router) {
		r.Post("/", h.registerPhysician)
		r.Get("/", h.listPhysicians)
		r.Get("/{id}", h.getPhysician)
		r.Get("/{id}/appointments", h.listPhysicianAppointments)
		r.Get("/{id}/free-slots", h.freeSlots)
	})

	r.Get("/members", h.listMembers)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.bookAppointment)
		r.Get("/{id}", h.getAppointment)
		r.Post("/{id}/cancel", h.cancelAppointment)
		r.Post("/{id}/complete", h.completeAppointment)
		r.Get("/{id}/events", h.appointmentEvents)
	})

	return r
}
