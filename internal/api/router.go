package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-availability/internal/appointment"
	"github.com/hackgods/doctor-availability/internal/archive"
	"github.com/hackgods/doctor-availability/internal/doctor"
	"github.com/hackgods/doctor-availability/internal/patient"
)

type RouterConfig struct {
	Doctors      *doctor.Service
	Patients     *patient.Service
	Appointments *appointment.Service
	Archive      *archive.Service
	Availability AvailabilityChecker

	// PgPool and Redis only feed the readiness probe and may be nil.
	PgPool *pgxpool.Pool
	Redis  *redis.Client

	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/doctors", func(r chi.Router) {
		r.Get("/", listDoctorsHandler(cfg.Doctors))
		r.Post("/", createDoctorHandler(cfg.Doctors))
		r.Get("/{id}", getDoctorHandler(cfg.Doctors))
		r.Put("/{id}/profile", updateDoctorProfileHandler(cfg.Doctors))
		r.Post("/{id}/availability", toggleAvailabilityHandler(cfg.Doctors))
		r.Post("/{id}/archive", setArchivedHandler(cfg.Archive, archive.KindDoctor, true))
		r.Post("/{id}/restore", setArchivedHandler(cfg.Archive, archive.KindDoctor, false))
		r.Get("/{id}/appointments/history", doctorHistoryHandler(cfg.Appointments))
	})

	r.Route("/patients", func(r chi.Router) {
		r.Get("/", listPatientsHandler(cfg.Patients))
		r.Post("/", createPatientHandler(cfg.Patients))
		r.Get("/{id}", getPatientHandler(cfg.Patients))
		r.Post("/{id}/archive", setArchivedHandler(cfg.Archive, archive.KindPatient, true))
		r.Post("/{id}/restore", setArchivedHandler(cfg.Archive, archive.KindPatient, false))
	})

	r.Get("/archive/{kind}", listArchivedHandler(cfg.Archive))

	r.Post("/availability/check", runAvailabilityCheckHandler(cfg.Availability))
	r.Get("/availability/last", lastAvailabilityReportHandler(cfg.Availability))

	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", listAppointmentsHandler(cfg.Appointments))
		r.Post("/", createAppointmentHandler(cfg.Appointments))
		r.Post("/seen", markSeenHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/complete", completeAppointmentHandler(cfg.Appointments))
		r.Put("/{id}/summary", attachSummaryHandler(cfg.Appointments))
	})

	r.Get("/dashboard", dashboardHandler(cfg.Appointments))

	return r
}
