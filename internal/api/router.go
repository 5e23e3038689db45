package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/admin"
	"github.com/hackgods/telecare/internal/appointment"
	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/consultation"
	"github.com/hackgods/telecare/internal/onboarding"
	redisclient "github.com/hackgods/telecare/internal/redis"
	"github.com/hackgods/telecare/internal/signaling"
)

type AppointmentService interface {
	Book(ctx context.Context, req appointment.BookRequest, caller auth.Principal) (*appointment.Appointment, error)
	Stats(ctx context.Context, caller auth.Principal) (appointment.Stats, error)
	Get(ctx context.Context, id uuid.UUID, caller auth.Principal) (*appointment.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, status string) ([]appointment.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, status string) ([]appointment.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to appointment.Status, caller auth.Principal, reason string) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, caller auth.Principal) (*appointment.Appointment, error)
}

type ConsultationService interface {
	Save(ctx context.Context, in consultation.SaveInput, caller auth.Principal) (*consultation.Record, error)
	Get(ctx context.Context, id uuid.UUID, caller auth.Principal) (*consultation.Record, error)
	UpdatePrescription(ctx context.Context, id uuid.UUID, p consultation.Prescription, caller auth.Principal) (*consultation.Record, error)
	PrescriptionPDF(ctx context.Context, id uuid.UUID, caller auth.Principal) ([]byte, error)
}

type OnboardingService interface {
	SaveStep(ctx context.Context, userID uuid.UUID, role auth.Role, step int, fields map[string]any) (*onboarding.Onboarding, error)
	Status(ctx context.Context, userID uuid.UUID, role auth.Role) (onboarding.Status, error)
	Data(ctx context.Context, userID uuid.UUID, role auth.Role) (*onboarding.Onboarding, error)
}

type AdminService interface {
	PendingDoctors(ctx context.Context) (admin.PendingDoctors, error)
	ApproveDoctor(ctx context.Context, id, adminID uuid.UUID) (*admin.Doctor, error)
	RejectDoctor(ctx context.Context, id, adminID uuid.UUID, reason string) (*admin.Doctor, error)
	ListPatients(ctx context.Context, f admin.PatientFilter) (admin.PatientPage, error)
	PatientStats(ctx context.Context) (admin.PatientStats, error)
	PatientByID(ctx context.Context, id uuid.UUID) (*admin.Patient, error)
	SetPatientActive(ctx context.Context, id uuid.UUID, active bool) (*admin.Patient, error)
}

type RouterConfig struct {
	Appointments  AppointmentService
	Consultations ConsultationService
	Onboarding    OnboardingService
	Admin         AdminService

	Issuer    *auth.Issuer
	Signaling http.Handler
	Hub       *signaling.Hub
	Presence  redisclient.Presence

	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// /ws authenticates from ?token= on its own.
	if cfg.Signaling != nil {
		r.Handle("/ws", cfg.Signaling)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.Issuer))

		r.Route("/appointments", func(r chi.Router) {
			r.With(RequireRole(auth.RolePatient)).Post("/", bookAppointmentHandler(cfg.Appointments))
			r.Get("/stats", appointmentStatsHandler(cfg.Appointments))
			r.With(RequireRole(auth.RoleDoctor, auth.RoleAdmin)).
				Get("/doctor/{doctorID}", listDoctorAppointmentsHandler(cfg.Appointments))
			r.With(RequireRole(auth.RolePatient, auth.RoleAdmin)).
				Get("/patient/{patientID}", listPatientAppointmentsHandler(cfg.Appointments))
			r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
			r.Patch("/{id}/status", updateAppointmentStatusHandler(cfg.Appointments))
			r.With(RequireRole(auth.RoleDoctor, auth.RoleAdmin)).
				Patch("/{id}/complete", completeAppointmentHandler(cfg.Appointments))
		})

		r.Route("/consultations", func(r chi.Router) {
			r.With(RequireRole(auth.RoleDoctor)).Post("/", saveConsultationHandler(cfg.Consultations))
			r.Get("/{id}", getConsultationHandler(cfg.Consultations))
			r.Get("/{id}/prescription.pdf", prescriptionPDFHandler(cfg.Consultations))
			r.With(RequireRole(auth.RoleDoctor)).
				Patch("/{id}/prescription", updatePrescriptionHandler(cfg.Consultations))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(auth.RoleAdmin))
			r.Get("/doctors/pending", pendingDoctorsHandler(cfg.Admin))
			r.Patch("/doctors/{id}/approve", approveDoctorHandler(cfg.Admin))
			r.Patch("/doctors/{id}/reject", rejectDoctorHandler(cfg.Admin))
			r.Get("/patients", listPatientsHandler(cfg.Admin))
			r.Get("/patients/stats", patientStatsHandler(cfg.Admin))
			r.Get("/patients/{id}", getPatientHandler(cfg.Admin))
			r.Patch("/patients/{id}/status", patientStatusHandler(cfg.Admin))
		})

		r.Route("/{role}/onboarding", func(r chi.Router) {
			r.Use(RequireRole(auth.RoleDoctor, auth.RolePatient))
			r.Get("/status", onboardingStatusHandler(cfg.Onboarding))
			r.Get("/data", onboardingDataHandler(cfg.Onboarding))
			r.Post("/save", saveOnboardingHandler(cfg.Onboarding))
		})
	})

	return r
}
