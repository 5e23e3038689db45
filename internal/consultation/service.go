package consultation

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/appointment"
	"github.com/hackgods/telecare/internal/auth"
)

var (
	ErrNotAssignedDoctor = errors.New("only the assigned doctor can update the prescription")
	ErrInvalidInput      = errors.New("invalid consultation data")
)

var validate = validator.New()

// Appointments is the slice of the appointment service a consultation needs.
type Appointments interface {
	Get(ctx context.Context, id uuid.UUID, caller auth.Principal) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, caller auth.Principal) (*appointment.Appointment, error)
}

type Service struct {
	repo         Repository
	appointments Appointments
	logger       zerolog.Logger
}

func NewService(repo Repository, appointments Appointments, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		logger:       logger,
	}
}

// Save stores the consultation outcome and completes the appointment if needed.
func (s *Service) Save(ctx context.Context, in SaveInput, caller auth.Principal) (*Record, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	appt, err := s.appointments.Get(ctx, in.AppointmentID, caller)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.Upsert(ctx, in)
	if err != nil {
		return nil, err
	}

	if appt.Status != appointment.StatusCompleted {
		if _, err := s.appointments.Complete(ctx, appt.ID, caller); err != nil {
			// the record is kept; the status can be fixed from the dashboard
			s.logger.Warn().Err(err).
				Str("appointment_id", appt.ID.String()).
				Str("status", string(appt.Status)).
				Msg("could not mark appointment completed")
		}
	}

	s.logger.Info().
		Str("consultation_id", rec.ID.String()).
		Str("appointment_id", appt.ID.String()).
		Msg("consultation saved")

	return rec, nil
}

// Get looks the record up by its own id first and then by appointment id.
func (s *Service) Get(ctx context.Context, id uuid.UUID, caller auth.Principal) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrConsultationNotFound) {
		rec, err = s.repo.GetByAppointment(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if caller.Role != auth.RoleAdmin && caller.UserID != rec.DoctorID && caller.UserID != rec.PatientID {
		return nil, appointment.ErrNotParticipant
	}
	return rec, nil
}

func (s *Service) UpdatePrescription(ctx context.Context, id uuid.UUID, p Prescription, caller auth.Principal) (*Record, error) {
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.UserID != rec.DoctorID {
		return nil, ErrNotAssignedDoctor
	}

	return s.repo.UpdatePrescription(ctx, id, p)
}

// PrescriptionPDF renders the prescription of a record the caller may see.
func (s *Service) PrescriptionPDF(ctx context.Context, id uuid.UUID, caller auth.Principal) ([]byte, error) {
	rec, err := s.Get(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	return RenderPrescription(rec)
}
