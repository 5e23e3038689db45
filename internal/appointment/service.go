package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/notify"
	redisclient "github.com/hackgods/telecare/internal/redis"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentExpired       = "APPOINTMENT_EXPIRED"
)

var (
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrAppointmentBusy         = errors.New("appointment is being updated, please retry")
	ErrNotParticipant          = errors.New("caller is not a participant of this appointment")
	ErrInvalidBooking          = errors.New("invalid booking request")
	ErrDoctorNotBookable       = errors.New("doctor not found or not approved")
	ErrSlotTaken               = errors.New("slot already has an active appointment")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
)

var validate = validator.New()

// systemPrincipal acts for the expiry worker. Its cancellations go to the patient.
var systemPrincipal = auth.Principal{Role: "system"}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, notifier notify.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Book creates a pending appointment for the calling patient. Bookings of the
// same doctor slot are serialized by a key lock and re-checked inside it.
func (s *Service) Book(ctx context.Context, req BookRequest, caller auth.Principal) (*Appointment, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBooking, err)
	}
	day, err := time.Parse(time.DateOnly, req.AppointmentDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBooking, err)
	}
	start, _ := time.Parse("15:04", req.TimeSlot.StartTime)
	end, _ := time.Parse("15:04", req.TimeSlot.EndTime)
	if !end.After(start) {
		return nil, fmt.Errorf("%w: slot must end after it starts", ErrInvalidBooking)
	}
	req.TimeSlot = TimeSlot{StartTime: start.Format("15:04"), EndTime: end.Format("15:04")}

	doctor, err := s.repo.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, ErrDoctorNotBookable
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Bookable() {
		return nil, ErrDoctorNotBookable
	}

	var created *Appointment

	key := fmt.Sprintf("slot:%s:%s:%s", doctor.ID, req.AppointmentDate, req.TimeSlot.StartTime)
	err = s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
		existing, err := s.repo.FindActiveForSlot(lockCtx, doctor.ID, day, req.TimeSlot.StartTime)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check slot: %w", err)
		}
		if existing != nil {
			return ErrSlotTaken
		}

		appt, err := s.repo.CreatePending(lockCtx, Appointment{
			ID:               uuid.New(),
			Patient:          Person{ID: caller.UserID},
			Doctor:           doctor.Person,
			AppointmentDate:  day,
			TimeSlot:         req.TimeSlot,
			ConsultationMode: req.ConsultationMode,
			ReasonForVisit:   req.ReasonForVisit,
			Symptoms:         req.Symptoms,
			Status:           StatusPending,
			CreatedAt:        s.now(),
		}, caller.UserID)
		if err != nil {
			return fmt.Errorf("create pending appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"doctor_id":  doctor.ID.String(),
			"patient_id": caller.UserID.String(),
			"date":       req.AppointmentDate,
			"start_time": req.TimeSlot.StartTime,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	n := notify.Compose(notify.KindAppointmentRequested, created.Doctor.Email, created.Doctor.Name, map[string]string{
		"patientName":     created.Patient.Name,
		"appointmentDate": created.AppointmentDate.Format(time.DateOnly),
		"startTime":       created.TimeSlot.StartTime,
	})
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", created.ID.String()).Msg("booking notification failed")
	}
	return created, nil
}

// Stats counts the caller's appointments by status. Doctors count the
// appointments booked with them, everyone else their own bookings.
func (s *Service) Stats(ctx context.Context, caller auth.Principal) (Stats, error) {
	counts, err := s.repo.CountByStatus(ctx, caller.UserID, caller.Role == auth.RoleDoctor)
	if err != nil {
		return Stats{}, fmt.Errorf("count appointments: %w", err)
	}
	var st Stats
	for status, n := range counts {
		st.Add(status, n)
	}
	return st, nil
}

// Get returns one appointment. Admins see everything, others only their own.
func (s *Service) Get(ctx context.Context, id uuid.UUID, caller auth.Principal) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if caller.Role != auth.RoleAdmin && !appt.HasParticipant(caller.UserID) {
		return nil, ErrNotParticipant
	}
	return appt, nil
}

// ListByDoctor lists a doctor's appointments, optionally filtered by status.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status string) ([]Appointment, error) {
	filter, err := statusFilter(status)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.ListByDoctor(ctx, doctorID, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return list, nil
}

// ListByPatient lists a patient's appointments, optionally filtered by status.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, status string) ([]Appointment, error) {
	filter, err := statusFilter(status)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.ListByPatient(ctx, patientID, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return list, nil
}

// UpdateStatus moves an appointment along the transition table. Updates of the
// same appointment are serialized by a key lock and a compare-and-set on the old status.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, caller auth.Principal, reason string) (*Appointment, error) {
	if _, err := ParseStatus(string(to)); err != nil {
		return nil, err
	}

	var updated *Appointment

	err := s.locker.WithLock(ctx, "appointment:"+id.String(), func(lockCtx context.Context) error {
		appt, err := s.repo.GetAppointmentByID(lockCtx, id)
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}

		if caller.Role != auth.RoleAdmin && !appt.HasParticipant(caller.UserID) {
			return ErrNotParticipant
		}
		if !appt.Status.CanTransition(to) {
			return fmt.Errorf("%w: cannot change status from %s to %s", ErrInvalidStatusTransition, appt.Status, to)
		}

		changedBy := caller.UserID
		change := StatusChange{
			From:      appt.Status,
			To:        to,
			ChangedBy: &changedBy,
			ActorRole: string(caller.Role),
			Reason:    reason,
			At:        s.now(),
		}

		updated, err = s.repo.UpdateStatus(lockCtx, id, change)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrInvalidStatusTransition
			}
			return fmt.Errorf("update status: %w", err)
		}

		s.logEvent(lockCtx, id, EventAppointmentStatusChanged, map[string]any{
			"from":   change.From,
			"to":     change.To,
			"by":     caller.UserID.String(),
			"reason": reason,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrAppointmentBusy
		}
		return nil, err
	}

	s.notifyStatus(ctx, updated, caller)
	return updated, nil
}

// Complete marks a confirmed appointment completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, caller auth.Principal) (*Appointment, error) {
	return s.UpdateStatus(ctx, id, StatusCompleted, caller, "")
}

// ExpireStale cancels pending appointments whose slot already ended and tells
// each patient. It is intended to be called by the worker periodically.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.repo.FindPendingOnOrBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find pending appointments: %w", err)
	}

	expired := 0
	for _, appt := range candidates {
		end, err := appt.EndsAt(now.Location())
		if err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("skipping appointment with bad slot")
			continue
		}
		if !end.Before(now) {
			continue
		}

		updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusChange{
			From:      StatusPending,
			To:        StatusCancelled,
			ActorRole: "system",
			Reason:    "expired",
			At:        now,
		})
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to expire appointment")
			}
			continue
		}
		expired++
		s.logEvent(ctx, appt.ID, EventAppointmentExpired, map[string]any{
			"reason": "worker",
		})
		s.notifyStatus(ctx, updated, systemPrincipal)
	}

	return expired, nil
}

func (s *Service) notifyStatus(ctx context.Context, appt *Appointment, caller auth.Principal) {
	fields := map[string]string{
		"doctorName":      appt.Doctor.Name,
		"appointmentDate": appt.AppointmentDate.Format("2006-01-02"),
	}

	recipient := appt.Patient
	var kind notify.Kind
	switch appt.Status {
	case StatusConfirmed:
		kind = notify.KindAppointmentConfirmed
	case StatusRejected:
		kind = notify.KindAppointmentRejected
		fields["reason"] = appt.RejectionReason
	case StatusCancelled:
		kind = notify.KindAppointmentCancelled
		fields["reason"] = appt.CancellationReason
		// the other party hears about it
		if caller.UserID == appt.Patient.ID {
			recipient = appt.Doctor
		}
	case StatusCompleted:
		kind = notify.KindAppointmentCompleted
	case StatusPending:
		return
	default:
		panic(fmt.Sprintf("appointment: unhandled status %q", string(appt.Status)))
	}

	n := notify.Compose(kind, recipient.Email, recipient.Name, fields)
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Str("kind", string(kind)).Msg("notification failed")
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Str("appointment_id", appointmentID.String()).Msg("failed to insert event log")
	}
}

func statusFilter(status string) (*Status, error) {
	if status == "" {
		return nil, nil
	}
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
