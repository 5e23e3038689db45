package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrUnknownStatus       = errors.New("unknown appointment status")
	ErrDoctorNotFound      = errors.New("doctor not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Booking
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	// FindActiveForSlot returns the pending or confirmed appointment holding the
	// doctor's slot, or ErrAppointmentNotFound.
	FindActiveForSlot(ctx context.Context, doctorID uuid.UUID, day time.Time, startTime string) (*Appointment, error)
	// CreatePending inserts a pending appointment and its first history row.
	CreatePending(ctx context.Context, a Appointment, bookedBy uuid.UUID) (*Appointment, error)
	CountByStatus(ctx context.Context, userID uuid.UUID, asDoctor bool) (map[Status]int, error)

	// status nil means every status
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, status *Status) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, status *Status) ([]Appointment, error)

	// UpdateStatus applies change only while the stored status still equals change.From.
	// It returns ErrAppointmentNotFound when the row moved on.
	UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) (*Appointment, error)

	// Expiry worker
	FindPendingOnOrBefore(ctx context.Context, day time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
