package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ParseStatus accepts only the five known statuses.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCancelled, StatusCompleted:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// Next lists the statuses reachable from s. Terminal statuses return nil.
func (s Status) Next() []Status {
	switch s {
	case StatusPending:
		return []Status{StatusConfirmed, StatusRejected, StatusCancelled}
	case StatusConfirmed:
		return []Status{StatusCompleted, StatusCancelled}
	case StatusRejected, StatusCancelled, StatusCompleted:
		return nil
	default:
		panic(fmt.Sprintf("appointment: unhandled status %q", string(s)))
	}
}

func (s Status) CanTransition(to Status) bool {
	for _, n := range s.Next() {
		if n == to {
			return true
		}
	}
	return false
}

type ConsultationMode string

const (
	ModeTele     ConsultationMode = "tele"
	ModeInPerson ConsultationMode = "in_person"
)

type Person struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
}

type TimeSlot struct {
	StartTime string `json:"startTime" validate:"required,datetime=15:04"` // HH:MM
	EndTime   string `json:"endTime" validate:"required,datetime=15:04"`   // HH:MM
}

type Appointment struct {
	ID                 uuid.UUID        `json:"id"`
	Patient            Person           `json:"patient"`
	Doctor             Person           `json:"doctor"`
	AppointmentDate    time.Time        `json:"appointmentDate"`
	TimeSlot           TimeSlot         `json:"timeSlot"`
	ConsultationMode   ConsultationMode `json:"consultationMode"`
	ReasonForVisit     string           `json:"reasonForVisit"`
	Symptoms           string           `json:"symptoms,omitempty"`
	Status             Status           `json:"status"`
	RejectionReason    string           `json:"rejectionReason,omitempty"`
	CancellationReason string           `json:"cancellationReason,omitempty"`
	CancelledBy        string           `json:"cancelledBy,omitempty"`
	VideoCallEnabled   bool             `json:"videoCallEnabled"`
	ConfirmedAt        *time.Time       `json:"confirmedAt,omitempty"`
	CompletedAt        *time.Time       `json:"completedAt,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// EndsAt combines the appointment date with the slot end time in loc.
func (a Appointment) EndsAt(loc *time.Location) (time.Time, error) {
	end, err := time.ParseInLocation("15:04", a.TimeSlot.EndTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot end %q: %w", a.TimeSlot.EndTime, err)
	}
	y, m, d := a.AppointmentDate.Date()
	return time.Date(y, m, d, end.Hour(), end.Minute(), 0, 0, loc), nil
}

// HasParticipant reports whether id is the patient or the doctor.
func (a Appointment) HasParticipant(id uuid.UUID) bool {
	return a.Patient.ID == id || a.Doctor.ID == id
}

// StatusChange carries the side data of one transition.
type StatusChange struct {
	From      Status
	To        Status
	ChangedBy *uuid.UUID
	ActorRole string
	Reason    string
	At        time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// BookRequest is what a patient submits to book an appointment.
type BookRequest struct {
	DoctorID         uuid.UUID        `json:"doctorId" validate:"required"`
	AppointmentDate  string           `json:"appointmentDate" validate:"required,datetime=2006-01-02"`
	TimeSlot         TimeSlot         `json:"timeSlot"`
	ConsultationMode ConsultationMode `json:"consultationMode" validate:"required,oneof=tele in_person"`
	ReasonForVisit   string           `json:"reasonForVisit" validate:"required"`
	Symptoms         string           `json:"symptoms"`
}

// Doctor is the booking view of a doctor account.
type Doctor struct {
	Person
	ApprovalStatus string
	IsActive       bool
}

// Bookable reports whether patients may book with the doctor.
func (d Doctor) Bookable() bool {
	return d.ApprovalStatus == "approved" && d.IsActive
}

// Stats counts one user's appointments by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Rejected  int `json:"rejected"`
}

// Add records n appointments in status s.
func (st *Stats) Add(s Status, n int) {
	switch s {
	case StatusPending:
		st.Pending += n
	case StatusConfirmed:
		st.Confirmed += n
	case StatusCompleted:
		st.Completed += n
	case StatusCancelled:
		st.Cancelled += n
	case StatusRejected:
		st.Rejected += n
	default:
		return
	}
	st.Total += n
}
