package consultation

import (
	"time"

	"github.com/google/uuid"
)

type Summary struct {
	DoctorSummary         string   `json:"doctor_summary"`
	PatientSummary        string   `json:"patient_summary"`
	KeySymptoms           []string `json:"key_symptoms"`
	DiagnosisDiscussed    string   `json:"diagnosis_discussed"`
	MedicationsPrescribed []string `json:"medications_prescribed"`
	FollowUpInstructions  []string `json:"follow_up_instructions"`
	ImportantNotes        []string `json:"important_notes"`
}

type Frequency struct {
	Morning   bool `json:"morning"`
	Afternoon bool `json:"afternoon"`
	Night     bool `json:"night"`
}

// Label renders the frequency the way prescriptions print it, e.g. "1-0-1".
func (f Frequency) Label() string {
	b := func(v bool) byte {
		if v {
			return '1'
		}
		return '0'
	}
	return string([]byte{b(f.Morning), '-', b(f.Afternoon), '-', b(f.Night)})
}

type Medicine struct {
	Name         string    `json:"name" validate:"required"`
	GenericName  string    `json:"generic_name,omitempty"`
	Dosage       string    `json:"dosage" validate:"required"`
	Frequency    Frequency `json:"frequency"`
	DurationDays int       `json:"duration_days" validate:"gt=0"`
	Instructions string    `json:"instructions,omitempty"`
	Warnings     string    `json:"warnings,omitempty"`
}

type Prescription struct {
	Medicines              []Medicine `json:"medicines" validate:"dive"`
	FollowUpDate           string     `json:"follow_up_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	AdditionalInstructions []string   `json:"additional_instructions"`
	Contraindications      []string   `json:"contraindications"`
}

// Record is the stored outcome of one consultation. There is at most one per appointment.
type Record struct {
	ID              uuid.UUID    `json:"id"`
	AppointmentID   uuid.UUID    `json:"appointmentId"`
	DoctorID        uuid.UUID    `json:"doctorId"`
	DoctorName      string       `json:"doctorName"`
	PatientID       uuid.UUID    `json:"patientId"`
	PatientName     string       `json:"patientName"`
	AppointmentDate time.Time    `json:"appointmentDate"`
	Transcription   string       `json:"transcription"`
	Summary         Summary      `json:"summary"`
	Prescription    Prescription `json:"prescription"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// SaveInput is the body of POST /api/consultations.
type SaveInput struct {
	AppointmentID uuid.UUID    `json:"appointmentId" validate:"required"`
	Transcription string       `json:"transcription" validate:"required"`
	Summary       Summary      `json:"summary"`
	Prescription  Prescription `json:"prescription"`
}
