package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/telecare/internal/admin"
	"github.com/hackgods/telecare/internal/appointment"
	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/consultation"
	"github.com/hackgods/telecare/internal/onboarding"
	"github.com/hackgods/telecare/internal/result"
)

const MsgRejectionReasonRequired = "Please provide a rejection reason"

func statusQuery(status string) url.Values {
	if status == "" {
		return nil
	}
	return url.Values{"status": {status}}
}

// BookAppointment refuses a blank reason for visit locally without contacting the server.
func (c *Client) BookAppointment(ctx context.Context, req appointment.BookRequest) result.Result[appointment.Appointment] {
	if strings.TrimSpace(req.ReasonForVisit) == "" {
		return invalid[appointment.Appointment](c, "reasonForVisit", "Reason for visit is required")
	}
	return do[appointment.Appointment](ctx, c, call{
		method: http.MethodPost,
		path:   "/api/appointments",
		body:   req,
	})
}

func (c *Client) AppointmentStats(ctx context.Context) result.Result[appointment.Stats] {
	return do[appointment.Stats](ctx, c, call{
		method: http.MethodGet,
		path:   "/api/appointments/stats",
	})
}

// GetAppointment takes the raw id as it arrived in a link; the server validates it.
func (c *Client) GetAppointment(ctx context.Context, id string) result.Result[appointment.Appointment] {
	return do[appointment.Appointment](ctx, c, call{
		method: http.MethodGet,
		path:   "/api/appointments/" + url.PathEscape(id),
	})
}

func (c *Client) DoctorAppointments(ctx context.Context, doctorID uuid.UUID, status string) result.Result[[]appointment.Appointment] {
	return do[[]appointment.Appointment](ctx, c, call{
		method: http.MethodGet,
		path:   "/api/appointments/doctor/" + doctorID.String(),
		query:  statusQuery(status),
	})
}

func (c *Client) PatientAppointments(ctx context.Context, patientID uuid.UUID, status string) result.Result[[]appointment.Appointment] {
	return do[[]appointment.Appointment](ctx, c, call{
		method: http.MethodGet,
		path:   "/api/appointments/patient/" + patientID.String(),
		query:  statusQuery(status),
	})
}

func (c *Client) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status appointment.Status, reason string) result.Result[appointment.Appointment] {
	return do[appointment.Appointment](ctx, c, call{
		method: http.MethodPatch,
		path:   "/api/appointments/" + id.String() + "/status",
		body:   map[string]string{"status": string(status), "reason": reason},
	})
}

func (c *Client) SaveConsultation(ctx context.Context, in consultation.SaveInput) result.Result[consultation.Record] {
	if strings.TrimSpace(in.Transcription) == "" {
		return invalid[consultation.Record](c, "transcription", "Transcription is required")
	}
	return do[consultation.Record](ctx, c, call{
		method: http.MethodPost,
		path:   "/api/consultations",
		body:   in,
	})
}

func (c *Client) GetConsultation(ctx context.Context, id uuid.UUID) result.Result[consultation.Record] {
	return do[consultation.Record](ctx, c, call{
		method: http.MethodGet,
		path:   "/api/consultations/" + id.String(),
	})
}

func (c *Client) UpdatePrescription(ctx context.Context, id uuid.UUID, p consultation.Prescription) result.Result[consultation.Record] {
	return do[consultation.Record](ctx, c, call{
		method: http.MethodPatch,
		path:   "/api/consultations/" + id.String() + "/prescription",
		body:   map[string]any{"prescription": p},
	})
}

func (c *Client) PrescriptionPDF(ctx context.Context, id uuid.UUID) result.Result[[]byte] {
	return c.raw(ctx, call{
		method: http.MethodGet,
		path:   "/api/consultations/" + id.String() + "/prescription.pdf",
	})
}

func (c *Client) OnboardingStatus(ctx context.Context, role auth.Role) result.Result[onboarding.Status] {
	return do[onboarding.Status](ctx, c, call{
		method: http.MethodGet,
		path:   "/api/" + string(role) + "/onboarding/status",
	})
}

func (c *Client) OnboardingData(ctx context.Context, role auth.Role) result.Result[onboarding.Onboarding] {
	return do[onboarding.Onboarding](ctx, c, call{
		method: http.MethodGet,
		path:   "/api/" + string(role) + "/onboarding/data",
	})
}

func (c *Client) SaveOnboardingStep(ctx context.Context, role auth.Role, step int, data map[string]any) result.Result[onboarding.Progress] {
	return do[onboarding.Progress](ctx, c, call{
		method: http.MethodPost,
		path:   "/api/" + string(role) + "/onboarding/save",
		body:   map[string]any{"step": step, "data": data},
	})
}

func (c *Client) PendingDoctors(ctx context.Context) result.Result[admin.PendingDoctors] {
	return do[admin.PendingDoctors](ctx, c, call{
		method: http.MethodGet,
		path:   "/api/admin/doctors/pending",
		admin:  true,
	})
}

func (c *Client) ApproveDoctor(ctx context.Context, id uuid.UUID) result.Result[admin.Doctor] {
	return do[admin.Doctor](ctx, c, call{
		method: http.MethodPatch,
		path:   "/api/admin/doctors/" + id.String() + "/approve",
		admin:  true,
	})
}

// RejectDoctor refuses a blank reason locally without contacting the server.
func (c *Client) RejectDoctor(ctx context.Context, id uuid.UUID, reason string) result.Result[admin.Doctor] {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return invalid[admin.Doctor](c, "reason", MsgRejectionReasonRequired)
	}
	return do[admin.Doctor](ctx, c, call{
		method: http.MethodPatch,
		path:   "/api/admin/doctors/" + id.String() + "/reject",
		body:   map[string]string{"reason": reason},
		admin:  true,
	})
}

type PatientQuery struct {
	Search string
	Active *bool
	Page   int
	Limit  int
}

func (c *Client) ListPatients(ctx context.Context, q PatientQuery) result.Result[admin.PatientPage] {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Active != nil {
		v.Set("active", strconv.FormatBool(*q.Active))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return do[admin.PatientPage](ctx, c, call{
		method: http.MethodGet,
		path:   "/api/admin/patients",
		query:  v,
		admin:  true,
	})
}

func (c *Client) PatientStats(ctx context.Context) result.Result[admin.PatientStats] {
	return do[admin.PatientStats](ctx, c, call{
		method: http.MethodGet,
		path:   "/api/admin/patients/stats",
		admin:  true,
	})
}

func (c *Client) SetPatientActive(ctx context.Context, id uuid.UUID, active bool) result.Result[admin.Patient] {
	return do[admin.Patient](ctx, c, call{
		method: http.MethodPatch,
		path:   "/api/admin/patients/" + id.String() + "/status",
		body:   map[string]bool{"isActive": active},
		admin:  true,
	})
}
