package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telecare/internal/admin"
	"github.com/hackgods/telecare/internal/appointment"
	"github.com/hackgods/telecare/internal/result"
	"github.com/hackgods/telecare/internal/session"
)

type toast struct {
	kind ToastKind
	msg  string
}

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []toast
}

func (n *recordingNotifier) Toast(kind ToastKind, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, toast{kind, msg})
}

type seenRequest struct {
	method, path, auth string
	body               map[string]any
}

type recorder struct {
	mu       sync.Mutex
	requests []seenRequest
	reply    http.HandlerFunc
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	seen := seenRequest{method: r.Method, path: r.URL.RequestURI(), auth: r.Header.Get("Authorization")}
	_ = json.NewDecoder(r.Body).Decode(&seen.body)
	rec.mu.Lock()
	rec.requests = append(rec.requests, seen)
	rec.mu.Unlock()
	rec.reply(w, r)
}

func (rec *recorder) seen() []seenRequest {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]seenRequest(nil), rec.requests...)
}

func reply[T any](status int, r result.Result[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(r)
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *recorder, *recordingNotifier) {
	t.Helper()
	rec := &recorder{reply: h}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	n := &recordingNotifier{}
	c := New(srv.URL+"/", session.New("user-token", "admin-token", nil), WithNotifier(n))
	return c, rec, n
}

func TestRejectDoctor_BlankReasonNeverCallsServer(t *testing.T) {
	c, rec, n := newTestClient(t, reply(http.StatusOK, result.Ok(admin.Doctor{})))

	for _, reason := range []string{"", "   ", "\n\t"} {
		r := c.RejectDoctor(context.Background(), uuid.New(), reason)
		assert.False(t, r.IsOk())
		assert.Equal(t, MsgRejectionReasonRequired, r.Error)
	}

	assert.Empty(t, rec.seen())
	require.Len(t, n.toasts, 3)
	assert.Equal(t, toast{ToastError, MsgRejectionReasonRequired}, n.toasts[0])
}

func TestRejectDoctor_SendsOnce(t *testing.T) {
	id := uuid.New()
	c, rec, n := newTestClient(t, reply(http.StatusOK, result.Ok(admin.Doctor{ID: id, ApprovalStatus: admin.ApprovalRejected})))

	r := c.RejectDoctor(context.Background(), id, "  License could not be verified ")
	require.True(t, r.IsOk(), r.Error)
	assert.Equal(t, admin.ApprovalRejected, r.Data.ApprovalStatus)

	reqs := rec.seen()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPatch, reqs[0].method)
	assert.Equal(t, "/api/admin/doctors/"+id.String()+"/reject", reqs[0].path)
	assert.Equal(t, "Bearer admin-token", reqs[0].auth)
	assert.Equal(t, "License could not be verified", reqs[0].body["reason"])
	assert.Empty(t, n.toasts)
}

func TestGetAppointment_Envelope(t *testing.T) {
	id := uuid.New()
	c, rec, _ := newTestClient(t, reply(http.StatusOK, result.Ok(appointment.Appointment{ID: id, Status: appointment.StatusConfirmed})))

	r := c.GetAppointment(context.Background(), id.String())
	require.True(t, r.IsOk())
	assert.Equal(t, appointment.StatusConfirmed, r.Data.Status)
	assert.Equal(t, "Bearer user-token", rec.seen()[0].auth)
}

func TestServerFailureSurfacesMessage(t *testing.T) {
	c, _, _ := newTestClient(t, reply(http.StatusNotFound, result.Fail[any]("appointment not found")))

	r := c.GetAppointment(context.Background(), "abc123")
	assert.False(t, r.IsOk())
	assert.Equal(t, "appointment not found", r.Error)
	assert.EqualError(t, r.Err(), "appointment not found")
}

func TestNonEnvelopeBodyFails(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})

	r := c.PatientStats(context.Background())
	assert.False(t, r.IsOk())
	assert.Contains(t, r.Error, "invalid response")
}

func TestTransportFailure(t *testing.T) {
	c := New("http://127.0.0.1:1", session.New("", "", nil))

	r := c.PendingDoctors(context.Background())
	assert.False(t, r.IsOk())
	assert.NotEmpty(t, r.Error)
}

func TestListPatientsQuery(t *testing.T) {
	c, rec, _ := newTestClient(t, reply(http.StatusOK, result.Ok(admin.PatientPage{})))
	active := true

	r := c.ListPatients(context.Background(), PatientQuery{Search: "ann", Active: &active, Page: 2, Limit: 20})
	require.True(t, r.IsOk())
	assert.Equal(t, "/api/admin/patients?active=true&limit=20&page=2&search=ann", rec.seen()[0].path)
}

func TestSaveOnboardingStep(t *testing.T) {
	c, rec, _ := newTestClient(t, reply(http.StatusOK, result.Ok(map[string]any{"currentStep": 4})))

	r := c.SaveOnboardingStep(context.Background(), "doctor", 3, map[string]any{"fee": 500})
	require.True(t, r.IsOk())
	assert.Equal(t, 4, r.Data.CurrentStep)

	req := rec.seen()[0]
	assert.Equal(t, "/api/doctor/onboarding/save", req.path)
	assert.EqualValues(t, 3, req.body["step"])
}

func TestPrescriptionPDF(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.3"))
	})

	r := c.PrescriptionPDF(context.Background(), uuid.New())
	require.True(t, r.IsOk())
	assert.Equal(t, []byte("%PDF-1.3"), r.Data)
}

func TestBookAppointment(t *testing.T) {
	doctor := uuid.New()
	c, rec, n := newTestClient(t, reply(http.StatusCreated, result.Ok(appointment.Appointment{Status: appointment.StatusPending})))

	blank := c.BookAppointment(context.Background(), appointment.BookRequest{DoctorID: doctor, ReasonForVisit: "  "})
	assert.False(t, blank.IsOk())
	assert.Empty(t, rec.seen())
	require.Len(t, n.toasts, 1)

	r := c.BookAppointment(context.Background(), appointment.BookRequest{
		DoctorID:         doctor,
		AppointmentDate:  "2026-10-22",
		TimeSlot:         appointment.TimeSlot{StartTime: "09:30", EndTime: "10:00"},
		ConsultationMode: appointment.ModeTele,
		ReasonForVisit:   "Follow-up",
	})
	require.True(t, r.IsOk(), r.Error)
	assert.Equal(t, appointment.StatusPending, r.Data.Status)

	req := rec.seen()[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/api/appointments", req.path)
	assert.Equal(t, doctor.String(), req.body["doctorId"])
	assert.Equal(t, "tele", req.body["consultationMode"])
}
