// Package consult decides what the live consultation page shows and only
// opens a call for confirmed appointments.
package consult

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/appointment"
	"github.com/hackgods/telecare/internal/call"
	"github.com/hackgods/telecare/internal/result"
)

const (
	MsgNoConsultationID = "No consultation ID provided"

	BackRoute           = "/doctor-dashboard/confirmed-appointments"
	AppointmentRequests = "/doctor-dashboard/appointment-requests"
)

// LiveRoute is the page address for a consultation code typed in by hand.
func LiveRoute(code string) string {
	return "/doctor-dashboard/live-consultation?consultationId=" + url.QueryEscape(strings.TrimSpace(code))
}

// View is one of Loading, ManualEntry, NotApproved or Live.
type View interface {
	view()
}

type Loading struct{}

// ManualEntry asks the user for a consultation code.
type ManualEntry struct {
	Err       string
	BackRoute string
}

type NotApproved struct {
	Status      appointment.Status
	ActionRoute string
}

type Live struct {
	Appointment appointment.Appointment
	Session     *call.Session
}

func (Loading) view()     {}
func (ManualEntry) view() {}
func (NotApproved) view() {}
func (Live) view()        {}

type AppointmentFetcher interface {
	GetAppointment(ctx context.Context, id string) result.Result[appointment.Appointment]
}

// SessionFactory builds the call for a room. It receives "" when the call must stay disabled.
type SessionFactory func(consultationID string) *call.Session

type Gate struct {
	fetch      AppointmentFetcher
	newSession SessionFactory
	log        zerolog.Logger

	mu      sync.Mutex
	view    View
	session *call.Session
}

func NewGate(fetch AppointmentFetcher, newSession SessionFactory, logger zerolog.Logger) *Gate {
	return &Gate{fetch: fetch, newSession: newSession, log: logger, view: Loading{}}
}

func (g *Gate) View() View {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.view
}

// Open resolves the page for rawQuery ("consultationId=..."). The view is
// Loading while the appointment is fetched, and no session exists before the
// fetch returns; ctx bounds the call's lifetime.
func (g *Gate) Open(ctx context.Context, rawQuery string) View {
	// Leaving the previous page ends its call.
	g.set(Loading{}, nil)

	q, _ := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	id := strings.TrimSpace(q.Get("consultationId"))
	if id == "" {
		return g.set(ManualEntry{Err: MsgNoConsultationID}, nil)
	}

	r := g.fetch.GetAppointment(ctx, id)
	if !r.IsOk() {
		g.log.Warn().Str("consultation_id", id).Str("error", r.Error).Msg("appointment lookup failed")
		return g.set(ManualEntry{Err: r.Error, BackRoute: BackRoute}, nil)
	}
	appt := r.Data

	enabledID := ""
	if appt.Status == appointment.StatusConfirmed {
		enabledID = id
	}
	sess := g.newSession(enabledID)

	if appt.Status != appointment.StatusConfirmed {
		return g.set(NotApproved{Status: appt.Status, ActionRoute: AppointmentRequests}, sess)
	}

	v := g.set(Live{Appointment: appt, Session: sess}, sess)
	if err := sess.Start(ctx); err != nil {
		g.log.Error().Err(err).Str("consultation_id", id).Msg("call did not start")
	}
	return v
}

func (g *Gate) set(v View, sess *call.Session) View {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil && g.session != sess {
		g.session.EndCall()
	}
	g.view = v
	g.session = sess
	return v
}

// Close ends any call the page started.
func (g *Gate) Close() {
	g.mu.Lock()
	sess := g.session
	g.session = nil
	g.mu.Unlock()

	if sess != nil {
		sess.EndCall()
	}
}

// Title is the heading a renderer shows for v.
func Title(v View) string {
	switch v := v.(type) {
	case Loading:
		return "Loading consultation..."
	case ManualEntry:
		return "Join a consultation"
	case NotApproved:
		return fmt.Sprintf("Appointment not approved (status: %s)", v.Status)
	case Live:
		return "Live consultation with " + v.Appointment.Patient.Name
	default:
		panic(fmt.Sprintf("consult: unhandled view %T", v))
	}
}
