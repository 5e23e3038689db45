package consult

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telecare/internal/appointment"
	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/call"
	"github.com/hackgods/telecare/internal/localmedia"
	"github.com/hackgods/telecare/internal/result"
	"github.com/hackgods/telecare/internal/signaling"
)

type stubFetcher struct {
	appt  appointment.Appointment
	err   string
	calls []string
}

func (f *stubFetcher) GetAppointment(_ context.Context, id string) result.Result[appointment.Appointment] {
	f.calls = append(f.calls, id)
	if f.err != "" {
		return result.Fail[appointment.Appointment](f.err)
	}
	return result.Ok(f.appt)
}

// idleSignaler never delivers anything.
type idleSignaler struct {
	in chan signaling.Message
}

func (s *idleSignaler) Join(string, string) error { return nil }
func (s *idleSignaler) Leave(string) error { return nil }
func (s *idleSignaler) SendPayload(signaling.Type, string, any) error { return nil }
func (s *idleSignaler) Messages() <-chan signaling.Message { return s.in }
func (s *idleSignaler) Close() error { return nil }

type sessionRecorder struct {
	src   *localmedia.SyntheticSource
	ids   []string
	dials int
}

func (p *sessionRecorder) factory(id string) *call.Session {
	p.ids = append(p.ids, id)
	return call.NewSession(call.Config{
		ConsultationID: id,
		Role:           auth.RoleDoctor,
		Media:          p.src,
		Dial: func(context.Context) (call.Signaler, error) {
			p.dials++
			return &idleSignaler{in: make(chan signaling.Message)}, nil
		},
		NewPeer: func() (call.Peer, error) { return nil, assert.AnError },
		Logger:  zerolog.Nop(),
	})
}

func newRecorder() *sessionRecorder {
	return &sessionRecorder{src: &localmedia.SyntheticSource{}}
}

func TestGate_MissingIDNeverFetches(t *testing.T) {
	f := &stubFetcher{}
	p := newRecorder()
	g := NewGate(f, p.factory, zerolog.Nop())
	assert.Equal(t, Loading{}, g.View())

	for _, q := range []string{"", "?consultationId=", "consultationId=%20%20", "other=1"} {
		v := g.Open(context.Background(), q)
		assert.Equal(t, ManualEntry{Err: MsgNoConsultationID}, v)
	}
	assert.Empty(t, f.calls)
	assert.Empty(t, p.ids)
	assert.Empty(t, p.src.Requests())
}

func TestGate_NonConfirmedDisablesSession(t *testing.T) {
	for _, st := range []appointment.Status{
		appointment.StatusPending,
		appointment.StatusRejected,
		appointment.StatusCancelled,
		appointment.StatusCompleted,
	} {
		t.Run(string(st), func(t *testing.T) {
			f := &stubFetcher{appt: appointment.Appointment{ID: uuid.New(), Status: st}}
			p := newRecorder()
			g := NewGate(f, p.factory, zerolog.Nop())

			v := g.Open(context.Background(), "?consultationId=abc123")

			assert.Equal(t, NotApproved{Status: st, ActionRoute: AppointmentRequests}, v)
			assert.Equal(t, []string{"abc123"}, f.calls)
			assert.Equal(t, []string{""}, p.ids)
			assert.Empty(t, p.src.Requests())
			assert.Zero(t, p.dials)
			g.Close()
		})
	}
}

func TestGate_PendingAbc123(t *testing.T) {
	f := &stubFetcher{appt: appointment.Appointment{Status: appointment.StatusPending}}
	g := NewGate(f, newRecorder().factory, zerolog.Nop())

	v := g.Open(context.Background(), "consultationId=abc123")
	na, ok := v.(NotApproved)
	require.True(t, ok)
	assert.Equal(t, appointment.StatusPending, na.Status)
	assert.Equal(t, "/doctor-dashboard/appointment-requests", na.ActionRoute)
	assert.Equal(t, "Appointment not approved (status: pending)", Title(v))
}

func TestGate_FetchErrorShowsRawMessage(t *testing.T) {
	f := &stubFetcher{err: "Appointment not found"}
	p := newRecorder()
	g := NewGate(f, p.factory, zerolog.Nop())

	v := g.Open(context.Background(), "consultationId=nope")
	assert.Equal(t, ManualEntry{Err: "Appointment not found", BackRoute: BackRoute}, v)
	assert.Empty(t, p.ids)
}

func TestGate_ConfirmedGoesLive(t *testing.T) {
	id := uuid.NewString()
	f := &stubFetcher{appt: appointment.Appointment{
		Status:  appointment.StatusConfirmed,
		Patient: appointment.Person{Name: "Meera"},
	}}
	p := newRecorder()
	g := NewGate(f, p.factory, zerolog.Nop())

	v := g.Open(context.Background(), "consultationId="+id)
	live, ok := v.(Live)
	require.True(t, ok)
	assert.Equal(t, []string{id}, p.ids)
	assert.Equal(t, "Live consultation with Meera", Title(v))
	assert.Equal(t, call.StateSignaling, live.Session.Snapshot().State)
	assert.Len(t, p.src.Requests(), 1)

	stream := live.Session.Snapshot().LocalStream
	require.NotNil(t, stream)

	g.Close()
	require.Eventually(t, func() bool { return live.Session.Snapshot().State == call.StateEnded }, time.Second, 5*time.Millisecond)
	for _, tr := range stream.Tracks() {
		assert.True(t, tr.Stopped())
	}
	assert.NotPanics(t, g.Close)
}

func TestLiveRoute(t *testing.T) {
	assert.Equal(t, "/doctor-dashboard/live-consultation?consultationId=a+b", LiveRoute(" a b "))
}

// viewCheckingFetcher records the gate's view at the moment of each fetch.
type viewCheckingFetcher struct {
	gate   *Gate
	appt   appointment.Appointment
	during []View
}

func (f *viewCheckingFetcher) GetAppointment(context.Context, string) result.Result[appointment.Appointment] {
	f.during = append(f.during, f.gate.View())
	return result.Ok(f.appt)
}

func TestGate_ReopenShowsLoadingDuringFetch(t *testing.T) {
	f := &viewCheckingFetcher{appt: appointment.Appointment{Status: appointment.StatusConfirmed}}
	p := newRecorder()
	g := NewGate(f, p.factory, zerolog.Nop())
	f.gate = g
	t.Cleanup(g.Close)

	first, ok := g.Open(context.Background(), "consultationId=first").(Live)
	require.True(t, ok)

	f.appt.Status = appointment.StatusPending
	v := g.Open(context.Background(), "consultationId=second")
	assert.IsType(t, NotApproved{}, v)

	require.Len(t, f.during, 2)
	assert.Equal(t, Loading{}, f.during[0])
	assert.Equal(t, Loading{}, f.during[1], "second fetch must not show the previous page")

	// the first page's call ends when the page is left
	require.Eventually(t, func() bool { return first.Session.Snapshot().State == call.StateEnded },
		time.Second, 5*time.Millisecond)
}
