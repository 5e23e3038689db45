package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/notify"
	redisclient "github.com/hackgods/telecare/internal/redis"
)

type fakeRepo struct {
	mu       sync.Mutex
	appts    map[uuid.UUID]*Appointment
	events   []EventLog
	doctors  map[uuid.UUID]Doctor
	patients map[uuid.UUID]Person
	history  []StatusChange
}

func newFakeRepo(appts ...Appointment) *fakeRepo {
	r := &fakeRepo{
		appts: make(map[uuid.UUID]*Appointment),
		doctors: map[uuid.UUID]Doctor{
			doctorID: {Person: Person{ID: doctorID, Name: "Rao", Email: "rao@example.com"}, ApprovalStatus: "approved", IsActive: true},
		},
		patients: map[uuid.UUID]Person{
			patientID: {ID: patientID, Name: "Pat", Email: "pat@example.com"},
		},
	}
	for i := range appts {
		a := appts[i]
		r.appts[a.ID] = &a
	}
	return r
}

func (r *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *fakeRepo) FindActiveForSlot(_ context.Context, doctorID uuid.UUID, day time.Time, startTime string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.Doctor.ID == doctorID && a.AppointmentDate.Equal(day) && a.TimeSlot.StartTime == startTime &&
			(a.Status == StatusPending || a.Status == StatusConfirmed) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *fakeRepo) CreatePending(_ context.Context, a Appointment, bookedBy uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.patients[a.Patient.ID]; ok {
		a.Patient = p
	}
	a.Status = StatusPending
	a.UpdatedAt = a.CreatedAt
	r.appts[a.ID] = &a
	r.history = append(r.history, StatusChange{To: StatusPending, ChangedBy: &bookedBy, At: a.CreatedAt})
	cp := a
	return &cp, nil
}

func (r *fakeRepo) CountByStatus(_ context.Context, userID uuid.UUID, asDoctor bool) (map[Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[Status]int)
	for _, a := range r.appts {
		owner := a.Patient.ID
		if asDoctor {
			owner = a.Doctor.ID
		}
		if owner == userID {
			counts[a.Status]++
		}
	}
	return counts, nil
}

func (r *fakeRepo) list(match func(Appointment) bool, status *Status) []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if match(*a) && (status == nil || a.Status == *status) {
			out = append(out, *a)
		}
	}
	return out
}

func (r *fakeRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, status *Status) ([]Appointment, error) {
	return r.list(func(a Appointment) bool { return a.Doctor.ID == doctorID }, status), nil
}

func (r *fakeRepo) ListByPatient(_ context.Context, patientID uuid.UUID, status *Status) ([]Appointment, error) {
	return r.list(func(a Appointment) bool { return a.Patient.ID == patientID }, status), nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, change StatusChange) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != change.From {
		return nil, ErrAppointmentNotFound
	}
	a.Status = change.To
	switch change.To {
	case StatusConfirmed:
		a.VideoCallEnabled = a.ConsultationMode == ModeTele
		at := change.At
		a.ConfirmedAt = &at
	case StatusRejected:
		a.RejectionReason = change.Reason
	case StatusCancelled:
		a.CancellationReason = change.Reason
		a.CancelledBy = change.ActorRole
	case StatusCompleted:
		at := change.At
		a.CompletedAt = &at
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) FindPendingOnOrBefore(_ context.Context, day time.Time) ([]Appointment, error) {
	return r.list(func(a Appointment) bool { return !a.AppointmentDate.After(day) }, ptr(StatusPending)), nil
}

func (r *fakeRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func ptr[T any](v T) *T { return &v }

var (
	patientID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	doctorID   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	strangerID = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func teleAppointment(status Status) Appointment {
	return Appointment{
		ID:               uuid.New(),
		Patient:          Person{ID: patientID, Name: "Pat", Email: "pat@example.com"},
		Doctor:           Person{ID: doctorID, Name: "Rao", Email: "rao@example.com"},
		AppointmentDate:  time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		TimeSlot:         TimeSlot{StartTime: "10:00", EndTime: "10:30"},
		ConsultationMode: ModeTele,
		Status:           status,
	}
}

func newTestService(repo Repository) (*Service, *recordingNotifier) {
	n := &recordingNotifier{}
	svc := NewService(repo, redisclient.NewLocalLocker(), n, zerolog.Nop())
	return svc, n
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusRejected, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusRejected, StatusConfirmed, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestParseStatus(t *testing.T) {
	_, err := ParseStatus("approved")
	assert.ErrorIs(t, err, ErrUnknownStatus)

	s, err := ParseStatus("confirmed")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, s)
}

func TestUpdateStatus_ConfirmEnablesVideo(t *testing.T) {
	appt := teleAppointment(StatusPending)
	repo := newFakeRepo(appt)
	svc, n := newTestService(repo)

	got, err := svc.UpdateStatus(context.Background(), appt.ID, StatusConfirmed,
		auth.Principal{UserID: doctorID, Role: auth.RoleDoctor}, "")
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, got.Status)
	assert.True(t, got.VideoCallEnabled)
	require.Len(t, n.sent, 1)
	assert.Equal(t, notify.KindAppointmentConfirmed, n.sent[0].Kind)
	assert.Equal(t, "pat@example.com", n.sent[0].To)
	require.Len(t, repo.events, 1)
	assert.Equal(t, EventAppointmentStatusChanged, repo.events[0].EventType)
}

func TestUpdateStatus_RejectsIllegalTransition(t *testing.T) {
	appt := teleAppointment(StatusCompleted)
	svc, n := newTestService(newFakeRepo(appt))

	_, err := svc.UpdateStatus(context.Background(), appt.ID, StatusCancelled,
		auth.Principal{UserID: patientID, Role: auth.RolePatient}, "changed my mind")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	assert.Empty(t, n.sent)
}

func TestUpdateStatus_NonParticipant(t *testing.T) {
	appt := teleAppointment(StatusPending)
	svc, _ := newTestService(newFakeRepo(appt))

	_, err := svc.UpdateStatus(context.Background(), appt.ID, StatusConfirmed,
		auth.Principal{UserID: strangerID, Role: auth.RoleDoctor}, "")
	assert.ErrorIs(t, err, ErrNotParticipant)

	// admins may act on any appointment
	_, err = svc.UpdateStatus(context.Background(), appt.ID, StatusConfirmed,
		auth.Principal{UserID: strangerID, Role: auth.RoleAdmin}, "")
	assert.NoError(t, err)
}

func TestUpdateStatus_PatientCancelNotifiesDoctor(t *testing.T) {
	appt := teleAppointment(StatusConfirmed)
	svc, n := newTestService(newFakeRepo(appt))

	got, err := svc.UpdateStatus(context.Background(), appt.ID, StatusCancelled,
		auth.Principal{UserID: patientID, Role: auth.RolePatient}, "travel")
	require.NoError(t, err)

	assert.Equal(t, "travel", got.CancellationReason)
	assert.Equal(t, "patient", got.CancelledBy)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "rao@example.com", n.sent[0].To)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc, _ := newTestService(newFakeRepo())

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), StatusConfirmed,
		auth.Principal{UserID: doctorID, Role: auth.RoleDoctor}, "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestComplete(t *testing.T) {
	appt := teleAppointment(StatusConfirmed)
	svc, _ := newTestService(newFakeRepo(appt))

	got, err := svc.Complete(context.Background(), appt.ID, auth.Principal{UserID: doctorID, Role: auth.RoleDoctor})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestListByDoctor_StatusFilter(t *testing.T) {
	repo := newFakeRepo(teleAppointment(StatusPending), teleAppointment(StatusConfirmed), teleAppointment(StatusConfirmed))
	svc, _ := newTestService(repo)

	all, err := svc.ListByDoctor(context.Background(), doctorID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	confirmed, err := svc.ListByDoctor(context.Background(), doctorID, "confirmed")
	require.NoError(t, err)
	assert.Len(t, confirmed, 2)

	_, err = svc.ListByPatient(context.Background(), patientID, "bogus")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestExpireStale(t *testing.T) {
	past := teleAppointment(StatusPending)
	today := teleAppointment(StatusPending)
	today.AppointmentDate = time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)
	today.TimeSlot = TimeSlot{StartTime: "17:00", EndTime: "17:30"}

	repo := newFakeRepo(past, today)
	svc, notes := newTestService(repo)
	n, err := svc.ExpireStale(context.Background(), time.Date(2026, 10, 21, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := repo.GetAppointmentByID(context.Background(), past.ID)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "expired", got.CancellationReason)
	assert.Equal(t, "system", got.CancelledBy)

	require.Len(t, notes.sent, 1)
	assert.Equal(t, notify.KindAppointmentCancelled, notes.sent[0].Kind)
	assert.Equal(t, "pat@example.com", notes.sent[0].To)
	assert.Contains(t, notes.sent[0].Body, "expired")

	got, _ = repo.GetAppointmentByID(context.Background(), today.ID)
	assert.Equal(t, StatusPending, got.Status)
}

func bookRequest() BookRequest {
	return BookRequest{
		DoctorID:         doctorID,
		AppointmentDate:  "2026-10-22",
		TimeSlot:         TimeSlot{StartTime: "09:30", EndTime: "10:00"},
		ConsultationMode: ModeTele,
		ReasonForVisit:   "Chest pain on exertion",
	}
}

var patientCaller = auth.Principal{UserID: patientID, Role: auth.RolePatient}

func TestBook_CreatesPendingAndNotifiesDoctor(t *testing.T) {
	repo := newFakeRepo()
	svc, n := newTestService(repo)

	got, err := svc.Book(context.Background(), bookRequest(), patientCaller)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, patientID, got.Patient.ID)
	assert.Equal(t, doctorID, got.Doctor.ID)
	assert.False(t, got.VideoCallEnabled)
	assert.Equal(t, time.Date(2026, 10, 22, 0, 0, 0, 0, time.UTC), got.AppointmentDate)

	require.Len(t, repo.history, 1)
	assert.Equal(t, StatusPending, repo.history[0].To)
	assert.Equal(t, patientID, *repo.history[0].ChangedBy)

	require.Len(t, repo.events, 1)
	assert.Equal(t, EventAppointmentCreated, repo.events[0].EventType)

	require.Len(t, n.sent, 1)
	assert.Equal(t, notify.KindAppointmentRequested, n.sent[0].Kind)
	assert.Equal(t, "rao@example.com", n.sent[0].To)
	assert.Contains(t, n.sent[0].Body, "Pat")
}

func TestBook_RejectsUnbookableDoctor(t *testing.T) {
	pendingDoctor := uuid.New()
	inactiveDoctor := uuid.New()
	repo := newFakeRepo()
	repo.doctors[pendingDoctor] = Doctor{Person: Person{ID: pendingDoctor}, ApprovalStatus: "pending", IsActive: true}
	repo.doctors[inactiveDoctor] = Doctor{Person: Person{ID: inactiveDoctor}, ApprovalStatus: "approved", IsActive: false}
	svc, n := newTestService(repo)

	for _, id := range []uuid.UUID{pendingDoctor, inactiveDoctor, uuid.New()} {
		req := bookRequest()
		req.DoctorID = id
		_, err := svc.Book(context.Background(), req, patientCaller)
		assert.ErrorIs(t, err, ErrDoctorNotBookable)
	}
	assert.Empty(t, repo.appts)
	assert.Empty(t, n.sent)
}

func TestBook_InvalidRequest(t *testing.T) {
	svc, _ := newTestService(newFakeRepo())

	cases := map[string]func(*BookRequest){
		"missing reason": func(r *BookRequest) { r.ReasonForVisit = "" },
		"bad date":       func(r *BookRequest) { r.AppointmentDate = "22/10/2026" },
		"bad mode":       func(r *BookRequest) { r.ConsultationMode = "phone" },
		"bad slot":       func(r *BookRequest) { r.TimeSlot.StartTime = "25:00" },
		"inverted slot":  func(r *BookRequest) { r.TimeSlot = TimeSlot{StartTime: "10:00", EndTime: "09:30"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := bookRequest()
			mutate(&req)
			_, err := svc.Book(context.Background(), req, patientCaller)
			assert.ErrorIs(t, err, ErrInvalidBooking)
		})
	}
}

func TestBook_SlotTaken(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	first, err := svc.Book(context.Background(), bookRequest(), patientCaller)
	require.NoError(t, err)

	// 9:30 and 09:30 are the same slot
	req := bookRequest()
	req.TimeSlot = TimeSlot{StartTime: "9:30", EndTime: "10:00"}
	_, err = svc.Book(context.Background(), req, patientCaller)
	assert.ErrorIs(t, err, ErrSlotTaken)

	// a cancelled booking frees the slot
	_, err = svc.UpdateStatus(context.Background(), first.ID, StatusCancelled, patientCaller, "conflict")
	require.NoError(t, err)
	_, err = svc.Book(context.Background(), req, patientCaller)
	assert.NoError(t, err)
}

func TestBook_ConcurrentRequestsForOneSlot(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Book(context.Background(), bookRequest(), patientCaller)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	booked := 0
	for err := range errs {
		if err == nil {
			booked++
			continue
		}
		assert.True(t, errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrSlotBeingBooked), "unexpected error %v", err)
	}
	assert.Equal(t, 1, booked)
	assert.Len(t, repo.appts, 1)
}

func TestStats(t *testing.T) {
	other := teleAppointment(StatusPending)
	other.Patient.ID = strangerID
	repo := newFakeRepo(
		teleAppointment(StatusPending),
		teleAppointment(StatusConfirmed),
		teleAppointment(StatusConfirmed),
		teleAppointment(StatusCompleted),
		other,
	)
	svc, _ := newTestService(repo)

	st, err := svc.Stats(context.Background(), patientCaller)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 4, Pending: 1, Confirmed: 2, Completed: 1}, st)

	st, err = svc.Stats(context.Background(), auth.Principal{UserID: doctorID, Role: auth.RoleDoctor})
	require.NoError(t, err)
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 2, st.Pending)
}
