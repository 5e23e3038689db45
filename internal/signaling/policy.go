package signaling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/telecare/internal/appointment"
	"github.com/hackgods/telecare/internal/auth"
)

var ErrRoomNotOpen = errors.New("consultation room opens once the appointment is confirmed")

type AppointmentGetter interface {
	Get(ctx context.Context, id uuid.UUID, caller auth.Principal) (*appointment.Appointment, error)
}

// AppointmentPolicy admits only participants of a confirmed appointment.
// The room id is the appointment id.
type AppointmentPolicy struct {
	Appointments AppointmentGetter
}

func (p AppointmentPolicy) Authorize(ctx context.Context, room string, who auth.Principal) error {
	id, err := uuid.Parse(room)
	if err != nil {
		return fmt.Errorf("invalid consultation id %q", room)
	}

	appt, err := p.Appointments.Get(ctx, id, who)
	if err != nil {
		return err
	}
	if appt.Status != appointment.StatusConfirmed {
		return fmt.Errorf("%w (status %s)", ErrRoomNotOpen, appt.Status)
	}
	return nil
}
