// Package notify delivers appointment and approval notifications.
// Delivery is best effort: callers log failures and carry on.
package notify

import (
	"context"
	"fmt"

	"github.com/go-gomail/gomail"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/config"
)

type Kind string

const (
	KindAppointmentRequested Kind = "appointment_requested"
	KindAppointmentConfirmed Kind = "appointment_confirmed"
	KindAppointmentRejected  Kind = "appointment_rejected"
	KindAppointmentCancelled Kind = "appointment_cancelled"
	KindAppointmentCompleted Kind = "appointment_completed"
	KindDoctorApproved       Kind = "doctor_approved"
	KindDoctorRejected       Kind = "doctor_rejected"
)

type Notification struct {
	To      string
	Name    string
	Kind    Kind
	Subject string
	Body    string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// New picks SMTP delivery when configured and log-only delivery otherwise.
func New(cfg config.Config, logger zerolog.Logger) Notifier {
	if cfg.SMTPEnabled() {
		return NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	}
	return LogNotifier{logger: logger}
}

type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTP(host string, port int, username, password, from string) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *SMTPNotifier) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.To == "" {
		return fmt.Errorf("notify %s: missing recipient", n.Kind)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", n.To, n.Name)
	m.SetHeader("Subject", n.Subject)
	m.SetBody("text/plain", n.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s to %s: %w", n.Kind, n.To, err)
	}
	return nil
}

type LogNotifier struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) LogNotifier {
	return LogNotifier{logger: logger}
}

func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info().
		Str("kind", string(n.Kind)).
		Str("to", n.To).
		Str("subject", n.Subject).
		Msg("notification")
	return nil
}
