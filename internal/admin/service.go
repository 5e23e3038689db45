package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/notify"
)

var (
	ErrRejectionReasonRequired = errors.New("rejection reason is required")
	ErrAlreadyApproved         = errors.New("doctor is already approved")
	ErrAlreadyRejected         = errors.New("doctor is already rejected")
	ErrApprovalConflict        = errors.New("doctor approval changed concurrently, please reload")
)

type Service struct {
	repo     Repository
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, notifier notify.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) PendingDoctors(ctx context.Context) (PendingDoctors, error) {
	doctors, err := s.repo.ListDoctors(ctx, ApprovalPending)
	if err != nil {
		return PendingDoctors{}, fmt.Errorf("list pending doctors: %w", err)
	}
	if doctors == nil {
		doctors = []Doctor{}
	}
	return PendingDoctors{Doctors: doctors, Total: len(doctors)}, nil
}

func (s *Service) ApproveDoctor(ctx context.Context, id, adminID uuid.UUID) (*Doctor, error) {
	doc, err := s.repo.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.ApprovalStatus == ApprovalApproved {
		return nil, ErrAlreadyApproved
	}

	updated, err := s.setApproval(ctx, doc, ApprovalApproved, adminID, "")
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated, notify.KindDoctorApproved, nil)
	return updated, nil
}

// RejectDoctor requires a non-blank reason. The reason is stored trimmed.
func (s *Service) RejectDoctor(ctx context.Context, id, adminID uuid.UUID, reason string) (*Doctor, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrRejectionReasonRequired
	}

	doc, err := s.repo.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.ApprovalStatus == ApprovalRejected {
		return nil, ErrAlreadyRejected
	}

	updated, err := s.setApproval(ctx, doc, ApprovalRejected, adminID, reason)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated, notify.KindDoctorRejected, map[string]string{"reason": reason})
	return updated, nil
}

func (s *Service) setApproval(ctx context.Context, doc *Doctor, to ApprovalStatus, adminID uuid.UUID, reason string) (*Doctor, error) {
	updated, err := s.repo.SetDoctorApproval(ctx, doc.ID, doc.ApprovalStatus, to, adminID, reason, s.now())
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, ErrApprovalConflict
		}
		return nil, err
	}

	s.logger.Info().
		Str("doctor_id", doc.ID.String()).
		Str("admin_id", adminID.String()).
		Str("from", string(doc.ApprovalStatus)).
		Str("to", string(to)).
		Msg("doctor approval changed")

	return updated, nil
}

func (s *Service) notify(ctx context.Context, doc *Doctor, kind notify.Kind, fields map[string]string) {
	n := notify.Compose(kind, doc.Email, doc.Name, fields)
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doc.ID.String()).Str("kind", string(kind)).Msg("notification failed")
	}
}

func (s *Service) ListPatients(ctx context.Context, f PatientFilter) (PatientPage, error) {
	f = f.normalized()

	patients, total, err := s.repo.ListPatients(ctx, f)
	if err != nil {
		return PatientPage{}, fmt.Errorf("list patients: %w", err)
	}
	if patients == nil {
		patients = []Patient{}
	}

	return PatientPage{
		Patients: patients,
		Pagination: Pagination{
			Total: total,
			Page:  f.Page,
			Limit: f.Limit,
			Pages: (total + f.Limit - 1) / f.Limit,
		},
	}, nil
}

func (s *Service) PatientStats(ctx context.Context) (PatientStats, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return s.repo.PatientStats(ctx, monthStart)
}

func (s *Service) PatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

func (s *Service) SetPatientActive(ctx context.Context, id uuid.UUID, active bool) (*Patient, error) {
	p, err := s.repo.SetPatientActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", id.String()).Bool("active", active).Msg("patient status updated")
	return p, nil
}
