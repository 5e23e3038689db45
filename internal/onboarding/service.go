package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/auth"
	redisclient "github.com/hackgods/telecare/internal/redis"
)

var (
	ErrInvalidStep     = errors.New("invalid step number, must be between 1 and 4")
	ErrEmptyStepData   = errors.New("please provide step number and data")
	ErrUnsupportedRole = errors.New("onboarding is only available for doctors and patients")
	ErrOnboardingBusy  = errors.New("another save is in progress, please retry")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		logger: logger,
		now:    time.Now,
	}
}

// SaveStep commits one wizard step. Each call is its own commit, so a failed
// step leaves earlier ones intact.
func (s *Service) SaveStep(ctx context.Context, userID uuid.UUID, role auth.Role, step int, fields map[string]any) (*Onboarding, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	if step < FirstStep || step > LastStep {
		return nil, ErrInvalidStep
	}
	if len(fields) == 0 {
		return nil, ErrEmptyStepData
	}

	var saved *Onboarding

	key := fmt.Sprintf("onboarding:%s:%s", userID, role)
	err := s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
		ob, err := s.repo.Get(lockCtx, userID, role)
		switch {
		case errors.Is(err, ErrOnboardingNotFound):
			ob = &Onboarding{
				UserID:   userID,
				Role:     role,
				Progress: NewProgress(),
				Data:     StepData{},
			}
		case err != nil:
			return fmt.Errorf("load onboarding: %w", err)
		}

		wasCompleted := ob.Progress.IsCompleted
		ob.Data.Merge(step, fields)
		ob.Progress.Complete(step, s.now())

		if err := s.repo.Save(lockCtx, ob); err != nil {
			return err
		}

		if !wasCompleted && ob.Progress.IsCompleted {
			s.logger.Info().
				Str("user_id", userID.String()).
				Str("role", string(role)).
				Msg("onboarding completed")
		}

		saved = ob
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrOnboardingBusy
		}
		return nil, err
	}

	return saved, nil
}

// Status reports progress. A user who never saved a step starts at step 1.
func (s *Service) Status(ctx context.Context, userID uuid.UUID, role auth.Role) (Status, error) {
	ob, err := s.repo.Get(ctx, userID, role)
	if errors.Is(err, ErrOnboardingNotFound) {
		return Status{Exists: false, Progress: NewProgress()}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return Status{Exists: true, Progress: ob.Progress}, nil
}

func (s *Service) Data(ctx context.Context, userID uuid.UUID, role auth.Role) (*Onboarding, error) {
	return s.repo.Get(ctx, userID, role)
}
