package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telecare/internal/auth"
)

var ErrOnboardingNotFound = errors.New("onboarding data not found")

type Repository interface {
	Get(ctx context.Context, userID uuid.UUID, role auth.Role) (*Onboarding, error)

	// Save upserts the row. A completed doctor onboarding also queues the
	// doctor for admin review in the same transaction.
	Save(ctx context.Context, ob *Onboarding) error
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Get(ctx context.Context, userID uuid.UUID, role auth.Role) (*Onboarding, error) {
	var (
		ob   Onboarding
		data []byte
	)

	err := r.pool.QueryRow(ctx, `
		SELECT user_id, role, current_step,
		       step1_completed, step2_completed, step3_completed, step4_completed,
		       is_completed, completed_at, data, created_at, updated_at
		FROM onboarding
		WHERE user_id = $1 AND role = $2
	`, userID, role).Scan(
		&ob.UserID, &ob.Role, &ob.Progress.CurrentStep,
		&ob.Progress.Step1Completed, &ob.Progress.Step2Completed, &ob.Progress.Step3Completed, &ob.Progress.Step4Completed,
		&ob.Progress.IsCompleted, &ob.Progress.CompletedAt, &data, &ob.CreatedAt, &ob.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOnboardingNotFound
		}
		return nil, err
	}

	ob.Data = StepData{}
	if err := json.Unmarshal(data, &ob.Data); err != nil {
		return nil, fmt.Errorf("decode onboarding data: %w", err)
	}

	return &ob, nil
}

func (r *PgRepository) Save(ctx context.Context, ob *Onboarding) error {
	data, err := json.Marshal(ob.Data)
	if err != nil {
		return fmt.Errorf("encode onboarding data: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	p := ob.Progress
	_, err = tx.Exec(ctx, `
		INSERT INTO onboarding (user_id, role, current_step,
		                        step1_completed, step2_completed, step3_completed, step4_completed,
		                        is_completed, completed_at, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (user_id, role) DO UPDATE
		SET current_step    = EXCLUDED.current_step,
		    step1_completed = EXCLUDED.step1_completed,
		    step2_completed = EXCLUDED.step2_completed,
		    step3_completed = EXCLUDED.step3_completed,
		    step4_completed = EXCLUDED.step4_completed,
		    is_completed    = EXCLUDED.is_completed,
		    completed_at    = EXCLUDED.completed_at,
		    data            = EXCLUDED.data,
		    updated_at      = now()
	`, ob.UserID, ob.Role, p.CurrentStep,
		p.Step1Completed, p.Step2Completed, p.Step3Completed, p.Step4Completed,
		p.IsCompleted, p.CompletedAt, data)
	if err != nil {
		return fmt.Errorf("save onboarding: %w", err)
	}

	if ob.Role == auth.RoleDoctor && p.IsCompleted {
		_, err = tx.Exec(ctx, `
			UPDATE users
			SET approval_status = 'pending', rejection_reason = '', updated_at = now()
			WHERE id = $1 AND approval_status <> 'approved'
		`, ob.UserID)
		if err != nil {
			return fmt.Errorf("queue doctor for review: %w", err)
		}
	}

	return tx.Commit(ctx)
}
