package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrPatientNotFound = errors.New("patient not found")
)

type Repository interface {
	ListDoctors(ctx context.Context, status ApprovalStatus) ([]Doctor, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// SetDoctorApproval only applies while the stored status still equals from.
	// It returns ErrDoctorNotFound when the row moved on.
	SetDoctorApproval(ctx context.Context, id uuid.UUID, from, to ApprovalStatus, adminID uuid.UUID, reason string, at time.Time) (*Doctor, error)

	ListPatients(ctx context.Context, f PatientFilter) ([]Patient, int, error)
	PatientStats(ctx context.Context, monthStart time.Time) (PatientStats, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	SetPatientActive(ctx context.Context, id uuid.UUID, active bool) (*Patient, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const selectDoctor = `
	SELECT u.id, u.name, u.email, u.phone, u.profile_picture,
	       COALESCE(o.data->'step1'->>'medicalRegistrationNumber', ''),
	       COALESCE(o.data->'step1'->>'registrationCouncil', ''),
	       u.specialties, COALESCE(o.is_completed, false),
	       u.approval_status, u.rejection_reason, u.approved_by, u.approved_at, u.created_at
	FROM users u
	LEFT JOIN onboarding o ON o.user_id = u.id AND o.role = 'doctor'
	WHERE u.role = 'doctor'
`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID, &d.Name, &d.Email, &d.Phone, &d.ProfilePicture,
		&d.RegistrationNumber, &d.RegistrationCouncil,
		&d.Specialties, &d.OnboardingCompleted,
		&d.ApprovalStatus, &d.RejectionReason, &d.ApprovedBy, &d.ApprovedAt, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

const selectPatient = `
	SELECT u.id, u.name, u.email, u.phone, u.profile_picture, u.is_active,
	       COALESCE(o.is_completed, false), u.created_at
	FROM users u
	LEFT JOIN onboarding o ON o.user_id = u.id AND o.role = 'patient'
	WHERE u.role = 'patient'
`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.ProfilePicture, &p.IsActive, &p.OnboardingCompleted, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) ListDoctors(ctx context.Context, status ApprovalStatus) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, selectDoctor+`
		AND u.approval_status = $1
		ORDER BY u.created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.pool.QueryRow(ctx, selectDoctor+`AND u.id = $1`, id))
}

func (r *PgRepository) SetDoctorApproval(ctx context.Context, id uuid.UUID, from, to ApprovalStatus, adminID uuid.UUID, reason string, at time.Time) (*Doctor, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET approval_status = $3, approved_by = $4, approved_at = $5,
		    rejection_reason = $6, updated_at = $5
		WHERE id = $1 AND role = 'doctor' AND approval_status = $2
	`, id, from, to, adminID, at, reason)
	if err != nil {
		return nil, fmt.Errorf("set doctor approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrDoctorNotFound
	}
	return r.GetDoctor(ctx, id)
}

func (r *PgRepository) ListPatients(ctx context.Context, f PatientFilter) ([]Patient, int, error) {
	where := `
		AND ($1 = '' OR u.name ILIKE '%' || $1 || '%' OR u.email ILIKE '%' || $1 || '%' OR u.phone ILIKE '%' || $1 || '%')
		AND ($2::boolean IS NULL OR u.is_active = $2)
	`

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM users u WHERE u.role = 'patient'
	`+where, f.Search, f.Active).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := r.pool.Query(ctx, selectPatient+where+`
		ORDER BY u.created_at DESC
		LIMIT $3 OFFSET $4
	`, f.Search, f.Active, f.Limit, f.offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *p)
	}
	return result, total, rows.Err()
}

func (r *PgRepository) PatientStats(ctx context.Context, monthStart time.Time) (PatientStats, error) {
	var (
		s         PatientStats
		completed int
	)
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE u.is_active),
		       count(*) FILTER (WHERE u.created_at >= $1),
		       count(*) FILTER (WHERE o.is_completed)
		FROM users u
		LEFT JOIN onboarding o ON o.user_id = u.id AND o.role = 'patient'
		WHERE u.role = 'patient'
	`, monthStart).Scan(&s.TotalPatients, &s.ActivePatients, &s.NewThisMonth, &completed)
	if err != nil {
		return PatientStats{}, fmt.Errorf("patient stats: %w", err)
	}

	s.InactivePatients = s.TotalPatients - s.ActivePatients
	if s.TotalPatients > 0 {
		s.OnboardingCompletionRate = completed * 100 / s.TotalPatients
	}
	return s, nil
}

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx, selectPatient+`AND u.id = $1`, id))
}

func (r *PgRepository) SetPatientActive(ctx context.Context, id uuid.UUID, active bool) (*Patient, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET is_active = $2, updated_at = now()
		WHERE id = $1 AND role = 'patient'
	`, id, active)
	if err != nil {
		return nil, fmt.Errorf("set patient active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrPatientNotFound
	}
	return r.GetPatient(ctx, id)
}
