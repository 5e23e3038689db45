package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrConsultationNotFound = errors.New("consultation record not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Record, error)

	// Upsert keeps one record per appointment.
	Upsert(ctx context.Context, in SaveInput) (*Record, error)
	UpdatePrescription(ctx context.Context, id uuid.UUID, p Prescription) (*Record, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const selectRecord = `
	SELECT c.id, c.appointment_id,
	       d.id, d.name, p.id, p.name, a.appointment_date,
	       c.transcription, c.summary, c.prescription,
	       c.created_at, c.updated_at
	FROM consultations c
	JOIN appointments a ON a.id = c.appointment_id
	JOIN users d ON d.id = a.doctor_id
	JOIN users p ON p.id = a.patient_id
`

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		r            Record
		summary      []byte
		prescription []byte
	)

	err := row.Scan(
		&r.ID, &r.AppointmentID,
		&r.DoctorID, &r.DoctorName, &r.PatientID, &r.PatientName, &r.AppointmentDate,
		&r.Transcription, &summary, &prescription,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(summary, &r.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	if err := json.Unmarshal(prescription, &r.Prescription); err != nil {
		return nil, fmt.Errorf("decode prescription: %w", err)
	}

	return &r, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, selectRecord+`WHERE c.id = $1`, id))
}

func (r *PgRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, selectRecord+`WHERE c.appointment_id = $1`, appointmentID))
}

func (r *PgRepository) Upsert(ctx context.Context, in SaveInput) (*Record, error) {
	summary, err := json.Marshal(in.Summary)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	prescription, err := json.Marshal(in.Prescription)
	if err != nil {
		return nil, fmt.Errorf("encode prescription: %w", err)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx, `
		INSERT INTO consultations (id, appointment_id, transcription, summary, prescription)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (appointment_id) DO UPDATE
		SET transcription = EXCLUDED.transcription,
		    summary       = EXCLUDED.summary,
		    prescription  = EXCLUDED.prescription,
		    updated_at    = now()
		RETURNING id
	`, uuid.New(), in.AppointmentID, in.Transcription, summary, prescription).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("upsert consultation: %w", err)
	}

	return r.GetByID(ctx, id)
}

func (r *PgRepository) UpdatePrescription(ctx context.Context, id uuid.UUID, p Prescription) (*Record, error) {
	prescription, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode prescription: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE consultations
		SET prescription = $2, updated_at = now()
		WHERE id = $1
	`, id, prescription)
	if err != nil {
		return nil, fmt.Errorf("update prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrConsultationNotFound
	}

	return r.GetByID(ctx, id)
}
