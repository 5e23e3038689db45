package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const selectAppointment = `
	SELECT a.id,
	       p.id, p.name, p.email, p.profile_picture,
	       d.id, d.name, d.email, d.profile_picture,
	       a.appointment_date, a.start_time, a.end_time,
	       a.consultation_mode, a.reason_for_visit, a.symptoms, a.status,
	       a.rejection_reason, a.cancellation_reason, a.cancelled_by,
	       a.video_call_enabled, a.confirmed_at, a.completed_at,
	       a.created_at, a.updated_at
	FROM appointments a
	JOIN users p ON p.id = a.patient_id
	JOIN users d ON d.id = a.doctor_id
`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.Patient.ID, &a.Patient.Name, &a.Patient.Email, &a.Patient.ProfilePicture,
		&a.Doctor.ID, &a.Doctor.Name, &a.Doctor.Email, &a.Doctor.ProfilePicture,
		&a.AppointmentDate, &a.TimeSlot.StartTime, &a.TimeSlot.EndTime,
		&a.ConsultationMode, &a.ReasonForVisit, &a.Symptoms, &a.Status,
		&a.RejectionReason, &a.CancellationReason, &a.CancelledBy,
		&a.VideoCallEnabled, &a.ConfirmedAt, &a.CompletedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, selectAppointment+`WHERE a.id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, profile_picture, approval_status, is_active
		FROM users
		WHERE id = $1 AND role = 'doctor'
	`, id).Scan(&d.ID, &d.Name, &d.Email, &d.ProfilePicture, &d.ApprovalStatus, &d.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *PgRepository) FindActiveForSlot(ctx context.Context, doctorID uuid.UUID, day time.Time, startTime string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, selectAppointment+`
		WHERE a.doctor_id = $1
		  AND a.appointment_date = $2::date
		  AND a.start_time = $3
		  AND a.status IN ('pending', 'confirmed')
		LIMIT 1
	`, doctorID, day, startTime)
	return scanAppointment(row)
}

func (r *PgRepository) CreatePending(ctx context.Context, a Appointment, bookedBy uuid.UUID) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, start_time, end_time,
		                          consultation_mode, reason_for_visit, symptoms, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, 'pending', $10, $10)
	`, a.ID, a.Patient.ID, a.Doctor.ID, a.AppointmentDate, a.TimeSlot.StartTime, a.TimeSlot.EndTime,
		a.ConsultationMode, a.ReasonForVisit, a.Symptoms, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointment_status_history (appointment_id, status, changed_by, notes, changed_at)
		VALUES ($1, 'pending', $2, 'Appointment booked', $3)
	`, a.ID, bookedBy, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert status history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return r.GetAppointmentByID(ctx, a.ID)
}

func (r *PgRepository) CountByStatus(ctx context.Context, userID uuid.UUID, asDoctor bool) (map[Status]int, error) {
	column := "patient_id"
	if asDoctor {
		column = "doctor_id"
	}
	rows, err := r.pool.Query(ctx, `
		SELECT status, count(*)
		FROM appointments
		WHERE `+column+` = $1
		GROUP BY status
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status *Status) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, selectAppointment+`
		WHERE a.doctor_id = $1
		  AND ($2::text IS NULL OR a.status = $2)
		ORDER BY a.appointment_date DESC, a.start_time DESC
	`, doctorID, statusArg(status))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, status *Status) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, selectAppointment+`
		WHERE a.patient_id = $1
		  AND ($2::text IS NULL OR a.status = $2)
		ORDER BY a.appointment_date DESC, a.start_time DESC
	`, patientID, statusArg(status))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    rejection_reason    = CASE WHEN $2 = 'rejected'  THEN $4 ELSE rejection_reason END,
		    cancellation_reason = CASE WHEN $2 = 'cancelled' THEN $4 ELSE cancellation_reason END,
		    cancelled_by        = CASE WHEN $2 = 'cancelled' THEN $5 ELSE cancelled_by END,
		    video_call_enabled  = CASE WHEN $2 = 'confirmed' THEN consultation_mode = 'tele' ELSE video_call_enabled END,
		    confirmed_at        = CASE WHEN $2 = 'confirmed' THEN $6 ELSE confirmed_at END,
		    completed_at        = CASE WHEN $2 = 'completed' THEN $6 ELSE completed_at END,
		    updated_at = $6
		WHERE id = $1
		  AND status = $3
	`, id, change.To, change.From, change.Reason, change.ActorRole, change.At)
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAppointmentNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointment_status_history (appointment_id, status, changed_by, notes, changed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, change.To, change.ChangedBy, change.Reason, change.At)
	if err != nil {
		return nil, fmt.Errorf("insert status history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return r.GetAppointmentByID(ctx, id)
}

func (r *PgRepository) FindPendingOnOrBefore(ctx context.Context, day time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, selectAppointment+`
		WHERE a.status = 'pending'
		  AND a.appointment_date <= $1::date
	`, day)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func statusArg(s *Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
