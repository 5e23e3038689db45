package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/admin"
	"github.com/hackgods/telecare/internal/appointment"
	"github.com/hackgods/telecare/internal/config"
	"github.com/hackgods/telecare/internal/db"
	"github.com/hackgods/telecare/internal/logging"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var reasons = []string{
	"Follow-up on blood pressure",
	"Persistent cough",
	"Skin rash",
	"Medication review",
	"Recurring headaches",
	"Lab results discussion",
}

var slots = [][2]string{
	{"09:00", "09:30"},
	{"10:00", "10:30"},
	{"11:30", "12:00"},
	{"14:00", "14:30"},
	{"16:00", "16:30"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Env, "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	_ = gofakeit.Seed(time.Now().UnixNano())

	if _, err := seedUsers(ctx, pool, "admin", 1, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed admins")
	}
	doctors, err := seedUsers(ctx, pool, "doctor", 40, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	patients, err := seedUsers(ctx, pool, "patient", 500, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedAppointments(ctx, pool, doctors, patients, 2000, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed appointments")
	}

	logger.Info().Msg("seed complete")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, role string, count int, logger zerolog.Logger) ([]uuid.UUID, error) {
	logger.Info().Str("role", role).Int("count", count).Msg("seeding users")

	approvals := []admin.ApprovalStatus{admin.ApprovalApproved, admin.ApprovalApproved, admin.ApprovalPending, admin.ApprovalRejected}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		approval := admin.ApprovalApproved
		var specs []string
		rejection := ""
		if role == "doctor" {
			approval = approvals[gofakeit.Number(0, len(approvals)-1)]
			specs = []string{specialties[gofakeit.Number(0, len(specialties)-1)]}
			if approval == admin.ApprovalRejected {
				rejection = "Registration number could not be verified"
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, email, phone, role, is_active, approval_status, rejection_reason, specialties)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, id, gofakeit.Name(), fmt.Sprintf("%s.%d@%s", role, i, "telecare.test"), gofakeit.Phone(), role,
			gofakeit.Number(0, 9) > 0, string(approval), rejection, specs)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, doctors, patients []uuid.UUID, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding appointments")

	statuses := []appointment.Status{
		appointment.StatusPending,
		appointment.StatusConfirmed,
		appointment.StatusConfirmed,
		appointment.StatusCompleted,
		appointment.StatusRejected,
		appointment.StatusCancelled,
	}

	const batchSize = 500
	today := time.Now().UTC().Truncate(24 * time.Hour)

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			status := statuses[gofakeit.Number(0, len(statuses)-1)]
			slot := slots[gofakeit.Number(0, len(slots)-1)]
			day := today.AddDate(0, 0, gofakeit.Number(-30, 30))
			mode := appointment.ModeTele
			if gofakeit.Number(0, 4) == 0 {
				mode = appointment.ModeInPerson
			}

			batch.Queue(`
				INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, start_time, end_time,
				                          consultation_mode, reason_for_visit, status, video_call_enabled)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, uuid.New(), patients[gofakeit.Number(0, len(patients)-1)], doctors[gofakeit.Number(0, len(doctors)-1)],
				day, slot[0], slot[1], string(mode), reasons[gofakeit.Number(0, len(reasons)-1)], string(status),
				status == appointment.StatusConfirmed && mode == appointment.ModeTele)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		logger.Info().Int("done", end).Int("total", count).Msg("appointments seeded")
	}
	return nil
}
