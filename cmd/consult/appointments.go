package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/telecare/internal/appointment"
)

func appointmentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Book appointments and view counts",
	}

	var (
		doctorID       string
		date           string
		start, end     string
		mode           string
		reason, sympts string
	)
	book := &cobra.Command{
		Use:   "book",
		Short: "Request an appointment with an approved doctor",
		Example: `  consult appointments book --doctor 0b7c5b7e-4a39-4b5e-9c36-2f4c1e0f6a11 \
    --date 2026-10-22 --start 09:30 --end 10:00 --reason "Follow-up"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(doctorID)
			if err != nil {
				return fmt.Errorf("invalid --doctor: %w", err)
			}
			r := a.api.BookAppointment(cmd.Context(), appointment.BookRequest{
				DoctorID:         id,
				AppointmentDate:  date,
				TimeSlot:         appointment.TimeSlot{StartTime: start, EndTime: end},
				ConsultationMode: appointment.ConsultationMode(mode),
				ReasonForVisit:   reason,
				Symptoms:         sympts,
			})
			if !r.IsOk() {
				return r.Err()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appointment %s is %s\n", r.Data.ID, r.Data.Status)
			return nil
		},
	}
	book.Flags().StringVar(&doctorID, "doctor", "", "doctor id")
	book.Flags().StringVar(&date, "date", "", "appointment date, YYYY-MM-DD")
	book.Flags().StringVar(&start, "start", "", "slot start, HH:MM")
	book.Flags().StringVar(&end, "end", "", "slot end, HH:MM")
	book.Flags().StringVar(&mode, "mode", string(appointment.ModeTele), "tele or in_person")
	book.Flags().StringVar(&reason, "reason", "", "reason for visit")
	book.Flags().StringVar(&sympts, "symptoms", "", "symptoms")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count your appointments by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := a.api.AppointmentStats(cmd.Context())
			if !r.IsOk() {
				return r.Err()
			}
			st := r.Data
			fmt.Fprintf(cmd.OutOrStdout(), "total=%d pending=%d confirmed=%d completed=%d cancelled=%d rejected=%d\n",
				st.Total, st.Pending, st.Confirmed, st.Completed, st.Cancelled, st.Rejected)
			return nil
		},
	}

	cmd.AddCommand(book, stats)
	return cmd
}
