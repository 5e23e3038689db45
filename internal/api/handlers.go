package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/telecare/internal/appointment"
	"github.com/hackgods/telecare/internal/auth"
)

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

// selfOrAdmin reports whether the caller may read data that belongs to owner.
func selfOrAdmin(r *http.Request, owner uuid.UUID) bool {
	p := principal(r)
	return p.Role == auth.RoleAdmin || p.UserID == owner
}

func bookAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointment.BookRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON")
			return
		}

		appt, err := svc.Book(r.Context(), req, principal(r))
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appt)
	}
}

func appointmentStatsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Stats(r.Context(), principal(r))
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, st)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id, principal(r))
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func listDoctorAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, chi.URLParam(r, "doctorID"), "doctorID")
		if !ok {
			return
		}
		if !selfOrAdmin(r, doctorID) {
			writeError(w, http.StatusForbidden, auth.ErrForbidden.Error())
			return
		}

		list, err := svc.ListByDoctor(r.Context(), doctorID, r.URL.Query().Get("status"))
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		if list == nil {
			list = []appointment.Appointment{}
		}

		writeJSON(w, http.StatusOK, list)
	}
}

func listPatientAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := parseUUIDParam(w, chi.URLParam(r, "patientID"), "patientID")
		if !ok {
			return
		}
		if !selfOrAdmin(r, patientID) {
			writeError(w, http.StatusForbidden, auth.ErrForbidden.Error())
			return
		}

		list, err := svc.ListByPatient(r.Context(), patientID, r.URL.Query().Get("status"))
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		if list == nil {
			list = []appointment.Appointment{}
		}

		writeJSON(w, http.StatusOK, list)
	}
}

func updateAppointmentStatusHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON")
			return
		}

		status, err := appointment.ParseStatus(req.Status)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), id, status, principal(r), req.Reason)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func completeAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		appt, err := svc.Complete(r.Context(), id, principal(r))
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, appointment.ErrUnknownStatus),
		errors.Is(err, appointment.ErrInvalidBooking):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, appointment.ErrDoctorNotBookable):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, appointment.ErrSlotTaken),
		errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, appointment.ErrNotParticipant):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, appointment.ErrAppointmentBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
