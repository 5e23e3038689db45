package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/telecare/internal/appointment"
	"github.com/hackgods/telecare/internal/consultation"
)

func saveConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in consultation.SaveInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON")
			return
		}

		rec, err := svc.Save(r.Context(), in, principal(r))
		if err != nil {
			handleConsultationError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, rec)
	}
}

// getConsultationHandler accepts either a record id or an appointment id.
func getConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		rec, err := svc.Get(r.Context(), id, principal(r))
		if err != nil {
			handleConsultationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, rec)
	}
}

func updatePrescriptionHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		var req UpdatePrescriptionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON")
			return
		}
		if req.Prescription == nil {
			writeError(w, http.StatusBadRequest, "prescription data is required")
			return
		}

		rec, err := svc.UpdatePrescription(r.Context(), id, *req.Prescription, principal(r))
		if err != nil {
			handleConsultationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, rec)
	}
}

func prescriptionPDFHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		pdf, err := svc.PrescriptionPDF(r.Context(), id, principal(r))
		if err != nil {
			handleConsultationError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="prescription-`+id.String()+`.pdf"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	}
}

func handleConsultationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, consultation.ErrConsultationNotFound),
		errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, consultation.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, consultation.ErrNotAssignedDoctor),
		errors.Is(err, appointment.ErrNotParticipant):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
