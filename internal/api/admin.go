package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/telecare/internal/admin"
)

func pendingDoctorsHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := svc.PendingDoctors(r.Context())
		if err != nil {
			handleAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pending)
	}
}

func approveDoctorHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		doc, err := svc.ApproveDoctor(r.Context(), id, principal(r).UserID)
		if err != nil {
			handleAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func rejectDoctorHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		var req RejectDoctorRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON")
			return
		}

		doc, err := svc.RejectDoctor(r.Context(), id, principal(r).UserID, req.Reason)
		if err != nil {
			handleAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func listPatientsHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := admin.PatientFilter{Search: q.Get("search")}

		if raw := q.Get("active"); raw != "" {
			active, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "active must be true or false")
				return
			}
			f.Active = &active
		}
		f.Page, _ = strconv.Atoi(q.Get("page"))
		f.Limit, _ = strconv.Atoi(q.Get("limit"))

		page, err := svc.ListPatients(r.Context(), f)
		if err != nil {
			handleAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func patientStatsHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.PatientStats(r.Context())
		if err != nil {
			handleAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func getPatientHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		p, err := svc.PatientByID(r.Context(), id)
		if err != nil {
			handleAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func patientStatusHandler(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		var req PatientStatusRequest
		if err := decodeJSON(r, &req); err != nil || req.IsActive == nil {
			writeError(w, http.StatusBadRequest, "isActive is required")
			return
		}

		p, err := svc.SetPatientActive(r.Context(), id, *req.IsActive)
		if err != nil {
			handleAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admin.ErrDoctorNotFound),
		errors.Is(err, admin.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, admin.ErrRejectionReasonRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, admin.ErrAlreadyApproved),
		errors.Is(err, admin.ErrAlreadyRejected),
		errors.Is(err, admin.ErrApprovalConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
