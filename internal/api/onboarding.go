package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/onboarding"
)

// onboardingRole resolves {role} and checks it matches the caller.
func onboardingRole(w http.ResponseWriter, r *http.Request) (auth.Role, bool) {
	role, err := onboarding.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	if principal(r).Role != role {
		writeError(w, http.StatusForbidden, auth.ErrForbidden.Error())
		return "", false
	}
	return role, true
}

func onboardingStatusHandler(svc OnboardingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, ok := onboardingRole(w, r)
		if !ok {
			return
		}

		st, err := svc.Status(r.Context(), principal(r).UserID, role)
		if err != nil {
			handleOnboardingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, st)
	}
}

func onboardingDataHandler(svc OnboardingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, ok := onboardingRole(w, r)
		if !ok {
			return
		}

		ob, err := svc.Data(r.Context(), principal(r).UserID, role)
		if err != nil {
			handleOnboardingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ob)
	}
}

func saveOnboardingHandler(svc OnboardingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, ok := onboardingRole(w, r)
		if !ok {
			return
		}

		var req SaveOnboardingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse JSON")
			return
		}

		ob, err := svc.SaveStep(r.Context(), principal(r).UserID, role, req.Step, req.Data)
		if err != nil {
			handleOnboardingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ob.Progress)
	}
}

func handleOnboardingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, onboarding.ErrOnboardingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, onboarding.ErrInvalidStep),
		errors.Is(err, onboarding.ErrEmptyStepData),
		errors.Is(err, onboarding.ErrUnsupportedRole):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, onboarding.ErrOnboardingBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
