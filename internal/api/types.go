package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/telecare/internal/consultation"
	"github.com/hackgods/telecare/internal/result"
)

type UpdateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type UpdatePrescriptionRequest struct {
	Prescription *consultation.Prescription `json:"prescription"`
}

type SaveOnboardingRequest struct {
	Step int            `json:"step"`
	Data map[string]any `json:"data"`
}

type RejectDoctorRequest struct {
	Reason string `json:"reason"`
}

type PatientStatusRequest struct {
	IsActive *bool `json:"isActive"`
}

// writeJSON wraps v in a success envelope.
func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	writeEnvelope(w, status, result.Ok(v))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, result.Fail[any](message))
}

func writeEnvelope[T any](w http.ResponseWriter, status int, r result.Result[T]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(r)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func parseUUIDParam(w http.ResponseWriter, raw, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
