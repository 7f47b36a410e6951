package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-availability/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps an application error onto its HTTP status by kind.
// Messages for 5xx responses; the underlying error is only logged.
const (
	storeUnavailableMessage = "storage is temporarily unavailable"
	internalErrorMessage    = "internal server error"
)

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind, _ := apperr.KindOf(err)

	switch kind {
	case apperr.KindValidation:
		writeError(w, http.StatusBadRequest, string(kind), err.Error())
	case apperr.KindNotFound:
		writeError(w, http.StatusNotFound, string(kind), err.Error())
	case apperr.KindInvalidState:
		writeError(w, http.StatusConflict, string(kind), err.Error())
	case apperr.KindStore:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("store failure")
		writeError(w, http.StatusServiceUnavailable, string(kind), storeUnavailableMessage)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("unclassified error")
		writeError(w, http.StatusInternalServerError, "internal_error", internalErrorMessage)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func urlID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseOptionalUUID reads an optional UUID query or body field.
func parseOptionalUUID(raw, field string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation(field + " must be a valid UUID")
	}
	return &id, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(key + " must be an integer")
	}
	return n, nil
}
