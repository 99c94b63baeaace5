package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/demotape/internal/apperr"
	"github.com/starford/demotape/internal/recorder"
)

const maxJSONBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodeJSON reads a size-limited JSON body into v and runs its validation
// rules. It writes the 400 response itself and reports whether to continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, apperr.ErrInvalidTitle):
		return http.StatusBadRequest, "title must not be blank"
	case errors.Is(err, apperr.ErrSectionOutOfRange):
		return http.StatusBadRequest, "section index out of range"
	case errors.Is(err, apperr.ErrInvalidPermutation):
		return http.StatusBadRequest, "order is not a permutation of the sections"
	case errors.Is(err, apperr.ErrTooShort):
		return http.StatusUnprocessableEntity, "recording too short"
	case errors.Is(err, apperr.ErrSessionBusy):
		return http.StatusConflict, "a recording session is already open"
	case errors.Is(err, apperr.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, recorder.ErrCanceled):
		return http.StatusConflict, "recording canceled"
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict, err.Error()
	case errors.Is(err, apperr.ErrPermissionDenied):
		return http.StatusForbidden, "microphone permission denied"
	case errors.Is(err, apperr.ErrTranscription):
		return http.StatusBadGateway, "transcription failed"
	}
	return http.StatusInternalServerError, "internal error"
}

// writeError logs unexpected failures and writes the mapped status.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("api: "+op+" failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody(msg))
}
