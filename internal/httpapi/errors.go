package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/klask-io/klask-io-sub002/internal/apperr"
)

// errorEnvelope is the {code, message, field?} body from spec.md §7.
type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an apperr sentinel to its HTTP status and emits the
// error envelope.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	env := errorEnvelope{Code: code, Message: err.Error()}
	var fe fieldError
	if errors.As(err, &fe) {
		env.Field = fe.field
	}
	writeJSON(w, status, env)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, apperr.ErrNameTaken):
		return http.StatusConflict, "Conflict.NameTaken"
	case errors.Is(err, apperr.ErrCrawlActive):
		return http.StatusConflict, "Conflict.CrawlActive"
	case errors.Is(err, apperr.ErrAlreadyRunning):
		return http.StatusConflict, "Conflict.AlreadyRunning"
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, "BadInput.Validation"
	case errors.Is(err, apperr.ErrBadQuery):
		return http.StatusBadRequest, "BadInput.BadQuery"
	case errors.Is(err, apperr.ErrBadSchedule):
		return http.StatusBadRequest, "BadInput.BadSchedule"
	case errors.Is(err, apperr.ErrTimeout):
		return http.StatusGatewayTimeout, "Timeout"
	case errors.Is(err, apperr.ErrIO):
		return http.StatusInternalServerError, "Io"
	case errors.Is(err, apperr.ErrUnavailable):
		return http.StatusServiceUnavailable, "Unavailable"
	case errors.Is(err, apperr.ErrCancelled):
		return http.StatusOK, "Cancelled"
	default:
		return http.StatusInternalServerError, "Internal"
	}
}
