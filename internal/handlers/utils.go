package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/calmspace/apiserver/internal/auth"
	"github.com/calmspace/apiserver/internal/logging"
	"github.com/calmspace/apiserver/internal/services"
	"github.com/calmspace/apiserver/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

const (
	maxBodyBytes = 1 << 20

	msgInvalidBody   = "Invalid request body"
	msgInternal      = "Internal server error"
	msgUnauthorized  = "Access token required"
	msgInvalidToken  = "Invalid or expired token"
	msgTooManyLogins = "Too many failed login attempts, please try again later"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string                  `json:"error"`
	Details []validation.FieldError `json:"details,omitempty"`
}

// MessageResponse is a bare confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

// writeServiceError maps a service error onto a status code. Unclassified
// errors are logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Message, Details: verr.Details})
	case errors.Is(err, services.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, msgTooManyLogins)
	case errors.Is(err, services.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logging.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

// decodeJSON reads a JSON body into dst. It writes a 400 and returns false
// when the body cannot be decoded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

func parseID(r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, param)), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// currentUser returns the identity placed in the context by RequireAuth.
func currentUser(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return auth.Identity{}, false
	}
	return id, true
}

func optionalString(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return &raw
}
