package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/requestdesk/internal/security/middleware"
	"github.com/aryan0dhankhar/requestdesk/internal/service"
)

// maxJSONBody bounds every JSON request body.
const maxJSONBody = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// MessageResponse is the generic {success, message} envelope.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code. Internal causes are logged and
// never shown to the client.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	requestID := logger.RequestID(r.Context())

	var unverified *service.UnverifiedEmailError
	if errors.As(err, &unverified) {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":            unverified.Error(),
			"verification_url": unverified.VerificationURL,
			"email":            unverified.Email,
			"request_id":       requestID,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	}

	msg := apperr.Message(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		msg = "internal server error"
	} else if msg == "" {
		msg = err.Error()
	}
	writeJSON(w, status, ErrorResponse{Error: msg, RequestID: requestID})
}

// decodeJSON reads a bounded JSON body into v. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body too large")
		}
		return apperr.Validation("invalid JSON body")
	}
	return nil
}

// currentUser returns the authenticated user. Routes without Authenticate
// never call it.
func currentUser(r *http.Request) (*domain.User, error) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}
	return user, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validationf("%s must be an integer", name)
	}
	return n, nil
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
