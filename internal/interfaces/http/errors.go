package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"horizon/internal/domain/link"
	"horizon/internal/domain/notification"
	"horizon/internal/shared/errs"
	"horizon/internal/shared/messages"
	"horizon/internal/shared/middleware"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Errors maps domain errors to status codes and user-facing text.
type Errors struct {
	text messages.ErrorMessages
}

func NewErrors(text messages.ErrorMessages) *Errors {
	return &Errors{text: text}
}

// Write responds with the status and message for err. Unexpected errors are
// logged with op and reported as 500.
func (e *Errors) Write(w http.ResponseWriter, op string, err error) {
	status, code, message := e.classify(err)
	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		log.Printf("%s: %v", op, err)
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// BadRequest responds 400 with a specific message.
func (e *Errors) BadRequest(w http.ResponseWriter, message string) {
	if message == "" {
		message = e.text.BadRequest
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: message})
}

func (e *Errors) classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, errs.ErrAuth):
		return http.StatusUnauthorized, "unauthorized", e.text.Auth
	case errors.Is(err, errs.ErrInvalidToken):
		return http.StatusBadRequest, "invalid_token", e.text.InvalidToken
	case errors.Is(err, link.ErrSessionNotFound), errors.Is(err, link.ErrLinkNotFound):
		return http.StatusNotFound, "not_found", e.text.NotFound
	case errors.Is(err, link.ErrInvalidTransition):
		return http.StatusConflict, "conflict", e.text.InvalidToken
	case errors.Is(err, notification.ErrInvalidToken), errors.Is(err, notification.ErrInvalidPlatform):
		return http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, errs.ErrProvider):
		return http.StatusBadGateway, "provider_error", e.text.Provider
	default:
		return http.StatusInternalServerError, "internal_error", e.text.Internal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// currentUserID reads the id set by the auth middleware.
func currentUserID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(middleware.UserIDKey).(int64)
	return id, ok
}
