package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"horizon/internal/domain/link"
	"horizon/internal/domain/notification"
	"horizon/internal/shared/errs"
	"horizon/internal/shared/messages"
)

func TestErrorsWrite(t *testing.T) {
	text := messages.Default().Errors
	e := NewErrors(text)

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"auth", errs.ErrAuth, http.StatusUnauthorized, "unauthorized", text.Auth},
		{"invalid token", fmt.Errorf("%w: reused", errs.ErrInvalidToken), http.StatusBadRequest, "invalid_token", text.InvalidToken},
		{"provider", &errs.ProviderError{Op: "accounts", Err: errors.New("503")}, http.StatusBadGateway, "provider_error", text.Provider},
		{"session not found", link.ErrSessionNotFound, http.StatusNotFound, "not_found", text.NotFound},
		{"link not found", fmt.Errorf("revoke: %w", link.ErrLinkNotFound), http.StatusNotFound, "not_found", text.NotFound},
		{"transition", link.ErrInvalidTransition, http.StatusConflict, "conflict", text.InvalidToken},
		{"platform", notification.ErrInvalidPlatform, http.StatusBadRequest, "bad_request", notification.ErrInvalidPlatform.Error()},
		{"unexpected", errors.New("disk full"), http.StatusInternalServerError, "internal_error", text.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			e.Write(rr, "test", tt.err)

			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			var body ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Error != tt.code || body.Message != tt.message {
				t.Errorf("body = %+v, want {%s %s}", body, tt.code, tt.message)
			}
		})
	}
}

func TestErrorsBadRequest_DefaultMessage(t *testing.T) {
	text := messages.Default().Errors
	rr := httptest.NewRecorder()
	NewErrors(text).BadRequest(rr, "")

	var body ErrorResponse
	json.NewDecoder(rr.Body).Decode(&body)
	if rr.Code != http.StatusBadRequest || body.Message != text.BadRequest {
		t.Errorf("BadRequest(\"\") = %d %+v", rr.Code, body)
	}
}
