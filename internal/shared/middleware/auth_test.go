package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"horizon/internal/shared/auth"
)

type mockRevocations struct {
	revoked map[string]bool
	err     error
}

func (m *mockRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	return m.revoked[sessionID], m.err
}

func TestAuth(t *testing.T) {
	jwt := auth.NewJWT("test-secret", time.Hour)
	validToken, _ := jwt.Generate(1, "test@example.com")
	revokedToken, _ := jwt.Generate(1, "test@example.com")
	revokedClaims, _ := jwt.Validate(revokedToken)
	expiredToken, _ := auth.NewJWT("test-secret", -time.Minute).Generate(1, "test@example.com")

	revocations := &mockRevocations{revoked: map[string]bool{revokedClaims.SessionID(): true}}

	tests := []struct {
		name           string
		setupRequest   func(r *http.Request)
		revocations    RevocationChecker
		expectedStatus int
		expectedUser   bool
	}{
		{
			name: "Valid Token in Cookie",
			setupRequest: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: SessionCookie, Value: validToken})
			},
			revocations:    revocations,
			expectedStatus: http.StatusOK,
			expectedUser:   true,
		},
		{
			name: "Valid Token in Header",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+validToken)
			},
			revocations:    revocations,
			expectedStatus: http.StatusOK,
			expectedUser:   true,
		},
		{
			name:           "No Token",
			setupRequest:   func(r *http.Request) {},
			revocations:    revocations,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Invalid Token",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer invalid")
			},
			revocations:    revocations,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Expired Token",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+expiredToken)
			},
			revocations:    revocations,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Logged Out Session",
			setupRequest: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: SessionCookie, Value: revokedToken})
			},
			revocations:    revocations,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Revocation Store Down",
			setupRequest: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: SessionCookie, Value: validToken})
			},
			revocations:    &mockRevocations{err: errors.New("connection refused")},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				userID, ok := r.Context().Value(UserIDKey).(int64)
				if !ok && tt.expectedUser {
					t.Error("Expected user ID in context, got none")
				}
				if ok && userID != 1 {
					t.Errorf("Expected user ID 1, got %d", userID)
				}
				if claims := auth.ClaimsFromContext(r.Context()); claims == nil || claims.Email != "test@example.com" {
					t.Errorf("claims = %+v, want session claims", claims)
				}
				w.WriteHeader(http.StatusOK)
			})

			handler := Auth(jwt, tt.revocations)(nextHandler)

			req := httptest.NewRequest("GET", "/", nil)
			tt.setupRequest(req)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if rr.Code == http.StatusUnauthorized && rr.Header().Get("Content-Type") != "application/json" {
				t.Errorf("401 Content-Type = %q, want application/json", rr.Header().Get("Content-Type"))
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	jwt := auth.NewJWT("test-secret", time.Hour)
	validToken, _ := jwt.Generate(5, "opt@example.com")

	tests := []struct {
		name     string
		header   string
		wantUser bool
	}{
		{"signed in", "Bearer " + validToken, true},
		{"signed out", "", false},
		{"garbage token", "Bearer nope", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if got := auth.ClaimsFromContext(r.Context()) != nil; got != tt.wantUser {
					t.Errorf("claims present = %v, want %v", got, tt.wantUser)
				}
			})

			req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			OptionalAuth(jwt, &mockRevocations{})(next).ServeHTTP(httptest.NewRecorder(), req)

			if !called {
				t.Error("next handler not called")
			}
		})
	}
}
