package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"horizon/internal/shared/auth"
)

type ContextKey string

const (
	UserIDKey ContextKey = "user_id"
	EmailKey  ContextKey = "email"
)

// SessionCookie carries the session JWT for browser clients.
const SessionCookie = "access_token"

// RevocationChecker reports whether a session was logged out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Auth rejects requests without a valid, unrevoked session with 401.
func Auth(jwt *auth.JWT, revoked RevocationChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractToken(r)
			if !ok {
				unauthorized(w, "Authentication required")
				return
			}

			claims, err := jwt.Validate(token)
			if err != nil {
				unauthorized(w, "Invalid or expired session")
				return
			}

			if isRevoked(r.Context(), revoked, claims) {
				unauthorized(w, "Session has ended")
				return
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches the session when one is present and valid, and
// otherwise lets the request through signed out.
func OptionalAuth(jwt *auth.JWT, revoked RevocationChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := jwt.Validate(token)
			if err != nil || isRevoked(r.Context(), revoked, claims) {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), claims)))
		})
	}
}

// extractToken prefers the HttpOnly cookie (browsers) over the Authorization
// header (API clients).
func extractToken(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// isRevoked fails closed: if the revocation store cannot be reached the
// session is treated as ended.
func isRevoked(ctx context.Context, revoked RevocationChecker, claims *auth.JWTClaims) bool {
	if revoked == nil || claims.SessionID() == "" {
		return false
	}
	ok, err := revoked.IsRevoked(ctx, claims.SessionID())
	if err != nil {
		log.Printf("User %d: revocation check failed: %v", claims.UserID, err)
		return true
	}
	return ok
}

func withSession(ctx context.Context, claims *auth.JWTClaims) context.Context {
	ctx = auth.WithClaims(ctx, claims)
	ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
	return context.WithValue(ctx, EmailKey, claims.Email)
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
