package http

import (
	"net/http"
	"net/url"
	"strings"

	"horizon/internal/domain/session"
	"horizon/internal/domain/user"
	"horizon/internal/shared/errs"
	"horizon/internal/shared/messages"
	"horizon/internal/shared/middleware"
)

// SessionHandler exposes the signed-in identity and the logout action.
type SessionHandler struct {
	sessions   *session.Service
	errors     *Errors
	text       messages.ErrorMessages
	signInPath string
}

func NewSessionHandler(sessions *session.Service, errors *Errors, text messages.ErrorMessages, signInPath string) *SessionHandler {
	if signInPath == "" {
		signInPath = "/sign-in"
	}
	return &SessionHandler{sessions: sessions, errors: errors, text: text, signInPath: signInPath}
}

type UserResponse struct {
	*user.User
	Initial  string `json:"initial"`
	FullName string `json:"fullName"`
}

type LogoutResponse struct {
	LoggedOut bool   `json:"loggedOut"`
	Redirect  string `json:"redirect"`
	Message   string `json:"message,omitempty"`
}

// HandleMe handles GET /api/users/me
func (h *SessionHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	u, err := h.sessions.CurrentUser(r.Context())
	if err != nil {
		h.errors.Write(w, "current user", err)
		return
	}
	if u == nil {
		h.errors.Write(w, "current user", errs.ErrAuth)
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{User: u, Initial: u.Initial(), FullName: u.FullName()})
}

// HandleLogout handles POST /api/auth/logout. The cookie is always cleared.
// Browsers are sent to the sign-in view, with a notice when the session could
// not be revoked; JSON clients get the outcome in the body.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ok, err := h.sessions.Logout(r.Context())
	clearSessionCookie(w, r)

	redirect := h.signInPath
	resp := LogoutResponse{LoggedOut: ok && err == nil, Redirect: redirect}
	if !resp.LoggedOut {
		resp.Message = h.text.LogoutFailed
		redirect += "?" + url.Values{"notice": {"logout_failed"}}.Encode()
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	// Only set Secure flag when actually using HTTPS
	secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
