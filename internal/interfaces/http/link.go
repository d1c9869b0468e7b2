package http

import (
	"encoding/json"
	"log"
	"net/http"

	"horizon/internal/domain/link"
)

const maxBodySize = 1 << 20 // 1 MiB

// LinkHandler serves the connect-bank flow: link tokens, session state, the
// public token exchange and the list of linked institutions.
type LinkHandler struct {
	manager   *link.Manager
	exchanger *link.Exchanger
	errors    *Errors
}

func NewLinkHandler(manager *link.Manager, exchanger *link.Exchanger, errors *Errors) *LinkHandler {
	return &LinkHandler{manager: manager, exchanger: exchanger, errors: errors}
}

// HandleCreateToken handles POST /api/link/token
func (h *LinkHandler) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := currentUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := h.manager.CreateLinkToken(r.Context(), userID)
	if err != nil {
		h.errors.Write(w, "create link token", err)
		return
	}

	writeJSON(w, http.StatusCreated, token)
}

// HandleSession handles GET /api/link/sessions/{token}
func (h *LinkHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := currentUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	session, err := h.manager.Status(r.Context(), userID, r.PathValue("token"))
	if err != nil {
		h.errors.Write(w, "link session status", err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// HandleOpenSession handles POST /api/link/sessions/{token}/open, sent when
// the widget is shown to the user.
func (h *LinkHandler) HandleOpenSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := currentUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	session, err := h.manager.MarkWidgetOpen(r.Context(), userID, r.PathValue("token"))
	if err != nil {
		h.errors.Write(w, "open link session", err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// HandleExchange handles POST /api/link/exchange with the widget's success
// payload.
func (h *LinkHandler) HandleExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := currentUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req link.ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.BadRequest(w, "Invalid request body")
		return
	}

	l, err := h.exchanger.ExchangePublicToken(r.Context(), userID, req)
	if err != nil {
		h.errors.Write(w, "exchange public token", err)
		return
	}

	log.Printf("User %d: linked %s (%s)", userID, l.InstitutionName, l.ID)
	writeJSON(w, http.StatusCreated, l)
}

// HandleInstitutions handles GET /api/institutions/
func (h *LinkHandler) HandleInstitutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := currentUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	links, err := h.exchanger.ListLinks(r.Context(), userID)
	if err != nil {
		h.errors.Write(w, "list institutions", err)
		return
	}
	if links == nil {
		links = []*link.InstitutionLink{}
	}

	writeJSON(w, http.StatusOK, links)
}

// HandleInstitutionByID handles DELETE /api/institutions/{id}
func (h *LinkHandler) HandleInstitutionByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	linkID := r.PathValue("id")
	if linkID == "" {
		h.errors.BadRequest(w, "Institution ID is required")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := h.exchanger.RevokeLink(r.Context(), userID, linkID); err != nil {
			h.errors.Write(w, "revoke link", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
