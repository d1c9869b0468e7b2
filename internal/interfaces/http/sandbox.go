package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"horizon/internal/infrastructure/provider"
	"horizon/internal/infrastructure/provider/sandbox"
)

// SandboxHandler stands in for the provider's link widget during
// development: it turns a link token and an institution choice into a
// public token. Only mounted when the sandbox provider is active.
type SandboxHandler struct {
	client *sandbox.Client
	errors *Errors
}

func NewSandboxHandler(client *sandbox.Client, errors *Errors) *SandboxHandler {
	return &SandboxHandler{client: client, errors: errors}
}

type PublicTokenRequest struct {
	LinkToken     string `json:"linkToken"`
	InstitutionID string `json:"institutionId"`
}

type PublicTokenResponse struct {
	PublicToken string               `json:"publicToken"`
	Institution provider.Institution `json:"institution"`
}

// HandleInstitutions handles GET /sandbox/institutions
func (h *SandboxHandler) HandleInstitutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.client.Institutions())
}

// HandlePublicToken handles POST /sandbox/public-token
func (h *SandboxHandler) HandlePublicToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req PublicTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.BadRequest(w, "Invalid request body")
		return
	}

	token, err := h.client.CreatePublicToken(req.LinkToken, req.InstitutionID)
	switch {
	case errors.Is(err, sandbox.ErrUnknownInstitution):
		h.errors.BadRequest(w, "Unknown institution")
		return
	case errors.Is(err, provider.ErrInvalidToken):
		h.errors.BadRequest(w, "Unknown or expired link token")
		return
	case err != nil:
		h.errors.Write(w, "sandbox public token", err)
		return
	}

	resp := PublicTokenResponse{PublicToken: token}
	for _, inst := range h.client.Institutions() {
		if inst.ID == req.InstitutionID {
			resp.Institution = inst
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}
