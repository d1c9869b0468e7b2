package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"horizon/internal/domain/accounts"
	"horizon/internal/shared/errs"
	"horizon/internal/shared/messages"
)

const maxRecentTransactions = 100

// AccountsHandler serves aggregated balances and recent transactions.
type AccountsHandler struct {
	aggregator  *accounts.Aggregator
	errors      *Errors
	text        messages.ErrorMessages
	recentLimit int
}

func NewAccountsHandler(aggregator *accounts.Aggregator, errors *Errors, text messages.ErrorMessages, recentLimit int) *AccountsHandler {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	return &AccountsHandler{aggregator: aggregator, errors: errors, text: text, recentLimit: recentLimit}
}

// AccountsResponse is the merged account list. Error and Message are set when
// some or all institutions could not be refreshed.
type AccountsResponse struct {
	*accounts.Result
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// HandleListAccounts handles GET /api/accounts/. Clients that accept
// text/event-stream receive one event per institution as it settles.
func (h *AccountsHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := currentUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.streamAccounts(w, r, userID)
		return
	}

	result, err := h.aggregator.GetAccountsForUser(r.Context(), userID)
	if result == nil {
		h.errors.Write(w, "list accounts", err)
		return
	}

	resp := AccountsResponse{Result: result}
	status := http.StatusOK
	switch {
	case errors.Is(err, errs.ErrProvider):
		log.Printf("User %d: no institution could be refreshed: %v", userID, err)
		resp.Error = "provider_error"
		resp.Message = h.text.Provider
		status = http.StatusBadGateway
	case err != nil:
		h.errors.Write(w, "list accounts", err)
		return
	case result.PartialError() != nil:
		log.Printf("User %d: %v", userID, result.PartialError())
		resp.Error = "partial_aggregation"
		resp.Message = h.text.PartialAggregation
	}

	writeJSON(w, status, resp)
}

func (h *AccountsHandler) streamAccounts(w http.ResponseWriter, r *http.Request, userID int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusNotAcceptable)
		return
	}

	results, err := h.aggregator.StreamAccountsForUser(r.Context(), userID)
	if err != nil {
		h.errors.Write(w, "stream accounts", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	failed := 0
	for inst := range results {
		if inst.Failure != nil {
			failed++
		}
		if err := writeEvent(w, "institution", inst); err != nil {
			log.Printf("User %d: stopped streaming accounts: %v", userID, err)
			return
		}
		flusher.Flush()
	}

	writeEvent(w, "done", map[string]int{"failed": failed})
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// HandleRecentTransactions handles GET /api/transactions/recent?limit=N
func (h *AccountsHandler) HandleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := currentUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := h.recentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.errors.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentTransactions)
	}

	result, err := h.aggregator.RecentTransactions(r.Context(), userID, limit)
	if err != nil {
		h.errors.Write(w, "recent transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
