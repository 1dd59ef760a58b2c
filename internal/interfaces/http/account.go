package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"flint/internal/domain/account"
	"flint/internal/domain/connection"
	"flint/internal/shared/middleware"
)

const maxLinkBodySize = 1 << 20 // 1 MiB

type AccountHandler struct {
	linker      *account.Linker
	accounts    account.Repository
	connections connection.Repository
	views       *ViewCache
}

func NewAccountHandler(linker *account.Linker, accounts account.Repository, connections connection.Repository, views *ViewCache) *AccountHandler {
	return &AccountHandler{linker: linker, accounts: accounts, connections: connections, views: views}
}

type LinkAccountsRequest struct {
	Accounts []account.LinkAccountParams `json:"accounts"`
}

// HandleLinkAccounts handles POST /api/accounts/link. Batches over the
// tier limit are partially accepted; the report says how many made it.
func (h *AccountHandler) HandleLinkAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxLinkBodySize)
	var req LinkAccountsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Accounts) == 0 {
		http.Error(w, "At least one account is required", http.StatusBadRequest)
		return
	}

	report, err := h.linker.LinkAccounts(r.Context(), userID, req.Accounts)
	if err != nil {
		log.Printf("User %d: account linking failed: %v", userID, err)
		writeError(w, err)
		return
	}

	if report.AccountsSaved > 0 {
		h.views.Invalidate(r.Context(), userID)
	}

	status := http.StatusOK
	if report.AccountsRejected > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, report)
}

// HandleAccounts handles GET /api/accounts (list).
func (h *AccountHandler) HandleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	accounts, err := h.accounts.ListByUserID(r.Context(), userID)
	if err != nil {
		log.Printf("User %d: listing accounts failed: %v", userID, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// HandleDisconnectAccount handles DELETE /api/accounts/{provider}/{id}.
// Bank accounts are deleted locally; brokerage ids name the authorization
// whose connection record is removed.
func (h *AccountHandler) HandleDisconnectAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	provider := r.PathValue("provider")
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Account ID is required", http.StatusBadRequest)
		return
	}

	switch provider {
	case "bank":
		if err := h.accounts.Delete(r.Context(), userID, id); err != nil {
			if errors.Is(err, account.ErrAccountNotFound) {
				http.Error(w, "Account not found", http.StatusNotFound)
				return
			}
			log.Printf("User %d: deleting bank account %s failed: %v", userID, id, err)
			writeError(w, err)
			return
		}
	case "brokerage":
		if err := h.connections.Delete(r.Context(), userID, id); err != nil {
			if errors.Is(err, connection.ErrConnectionNotFound) {
				http.Error(w, "Connection not found", http.StatusNotFound)
				return
			}
			log.Printf("User %d: deleting connection %s failed: %v", userID, id, err)
			writeError(w, err)
			return
		}
	default:
		http.Error(w, "Unknown provider", http.StatusBadRequest)
		return
	}
	h.views.Invalidate(r.Context(), userID)

	w.WriteHeader(http.StatusNoContent)
}
