package http

import (
	"log"
	"net/http"
	"time"

	"flint/internal/domain/recurring"
	"flint/internal/domain/transaction"
	"flint/internal/shared/middleware"
)

type TransactionHandler struct {
	transactions *transaction.Service
	now          func() time.Time
}

func NewTransactionHandler(transactions *transaction.Service) *TransactionHandler {
	return &TransactionHandler{transactions: transactions, now: time.Now}
}

// HandleTransactions handles GET /api/transactions. Accounts whose live
// fetch fails serve cached rows, flagged stale in the response.
func (h *TransactionHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.transactions.ListForUser(r.Context(), userID)
	if err != nil {
		log.Printf("User %d: listing transactions failed: %v", userID, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleSubscriptions handles GET /api/subscriptions. Recurring payments
// are detected from transaction history on every request, never stored.
func (h *TransactionHandler) HandleSubscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.transactions.ListForUser(r.Context(), userID)
	if err != nil {
		log.Printf("User %d: listing transactions for subscriptions failed: %v", userID, err)
		writeError(w, err)
		return
	}

	subs := recurring.Detect(result.Transactions, h.now())

	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": subs,
		"stale":         result.Stale,
	})
}
