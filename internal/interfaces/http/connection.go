package http

import (
	"log"
	"net/http"
	"time"

	"flint/internal/domain/connection"
	"flint/internal/domain/identity"
	"flint/internal/shared/middleware"
)

type ConnectionHandler struct {
	registrar   *identity.Registrar
	sync        *connection.SyncService
	connections connection.Repository
	views       *ViewCache
	staleAfter  time.Duration
	now         func() time.Time
}

func NewConnectionHandler(registrar *identity.Registrar, sync *connection.SyncService, connections connection.Repository, views *ViewCache, staleAfter time.Duration) *ConnectionHandler {
	return &ConnectionHandler{
		registrar:   registrar,
		sync:        sync,
		connections: connections,
		views:       views,
		staleAfter:  staleAfter,
		now:         time.Now,
	}
}

type RegisterIdentityResponse struct {
	ProviderUserID string `json:"providerUserId"`
	RegisteredAt   string `json:"registeredAt"`
}

type ConnectionResponse struct {
	*connection.Connection
	Health connection.Health `json:"health"`
}

// HandleRegisterIdentity handles POST /api/connections/register. Safe to call
// repeatedly; concurrent calls for the same user converge on one identity.
func (h *ConnectionHandler) HandleRegisterIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ident, err := h.registrar.EnsureIdentity(r.Context(), userID)
	if err != nil {
		log.Printf("User %d: identity registration failed: %v", userID, err)
		writeError(w, err)
		return
	}
	h.views.Invalidate(r.Context(), userID)

	writeJSON(w, http.StatusOK, RegisterIdentityResponse{
		ProviderUserID: ident.ProviderUserID,
		RegisteredAt:   ident.CreatedAt.Format(time.RFC3339),
	})
}

// HandleSync handles POST /api/connections/sync. An optional authorizationId
// query parameter narrows the sync to one connection.
func (h *ConnectionHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()

	if authorizationID := r.URL.Query().Get("authorizationId"); authorizationID != "" {
		conn, err := h.sync.SyncOne(ctx, userID, authorizationID)
		if err != nil {
			log.Printf("User %d: sync of authorization %s failed: %v", userID, authorizationID, err)
			writeError(w, err)
			return
		}
		h.views.Invalidate(ctx, userID)
		writeJSON(w, http.StatusOK, h.toResponse(conn))
		return
	}

	result, err := h.sync.SyncAll(ctx, userID)
	if err != nil {
		log.Printf("User %d: sync failed: %v", userID, err)
		writeError(w, err)
		return
	}
	h.views.Invalidate(ctx, userID)

	writeJSON(w, http.StatusOK, result)
}

// HandleConnections handles GET /api/connections.
func (h *ConnectionHandler) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conns, err := h.connections.ListByUserID(r.Context(), userID)
	if err != nil {
		log.Printf("User %d: listing connections failed: %v", userID, err)
		writeError(w, err)
		return
	}

	items := make([]ConnectionResponse, 0, len(conns))
	for _, conn := range conns {
		items = append(items, h.toResponse(conn))
	}

	writeJSON(w, http.StatusOK, map[string]any{"connections": items})
}

// HandleRotateSecret handles POST /api/connections/rotate.
func (h *ConnectionHandler) HandleRotateSecret(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ident, err := h.registrar.RotateSecret(r.Context(), userID)
	if err != nil {
		log.Printf("User %d: secret rotation failed: %v", userID, err)
		writeError(w, err)
		return
	}

	resp := map[string]any{"providerUserId": ident.ProviderUserID}
	if ident.RotatedAt != nil {
		resp["rotatedAt"] = ident.RotatedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleDisconnect handles POST /api/connections/disconnect. It removes the
// provider-side identity and every local record tied to it.
func (h *ConnectionHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.registrar.Disconnect(r.Context(), userID); err != nil {
		log.Printf("User %d: disconnect failed: %v", userID, err)
		writeError(w, err)
		return
	}
	h.views.Invalidate(r.Context(), userID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConnectionHandler) toResponse(conn *connection.Connection) ConnectionResponse {
	return ConnectionResponse{
		Connection: conn,
		Health:     conn.HealthAt(h.now(), h.staleAfter),
	}
}
