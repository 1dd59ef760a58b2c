package main

import (
	"encoding/json"
	"log"
	"net/http"

	"flint/internal/scheduler"
	"flint/internal/shared/config"
	"flint/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, sched *scheduler.Scheduler) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", handleHealth)

	// Public auth routes
	mux.HandleFunc("/api/auth/register", deps.AuthHandler.HandleRegister)
	mux.HandleFunc("/api/auth/login", deps.AuthHandler.HandleLogin)
	mux.HandleFunc("/api/auth/logout", deps.AuthHandler.HandleLogout)

	// Protected routes
	authMiddleware := middleware.Auth(deps.JWT)
	rateLimit := middleware.RateLimit(deps.Cache, cfg.Cache.RateLimit, cfg.Cache.RateWindow)

	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(http.HandlerFunc(h))
	}
	// Mutating routes additionally pass CSRF and rate limit checks.
	protectMutating := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(rateLimit(middleware.CSRF(http.HandlerFunc(h))))
	}

	mux.Handle("/api/dashboard", protect(deps.DashboardHandler.HandleDashboard))
	mux.Handle("/api/transactions", protect(deps.TransactionHandler.HandleTransactions))
	mux.Handle("/api/subscriptions", protect(deps.TransactionHandler.HandleSubscriptions))

	mux.Handle("/api/connections", protect(deps.ConnectionHandler.HandleConnections))
	mux.Handle("/api/connections/register", protectMutating(deps.ConnectionHandler.HandleRegisterIdentity))
	mux.Handle("/api/connections/sync", protectMutating(deps.ConnectionHandler.HandleSync))
	mux.Handle("/api/connections/rotate", protectMutating(deps.ConnectionHandler.HandleRotateSecret))
	mux.Handle("/api/connections/disconnect", protectMutating(deps.ConnectionHandler.HandleDisconnect))

	mux.Handle("/api/accounts", protect(deps.AccountHandler.HandleAccounts))
	mux.Handle("/api/accounts/link", protectMutating(deps.AccountHandler.HandleLinkAccounts))
	mux.Handle("/api/accounts/{provider}/{id}", protectMutating(deps.AccountHandler.HandleDisconnectAccount))

	mux.Handle("/api/notifications/register-device", protectMutating(deps.NotificationHandler.HandleRegisterDevice))
	mux.Handle("/api/notifications/preferences", protectMutating(deps.NotificationHandler.HandlePreferences))
	mux.Handle("/api/notifications/{id}", protectMutating(deps.NotificationHandler.HandleNotificationByID))
	mux.Handle("/api/notifications", protect(deps.NotificationHandler.HandleNotifications))

	mux.Handle("/api/scheduler/status", protect(handleSchedulerStatus(sched)))

	// Apply global middleware
	handler := middleware.Logging(middleware.Telemetry(middleware.Tracing(middleware.CORS(cfg.Server.AllowedHosts)(mux))))

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Println("TLS security middleware enabled (HSTS + SecureCookies)")
	}

	return handler
}

// handleSchedulerStatus reports the background scheduler's snapshot, or 503
// when the scheduler is disabled.
func handleSchedulerStatus(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if sched == nil {
			http.Error(w, "Scheduler is disabled", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sched.Status())
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
