package main

import (
	"log"
	"net/http"

	"horizon/internal/shared/config"
	"horizon/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", deps.HealthHandler.HandleHealth)

	// Logout works with or without a valid session
	mux.Handle("/api/auth/logout", middleware.OptionalAuth(deps.JWT, deps.Sessions)(http.HandlerFunc(deps.SessionHandler.HandleLogout)))

	// Stand-in for the provider's link widget
	if deps.SandboxHandler != nil {
		mux.HandleFunc("/sandbox/institutions", deps.SandboxHandler.HandleInstitutions)
		mux.HandleFunc("/sandbox/public-token", deps.SandboxHandler.HandlePublicToken)
	}

	// Protected routes
	authMiddleware := middleware.Auth(deps.JWT, deps.Sessions)

	mux.Handle("/api/users/me", authMiddleware(http.HandlerFunc(deps.SessionHandler.HandleMe)))
	mux.Handle("/api/dashboard", authMiddleware(http.HandlerFunc(deps.DashboardHandler.HandleDashboard)))
	mux.Handle("/api/link/token", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleCreateToken)))
	mux.Handle("/api/link/sessions/{token}", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleSession)))
	mux.Handle("/api/link/sessions/{token}/open", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleOpenSession)))
	mux.Handle("/api/link/exchange", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleExchange)))
	mux.Handle("/api/institutions/", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleInstitutions)))
	mux.Handle("/api/institutions/{id}", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleInstitutionByID)))
	mux.Handle("/api/accounts/", authMiddleware(http.HandlerFunc(deps.AccountsHandler.HandleListAccounts)))
	mux.Handle("/api/transactions/recent", authMiddleware(http.HandlerFunc(deps.AccountsHandler.HandleRecentTransactions)))
	mux.Handle("/api/notifications/devices", authMiddleware(http.HandlerFunc(deps.NotificationHandler.HandleRegisterDevice)))

	// Apply global middleware. Tracing and Logging sit outside the mux so
	// they can read the matched route pattern after it runs.
	handler := middleware.CORS(cfg.Server.AllowedHosts)(mux)
	handler = middleware.Logging(handler)

	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(middleware.Tracing(handler))
	}

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Println("TLS security middleware enabled (HSTS + SecureCookies)")
	}

	return handler
}
