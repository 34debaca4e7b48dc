package router

import (
	"net/http"

	"github.com/threattrace/threattrace/internal/auth"
	"github.com/threattrace/threattrace/internal/handler"
	"github.com/threattrace/threattrace/internal/logger"
	"github.com/threattrace/threattrace/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, log *logger.Logger, tokenSvc *auth.TokenService, adminRole string) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints (no auth required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	// Security API: admin-only, every mutation is itself audited
	authMw := mw.Auth(tokenSvc)
	adminMw := mw.RequireRole(adminRole)
	admin := func(fn http.HandlerFunc) http.Handler {
		return authMw(adminMw(fn))
	}

	mux.Handle("GET /api/v1/security/audit-trail", admin(h.GetAuditTrail))
	mux.Handle("GET /api/v1/security/audit-trail/verify", admin(h.VerifyAuditTrail))
	mux.Handle("GET /api/v1/security/blocked-ips", admin(h.ListBlockedIPs))
	mux.Handle("POST /api/v1/security/blocked-ips/{ip}/unblock", admin(h.UnblockIP))
	mux.Handle("GET /api/v1/security/quarantined-users", admin(h.ListQuarantinedUsers))
	mux.Handle("POST /api/v1/security/quarantined-users/{id}/release", admin(h.ReleaseQuarantinedUser))
	mux.Handle("GET /api/v1/security/alerts", admin(h.ListAlerts))
	mux.Handle("GET /api/v1/security/alerts/stream", admin(h.StreamAlerts))

	// Apply middleware stack
	var root http.Handler = mux

	// Containment blocklist (after client context so the IP is resolved)
	root = mw.Blocklist(root)

	// Request logging
	root = mw.Logger(root)

	// Client IP / user agent resolution
	root = mw.ClientContext(root)

	// Request ID
	root = mw.RequestID(root)

	// Panic recovery (outermost)
	root = mw.Recover(root)

	return root
}
