package middleware

import (
	"net/http"
	"time"

	"github.com/threattrace/threattrace/internal/model"
	"github.com/threattrace/threattrace/internal/service"
)

// Blocklist rejects requests from IPs under an active containment block.
// The denial itself is recorded in the ledger. Lookup failures fail open:
// containment is defense-in-depth, not a gate the service falls over on.
func (m *Middleware) Blocklist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _ := service.ClientInfoFrom(r.Context())

		blocked, err := m.blocks.IsBlocked(r.Context(), ip, time.Now().UTC())
		if err != nil {
			m.log.Error().Err(err).Str("ip", ip).Msg("blocklist lookup failed")
			next.ServeHTTP(w, r)
			return
		}

		if blocked {
			m.audit.Record(r.Context(), service.EventInput{
				Action:   model.ActionAuthorizationDenied,
				Status:   model.StatusDenied,
				Severity: model.SeverityMedium,
				Source:   "blocklist",
				Details: map[string]interface{}{
					"reason": "ip_blocked",
					"path":   r.URL.Path,
				},
			})
			http.Error(w, `{"error":{"code":"ip_blocked","message":"This address is temporarily blocked"}}`, http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
