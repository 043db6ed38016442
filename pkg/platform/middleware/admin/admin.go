// Package admin guards operator-only endpoints with a shared-secret token.
// Operator calls originate from deploy tooling, not calling services, so
// they bypass the service-token scheme.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"opsgate/pkg/requestcontext"
)

// RequireAdminToken rejects requests whose X-Admin-Token header does not
// match expectedToken. Comparison is constant-time.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
