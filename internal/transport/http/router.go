// Package httpapi composes the HTTP surface of the decision service:
// middleware chain, the evaluation endpoint, health, and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authzadmin "opsgate/internal/authz/admin"
	authzhandler "opsgate/internal/authz/handler"
	adminmw "opsgate/pkg/platform/middleware/admin"
	"opsgate/pkg/platform/middleware/auth"
	"opsgate/pkg/platform/middleware/device"
	"opsgate/pkg/platform/middleware/metadata"
	"opsgate/pkg/platform/middleware/requestid"
	"opsgate/pkg/platform/middleware/requesttime"
)

// HealthChecker reports readiness of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Options collects the router's injected pieces.
type Options struct {
	AuthzHandler *authzhandler.Handler
	Logger       *slog.Logger

	// Validator enables service authentication on the decision routes
	// when non-nil.
	Validator auth.TokenValidator

	// AdminHandler and AdminToken enable the catalog management routes.
	// Both must be set; without a token the routes are not mounted.
	AdminHandler *authzadmin.Handler
	AdminToken   string

	// HealthChecks are probed by /readyz; nil entries are skipped.
	HealthChecks map[string]HealthChecker
}

// NewRouter wires all endpoints. The decision route sits behind the full
// middleware chain; health and metrics stay open for probes and scrapers.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(device.Middleware)

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(opts.HealthChecks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if opts.Validator != nil {
			r.Use(auth.RequireServiceAuth(opts.Validator, opts.Logger))
		}
		opts.AuthzHandler.Register(r)
	})

	if opts.AdminHandler != nil && opts.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(adminmw.RequireAdminToken(opts.AdminToken, opts.Logger))
			opts.AdminHandler.Register(r)
		})
	}

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleReadyz(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Health(r.Context()); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(results)
	}
}
