// Package httptransport assembles the HTTP surface: the public check
// endpoint, the token-guarded rule management API, health and metrics.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	checkhandler "tokengate/internal/check/handler"
	"tokengate/internal/platform/middleware"
	ruleshandler "tokengate/internal/rules/handler"
	"tokengate/pkg/httputil"
)

// Deps carries the wired handlers and the health probes the router exposes.
type Deps struct {
	Check      *checkhandler.Handler
	Rules      *ruleshandler.Handler
	AdminToken string
	Health     []HealthCheck
	Logger     *slog.Logger
}

// HealthCheck reports the health of one backing dependency.
type HealthCheck struct {
	Name  string
	Check func() error
}

// NewRouter wires all endpoints.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	deps.Check.Register(r)

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(middleware.RequireAdminToken(deps.AdminToken, deps.Logger))
		deps.Rules.Register(admin)
	})

	r.Get("/healthz", handleHealth(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealth(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for _, hc := range checks {
			if err := hc.Check(); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[hc.Name] = err.Error()
				continue
			}
			body[hc.Name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}
