// Package api is the HTTP transport for the guard. Every operation is served
// from POST /v1/tools/{tool}; a few read-only routes expose store listings.
package api

import (
	"net/http"

	"github.com/PrateekKumar1709/policyguard/internal/server"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Guard   *server.Guard
	Metrics http.Handler // nil disables /metrics
	Logger  *zap.Logger
}

// NewRouter builds the chi router with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogging(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/tools", deps.handleListTools)
		r.Post("/tools/{tool}", deps.handleTool)

		r.Get("/agents", deps.handleListAgents)
		r.Get("/agents/{agent_id}", deps.handleGetAgent)

		r.Get("/policies", deps.handleListPolicies)
		r.Get("/policies/{policy_id}", deps.handleGetPolicy)
		r.Patch("/policies/{policy_id}", deps.handleSetPolicyEnabled)

		r.Get("/incidents", deps.handleListIncidents)
	})

	return r
}
