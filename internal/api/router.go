package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bcnelson/webscenario-manager/internal/api/handler"
	"github.com/bcnelson/webscenario-manager/internal/api/middleware"
	"github.com/bcnelson/webscenario-manager/internal/auth"
	"github.com/bcnelson/webscenario-manager/internal/service"
	"github.com/bcnelson/webscenario-manager/internal/storage"
)

// OIDC holds the components of the optional OIDC login. A nil *OIDC
// disables the login routes and ID token bearer auth.
type OIDC struct {
	Provider *auth.OIDCProvider
	Logins   *auth.LoginStates
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(
	store storage.Storage,
	svc *service.ScenarioService,
	bootstrapKey string,
	oidc *OIDC,
	logger *zap.Logger,
) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	var tokens middleware.TokenVerifier
	if oidc != nil && oidc.Provider != nil {
		tokens = oidc.Provider
		oidcHandler := handler.NewOIDCHandler(oidc.Provider, oidc.Logins)
		r.Get("/auth/login", oidcHandler.Login)
		r.Get("/auth/callback", oidcHandler.Callback)
	}

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(store, bootstrapKey, tokens))

		// API Keys
		keyHandler := handler.NewAPIKeyHandler(store)
		r.Post("/keys", keyHandler.Create)
		r.Get("/keys", keyHandler.List)
		r.Delete("/keys/{id}", keyHandler.Delete)

		// Hosts and templates
		hostHandler := handler.NewHostHandler(store, svc)
		scenarioHandler := handler.NewScenarioHandler(store, svc)
		r.Post("/hosts", hostHandler.Create)
		r.Get("/hosts", hostHandler.List)

		r.Route("/hosts/{host_id}", func(r chi.Router) {
			r.Get("/", hostHandler.Get)
			r.Put("/", hostHandler.Update)
			r.Delete("/", hostHandler.Delete)

			// Template links
			r.Get("/templates", hostHandler.ListTemplates)
			r.Post("/templates", hostHandler.LinkTemplate)
			r.Delete("/templates/{template_id}", hostHandler.UnlinkTemplate)

			// Web scenarios owned by the host
			r.Post("/scenarios", scenarioHandler.Create)
			r.Get("/scenarios", scenarioHandler.List)
		})

		r.Post("/templates/{template_id}/resync", hostHandler.Resync)

		// Web scenarios
		r.Get("/scenarios/{id}", scenarioHandler.Get)
		r.Put("/scenarios/{id}", scenarioHandler.Update)
		r.Delete("/scenarios/{id}", scenarioHandler.Delete)
		r.Get("/scenarios/{id}/items", scenarioHandler.Items)
	})

	return r
}
