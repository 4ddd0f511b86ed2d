package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	appmiddleware "clipforge/internal/middleware"
)

// RouterConfig carries the ambient settings the router itself needs, kept
// separate from App since they shape the middleware stack, not a handler.
type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
	DefaultLocale  string
	CountryLookup  appmiddleware.CountryLookup
}

// NewRouter wires every route in spec.md §6 behind the shared middleware
// stack: request id, structured request logging, CORS, a per-IP request
// rate limiter (the source of the envelope's 429), and bearer JWT auth on
// everything but the liveness probe.
func NewRouter(app *App, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(appmiddleware.RequestID)
	r.Use(appmiddleware.Logger(app.Logger))
	r.Use(appmiddleware.CORS(cfg.AllowedOrigins))
	r.Use(appmiddleware.RateLimit(120, time.Minute))
	r.Use(appmiddleware.I18N(cfg.DefaultLocale, cfg.CountryLookup))

	r.Get("/healthz", app.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Use(appmiddleware.AuthJWT(cfg.JWTSecret))

		r.Post("/projects", app.CreateProject)
		r.Get("/projects/{id}", app.GetProject)
		r.Post("/projects/{id}/direct", app.Direct)
		r.Post("/projects/{id}/refine", app.Refine)
		r.Post("/projects/{id}/approve", app.Approve)
		r.Post("/projects/{id}/generate", app.Generate)

		r.Get("/jobs/{id}", app.GetJob)
	})

	return r
}
