/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for admin frontends

ROUTE GROUPS:
  /api/hooks/*       Upstream HR webhooks (queued, fire-and-forget)
  /api/workers/*     Worker master data (read-only; writes come via sync)
  /api/settings      Singleton engine configuration
  /api/batches/*     Batches, imports, and batch-scoped lines
  /api/lines/*       Line mutations driving the recalculation engine
  /api/farms, /api/activities, /api/tariffs: master data

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Upstream HR webhooks
		r.Route("/hooks", func(r chi.Router) {
			r.Post("/employee", h.HookEmployee)
			r.Post("/contract", h.HookContract)
		})

		// Worker routes
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", h.ListWorkers)
			r.Get("/{id}", h.GetWorker)
		})

		// Settings (singleton; no delete)
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.GetSettings)
			r.Put("/", h.UpdateSettings)
		})

		// Batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", h.ListBatches)
			r.Post("/", h.CreateBatch)
			r.Get("/{id}", h.GetBatch)
			r.Post("/{id}/import", h.ImportBatch)
			r.Get("/{id}/lines", h.ListBatchLines)
			r.Post("/{id}/lines", h.CreateLine)
		})

		// Line routes
		r.Route("/lines", func(r chi.Router) {
			r.Get("/{id}", h.GetLine)
			r.Put("/{id}", h.UpdateLine)
			r.Delete("/{id}", h.DeleteLine)
		})

		// Master data routes
		r.Route("/farms", func(r chi.Router) {
			r.Get("/", h.ListFarms)
			r.Post("/", h.CreateFarm)
		})
		r.Route("/activities", func(r chi.Router) {
			r.Get("/", h.ListActivities)
			r.Post("/", h.CreateActivity)
		})
		r.Route("/tariffs", func(r chi.Router) {
			r.Get("/", h.ListTariffs)
			r.Post("/", h.CreateTariff)
		})

		// Health check
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
