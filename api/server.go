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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/payroll/*      Reconciliation runs
  /api/batches/*      Batch listing and settlement views
  /api/lines/*        Paid/unpaid toggles
  /api/adjustments/*  Deductions and reimbursements
  /api/admin/*        Catalog loading

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
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
		// Payroll generation
		r.Route("/payroll", func(r chi.Router) {
			r.Post("/normal", h.GenerateNormalPayroll)
			r.Post("/fidium", h.GenerateFidiumPayroll)
		})

		// Batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", h.ListBatches)
			r.Get("/{id}/lines", h.GetBatchLines)
			r.Put("/{id}", h.RenameBatch)
			r.Delete("/{id}", h.DeleteBatch)
		})

		// Settlement routes
		r.Route("/lines", func(r chi.Router) {
			r.Post("/{id}/paid", h.SetLinePaid)
			r.Post("/{id}/entries/paid", h.ToggleEntryPaid)
		})

		// Adjustment routes
		r.Route("/adjustments", func(r chi.Router) {
			r.Get("/", h.ListAdjustments)
			r.Post("/", h.CreateAdjustment)
			r.Put("/{id}", h.UpdateAdjustment)
			r.Delete("/{id}", h.DeleteAdjustment)
			r.Post("/{id}/complete", h.CompleteAdjustment)
			r.Post("/{id}/reopen", h.ReopenAdjustment)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/catalog", h.LoadCatalog)
		})
	})

	return r
}
