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
  /api/attendance/*     Record lifecycle and queries
  /api/events/*         Event memo edits
  /api/corrections/*    Admin correction queue

SECURITY NOTE:
  Identity arrives via X-Employee-ID / X-Admin headers set by an upstream
  gateway. There is no authentication middleware here; never expose this
  service directly.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Employee-ID", "X-Admin"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Attendance records
		r.Route("/attendance", func(r chi.Router) {
			r.Post("/check-in", h.CheckIn)
			r.Get("/today", h.GetToday)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRecord)
				r.Post("/check-out", h.CheckOut)
				r.Post("/cancel-checkout", h.CancelCheckout)
				r.Post("/rest", h.StartRest)
				r.Post("/resume", h.ResumeWork)
				r.Get("/events", h.GetEvents)
				r.Get("/stats", h.GetStats)
				r.Get("/logs", h.GetLogs)
				r.Post("/approve", h.ApproveRecord)
				r.Post("/reject", h.RejectRecord)
				r.Post("/corrections", h.RequestCorrection)
			})
		})

		// Timer events
		r.Route("/events", func(r chi.Router) {
			r.Put("/{id}/memo", h.UpdateMemo)
		})

		// Correction review queue
		r.Route("/corrections", func(r chi.Router) {
			r.Get("/pending", h.ListPendingCorrections)
			r.Post("/{id}/resolve", h.ResolveCorrection)
		})
	})

	return r
}
