/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind a proxy
  3. hlog:       Request-scoped zerolog logger + one access line per request
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the front-desk UI

ROUTE GROUPS:
  /api/patients/*, /api/doctors/*   People and their statements
  /api/pricelist/*                  Catalog
  /api/services/*, /api/appointments/*, /api/checks/*
  /api/settlements/*                Payment intents
  /api/shifts/*                     Daily reports
  /api/accounts/*                   Ledger accounts
  /api/analytics/*                  Period aggregations
  /api/checking/*                   Clinic checking account
  /api/scenarios/*                  Demo scenarios (dev only)

SECURITY NOTE:
  No authentication middleware. The actor headers are trusted as given.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/hlog"
)

// RouterOptions tune the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(h.Log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-User-Name", "X-Access-Level"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/patients", func(r chi.Router) {
			r.Get("/", h.ListPatients)
			r.Post("/", h.CreatePatient)
			r.Get("/{id}", h.GetPatient)
			r.Get("/{id}/transactions", h.GetPatientStatement)
		})

		r.Route("/doctors", func(r chi.Router) {
			r.Get("/", h.ListDoctors)
			r.Post("/", h.CreateDoctor)
			r.Get("/{id}", h.GetDoctor)
			r.Get("/{id}/transactions", h.GetDoctorStatement)
		})

		r.Route("/pricelist", func(r chi.Router) {
			r.Get("/", h.ListPricelist)
			r.Post("/", h.CreatePricelistItem)
			r.Post("/import", h.ImportCatalog)
			r.Get("/export", h.ExportCatalog)
		})

		r.Route("/services", func(r chi.Router) {
			r.Post("/", h.RenderService)
			r.Get("/{id}", h.GetService)
			r.Post("/charge", h.ChargeServices)
			r.Post("/cancel-charges", h.CancelServiceCharges)
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.CreateAppointment)
			r.Get("/{id}", h.GetAppointment)
		})

		r.Route("/checks", func(r chi.Router) {
			r.Post("/", h.CreateCheck)
			r.Get("/{id}", h.GetCheck)
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Post("/{kind}", h.Settle)
			r.Post("/{kind}/preview", h.PreviewSettlement)
		})

		r.Route("/shifts", func(r chi.Router) {
			r.Post("/", h.OpenShift)
			r.Get("/current", h.CurrentShift)
			r.Get("/{date}", h.GetShift)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/transactions", h.GetAccountTransactions)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/income", h.Income)
			r.Get("/expense", h.Expense)
			r.Get("/categories", h.CategoriesRevenue)
			r.Get("/top-services", h.TopServices)
			r.Get("/summary", h.Summary)
		})

		r.Route("/checking", func(r chi.Router) {
			r.Get("/{id}", h.GetChecking)
			r.Post("/{id}/transactions", h.CreateCheckingTransaction)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "front-desk ledger",
			"endpoints": []string{
				"/api/patients", "/api/doctors", "/api/pricelist", "/api/shifts/current",
				"/api/analytics/summary", "/api/scenarios",
			},
		})
	})

	return r
}
