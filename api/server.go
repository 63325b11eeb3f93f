/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     Request logging through logrus
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus counters by route pattern
  6. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /api/businesses/*     Businesses, their commands and queries
  /api/presets/*        Business templates
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus scrape endpoint
  /healthz              Liveness probe

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
	"github.com/sirupsen/logrus"
	"github.com/warp/harvest-engine/metrics"
)

// RouterOptions configures NewRouter. The zero value is usable.
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	Logger         logrus.FieldLogger
}

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	log := opts.Logger
	if log == nil {
		log = h.log
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(opts.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", opts.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/businesses", func(r chi.Router) {
			r.Get("/", h.ListBusinesses)
			r.Post("/", h.CreateBusiness)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetBusiness)
				r.Delete("/", h.DeleteBusiness)
				r.Post("/advance", h.AdvanceBusiness)
				r.Post("/restart", h.RestartBusiness)

				// Procurement
				r.Get("/orders", h.ListOrders)
				r.Post("/orders", h.PlaceOrder)
				r.Get("/orders/{order}", h.GetOrder)
				r.Post("/orders/{order}/cancel", h.CancelOrder)
				r.Get("/vendors", h.ListVendors)

				// Products and demand
				r.Get("/products", h.ListProducts)
				r.Put("/products/{product}/price", h.SetPrice)
				r.Post("/campaigns", h.LaunchCampaign)
				r.Get("/modifiers", h.ListModifiers)
				r.Get("/demand/{product}", h.GetDemandProjection)
				r.Get("/demand/{product}/explain", h.ExplainDemand)
				r.Get("/sales", h.ListSales)

				// Inventory
				r.Get("/inventory", h.ListInventory)
				r.Get("/inventory/{product}", h.GetInventory)

				// Payables and finance
				r.Get("/bills", h.ListBills)
				r.Post("/bills/{bill}/pay", h.PayBill)
				r.Get("/payables/aging", h.GetAging)
				r.Get("/loans", h.ListLoans)
				r.Post("/loans", h.TakeLoan)

				// Ledger
				r.Route("/ledger", func(r chi.Router) {
					r.Get("/entries", h.ListEntries)
					r.Get("/balance/{account}", h.GetAccountBalance)
					r.Get("/trial-balance", h.GetTrialBalance)
					r.Get("/income-statement", h.GetIncomeStatement)
					r.Get("/balance-sheet", h.GetBalanceSheet)
				})
			})
		})

		// Catalog routes
		r.Route("/presets", func(r chi.Router) {
			r.Get("/", h.ListPresets)
			r.Get("/{kind}", h.GetPreset)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Harvest Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Harvest Engine API</h1>
<ul>
<li><a href="/api/businesses">/api/businesses</a> - List businesses</li>
<li><a href="/api/presets">/api/presets</a> - Business presets</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
<li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
</ul>
</body>
</html>`))
	})

	return r
}

// requestLogger logs one line per request with its chi request id.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.WithFields(logrus.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"bytes":      ww.BytesWritten(),
					"duration":   time.Since(start).String(),
				}).Info("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
