/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind a reverse proxy
  3. Logger:     zerolog request line
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus request counter and latency
  6. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/*                 Ledger, catalog, bookkeeping, reports
  /api/reconciliation/*  Debt reconciliation runs
  /api/scenarios/*       Demo ledgers
  /metrics               Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - metrics/metrics.go: Middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/warp/trade-ledger/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", h.GetSnapshot)
		r.Get("/status", h.GetStatus)
		r.Get("/export", h.Export)
		r.Post("/import", h.Import)
		r.Post("/reset", h.Reset)
		r.Get("/corrupt-backup", h.GetCorruptBackup)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Post("/{id}/cancel", h.CancelOrder)
			r.Delete("/{id}", h.DeleteOrder)
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.CreateProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
			r.Put("/{id}/stock", h.AdjustStock)
		})

		r.Route("/batches", func(r chi.Router) {
			r.Post("/", h.CreateBatch)
			r.Get("/summary", h.ListBatchSummaries)
			r.Put("/{id}", h.UpdateBatch)
			r.Delete("/{id}", h.DeleteBatch)
			r.Post("/{id}/close", h.CloseBatch)
			r.Get("/{id}/summary", h.GetBatchSummary)
			r.Post("/{id}/fees", h.AddExtraFee)
			r.Delete("/{id}/fees/{feeId}", h.RemoveExtraFee)
		})

		r.Post("/customers", h.CreateCustomer)

		r.Route("/payees", func(r chi.Router) {
			r.Post("/", h.CreatePayee)
			r.Put("/{name}", h.RenamePayee)
			r.Delete("/{name}", h.DeletePayee)
		})

		r.Post("/expenses", h.CreateExpense)
		r.Post("/repayments", h.CreateRepayment)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/daily", h.DailyReport)
			r.Get("/reconcile", h.ReconcileReport)
			r.Get("/low-stock", h.LowStockReport)
			r.Get("/receivables", h.ReceivablesReport)
		})

		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/runs", h.ListReconciliationRuns)
			r.Post("/run", h.RunReconciliation)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLogger writes one structured line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
