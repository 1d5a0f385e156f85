/**
 * @description
 * HTTP router setup for the settlement service using go-chi/chi.
 */
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vendor-manager/settlement-service/internal/metrics"
)

// RouterConfig carries the router's settings.
type RouterConfig struct {
	InternalAPIKey string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter creates a new Chi router and registers the settlement routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger.With("component", "http")))
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Internal-API-Key", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/agreements", func(r chi.Router) {
		r.Get("/", h.handleListAgreements)
		r.Get("/{id}", h.handleGetAgreement)
	})

	r.Route("/submissions", func(r chi.Router) {
		r.Get("/unpaid", h.handleListUnpaidSubmissions)
		r.Post("/{submissionID}/pay", h.handlePaySubmission)
	})

	r.Route("/balances", func(r chi.Router) {
		r.Post("/deposit/{accountID}", h.handleDeposit)
		r.Get("/{accountID}", h.handleGetBalance)
	})

	r.Route("/internal/ledger", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/audit", h.handleRunLedgerAudit)
	})

	return r
}
