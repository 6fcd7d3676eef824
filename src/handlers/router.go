package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/security"
	"github.com/username/taxfolio/portfolio/src/services"
	"github.com/username/taxfolio/portfolio/src/utils"
)

// RouterConfig carries the HTTP-layer settings.
type RouterConfig struct {
	AllowedOrigins     []string
	MaxImportSizeBytes int64
	RateLimitPerSecond float64
	RateLimitBurst     int
	RequestTimeout     time.Duration
}

// NewRouter wires the middleware chain and every route.
func NewRouter(cfg RouterConfig, authService *security.AuthService, portfolioService services.PortfolioService) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders:   []string{"ETag", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimitPerSecond > 0 {
		r.Use(RateLimitMiddleware(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	}

	r.Get("/health", handleHealth)

	txHandler := NewTransactionHandler(portfolioService, cfg.MaxImportSizeBytes)
	portfolioHandler := NewPortfolioHandler(portfolioService)
	dividendHandler := NewDividendHandler(portfolioService)
	feeHandler := NewFeeHandler(portfolioService)

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(authService))

		r.Post("/transactions", txHandler.HandleImportTransactions)
		r.Post("/transactions/upload", txHandler.HandleUploadStatement)
		r.Get("/transactions", txHandler.HandleGetTransactions)
		r.Delete("/transactions/all", txHandler.HandleDeleteAllTransactions)
		r.Post("/snapshots", txHandler.HandleImportSnapshots)

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/metrics", portfolioHandler.HandleGetMetrics)
			r.Get("/holdings", portfolioHandler.HandleGetHoldings)
			r.Get("/holdings/export", portfolioHandler.HandleExportHoldings)
			r.Get("/lots", portfolioHandler.HandleGetLots)
			r.Get("/returns", portfolioHandler.HandleGetReturns)
		})

		r.Get("/stock-sales", portfolioHandler.HandleGetStockSales)
		r.Get("/option-sales", portfolioHandler.HandleGetOptionSales)
		r.Get("/option-holdings", portfolioHandler.HandleGetOptionHoldings)
		r.Get("/dividend-tax-summary", dividendHandler.HandleGetDividendTaxSummary)
		r.Get("/fees", feeHandler.HandleGetFeeDetails)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L.Error("Error encoding JSON response", "error", err)
	}
}

// sendServiceError maps service errors onto status codes. Internal errors
// are logged with detail and reported generically.
func sendServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	log := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		log.Warn("Rejected request", "action", action, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrNotFound):
		utils.SendJSONError(w, err.Error(), http.StatusNotFound)
	default:
		log.Error("Internal error", "action", action, "error", err)
		utils.SendJSONError(w, "An internal error occurred while "+action+". Please try again later.", http.StatusInternalServerError)
	}
}
