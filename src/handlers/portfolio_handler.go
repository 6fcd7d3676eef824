package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/services"
	"github.com/username/taxfolio/portfolio/src/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type PortfolioHandler struct {
	portfolioService services.PortfolioService
}

func NewPortfolioHandler(portfolioService services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: portfolioService,
	}
}

func (h *PortfolioHandler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	logger.FromContext(r.Context()).Info("Handling GetMetrics")

	metrics, err := h.portfolioService.GetAggregatedMetrics(userID)
	if err != nil {
		sendServiceError(w, r, "retrieving metrics", err)
		return
	}
	if metrics == nil {
		metrics = models.AggregatedMetrics{}
	}
	utils.SendJSONWithETag(w, r, metrics)
}

// HandleGetHoldings serves the grouped holdings table. An as_of query
// parameter selects the historical view at the end of that day.
func (h *PortfolioHandler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var asOf *time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed := utils.ParseDate(raw)
		if parsed.IsZero() {
			utils.SendJSONError(w, fmt.Sprintf("Invalid as_of date '%s'", raw), http.StatusBadRequest)
			return
		}
		asOf = &parsed
	}
	logger.FromContext(r.Context()).Info("Handling GetHoldings", "historical", asOf != nil)

	rows, err := h.portfolioService.GetHoldings(userID, asOf)
	if err != nil {
		sendServiceError(w, r, "retrieving holdings", err)
		return
	}
	if rows == nil {
		rows = []models.HoldingRow{}
	}
	utils.SendJSONWithETag(w, r, rows)
}

func (h *PortfolioHandler) HandleExportHoldings(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	logger.FromContext(r.Context()).Info("Handling ExportHoldings")

	data, err := h.portfolioService.ExportHoldingsXLSX(userID)
	if err != nil {
		sendServiceError(w, r, "exporting holdings", err)
		return
	}

	filename := fmt.Sprintf("holdings_%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.L.Error("Error writing holdings export", "userID", userID, "error", err)
	}
}

func (h *PortfolioHandler) HandleGetLots(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	logger.FromContext(r.Context()).Info("Handling GetLots")

	lots, err := h.portfolioService.GetDetailedLots(userID)
	if err != nil {
		sendServiceError(w, r, "retrieving lots", err)
		return
	}
	if lots == nil {
		lots = []models.DetailedRow{}
	}
	utils.SendJSONWithETag(w, r, lots)
}

func (h *PortfolioHandler) HandleGetReturns(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	logger.FromContext(r.Context()).Info("Handling GetReturns")

	summary, err := h.portfolioService.GetReturns(userID)
	if err != nil {
		sendServiceError(w, r, "computing returns", err)
		return
	}
	utils.SendJSONWithETag(w, r, summary)
}

func (h *PortfolioHandler) HandleGetStockSales(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	logger.FromContext(r.Context()).Info("Handling GetStockSales")

	stockSales, err := h.portfolioService.GetStockSaleDetails(userID)
	if err != nil {
		sendServiceError(w, r, "retrieving stock sales", err)
		return
	}
	if stockSales == nil {
		stockSales = []models.SaleDetail{}
	}
	utils.SendJSONWithETag(w, r, stockSales)
}

func (h *PortfolioHandler) HandleGetOptionSales(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	logger.FromContext(r.Context()).Info("Handling GetOptionSales")

	optionSales, err := h.portfolioService.GetOptionSaleDetails(userID)
	if err != nil {
		sendServiceError(w, r, "retrieving option sales", err)
		return
	}
	if optionSales == nil {
		optionSales = []models.OptionSaleDetail{}
	}
	utils.SendJSONWithETag(w, r, optionSales)
}

func (h *PortfolioHandler) HandleGetOptionHoldings(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	logger.FromContext(r.Context()).Info("Handling GetOptionHoldings")

	optionHoldings, err := h.portfolioService.GetOptionHoldings(userID)
	if err != nil {
		sendServiceError(w, r, "retrieving option holdings", err)
		return
	}
	if optionHoldings == nil {
		optionHoldings = []models.OptionHolding{}
	}
	utils.SendJSONWithETag(w, r, optionHoldings)
}
