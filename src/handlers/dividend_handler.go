package handlers

import (
	"net/http"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/services"
	"github.com/username/taxfolio/portfolio/src/utils"
)

type DividendHandler struct {
	portfolioService services.PortfolioService
}

func NewDividendHandler(service services.PortfolioService) *DividendHandler {
	return &DividendHandler{
		portfolioService: service,
	}
}

// HandleGetDividendTaxSummary serves gross and withheld dividends per year
// and source country.
func (h *DividendHandler) HandleGetDividendTaxSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	logger.FromContext(r.Context()).Info("Handling GetDividendTaxSummary")

	taxSummary, err := h.portfolioService.GetDividendTaxSummary(userID)
	if err != nil {
		sendServiceError(w, r, "retrieving dividend tax summary", err)
		return
	}
	if taxSummary == nil {
		taxSummary = make(models.DividendTaxResult)
	}
	utils.SendJSONWithETag(w, r, taxSummary)
}
