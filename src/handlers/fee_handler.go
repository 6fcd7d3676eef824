package handlers

import (
	"net/http"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/services"
	"github.com/username/taxfolio/portfolio/src/utils"
)

// FeeHandler serves the fee and commission breakdown.
type FeeHandler struct {
	portfolioService services.PortfolioService
}

// NewFeeHandler creates a new instance of FeeHandler.
func NewFeeHandler(service services.PortfolioService) *FeeHandler {
	return &FeeHandler{
		portfolioService: service,
	}
}

// HandleGetFeeDetails retrieves all fee and commission details for the authenticated user.
func (h *FeeHandler) HandleGetFeeDetails(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	logger.FromContext(r.Context()).Info("Handling GetFeeDetails request")

	feeDetails, err := h.portfolioService.GetFees(userID)
	if err != nil {
		sendServiceError(w, r, "retrieving fee details", err)
		return
	}
	// Empty array, not null.
	if feeDetails == nil {
		feeDetails = []models.FeeDetail{}
	}
	utils.SendJSONWithETag(w, r, feeDetails)
}
