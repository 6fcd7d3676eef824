package processors

import (
	"time"

	"github.com/username/taxfolio/portfolio/src/models"
)

// StockProcessor matches stock sells against buys.
type StockProcessor interface {
	Process(transactions []models.Transaction) ([]models.SaleDetail, []models.PurchaseLot)
	// ProcessAsOf only considers transactions dated on or before asOf.
	ProcessAsOf(transactions []models.Transaction, asOf time.Time) ([]models.SaleDetail, []models.PurchaseLot)
}

// OptionProcessor matches option trades into closed and open positions.
type OptionProcessor interface {
	Process(transactions []models.Transaction) ([]models.OptionSaleDetail, []models.OptionHolding)
}

// DividendProcessor builds the dividend tax summary.
type DividendProcessor interface {
	CalculateTaxSummary(transactions []models.Transaction) models.DividendTaxResult
}

// FeeProcessor lists fees and trade commissions.
type FeeProcessor interface {
	Process(transactions []models.Transaction) []models.FeeDetail
}

// CashFlowProcessor extracts external cash flows for XIRR.
type CashFlowProcessor interface {
	Process(transactions []models.Transaction) []models.CashFlow
}
