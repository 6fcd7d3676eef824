package services

import (
	"errors"
	"io"
	"time"

	"github.com/username/taxfolio/portfolio/src/models"
)

var (
	// ErrInvalidInput marks client errors: malformed or empty imports.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a request for data the user does not have.
	ErrNotFound = errors.New("not found")
)

// ImportResult summarizes one import batch.
type ImportResult struct {
	ImportID   string `json:"import_id"`
	Received   int    `json:"received"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
}

// PortfolioService owns a user's records and serves the derived view models.
type PortfolioService interface {
	ImportTransactions(userID int64, txs []models.Transaction) (*ImportResult, error)
	// ImportStatement parses a broker export (see parsers.SupportedSources).
	ImportStatement(userID int64, source string, file io.Reader) (*ImportResult, error)
	ImportSnapshots(userID int64, snapshots []models.PortfolioSnapshot) (*ImportResult, error)
	GetTransactions(userID int64) ([]models.Transaction, error)
	DeleteAllUserData(userID int64) error

	GetAggregatedMetrics(userID int64) (models.AggregatedMetrics, error)
	// GetHoldings returns the grouped holdings table. A non-nil asOf builds
	// the historical view at the end of that day.
	GetHoldings(userID int64, asOf *time.Time) ([]models.HoldingRow, error)
	GetDetailedLots(userID int64) ([]models.DetailedRow, error)
	GetReturns(userID int64) (*models.ReturnsSummary, error)

	GetStockSaleDetails(userID int64) ([]models.SaleDetail, error)
	GetOptionSaleDetails(userID int64) ([]models.OptionSaleDetail, error)
	GetOptionHoldings(userID int64) ([]models.OptionHolding, error)
	GetDividendTaxSummary(userID int64) (models.DividendTaxResult, error)
	GetFees(userID int64) ([]models.FeeDetail, error)

	ExportHoldingsXLSX(userID int64) ([]byte, error)
	InvalidateUserCache(userID int64)
}

// PriceInfo is the latest price of one ISIN, converted to EUR.
type PriceInfo struct {
	Status   string  `json:"status"` // OK or UNAVAILABLE
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// PriceService looks up current market prices.
type PriceService interface {
	GetCurrentPrices(isins []string) (map[string]PriceInfo, error)
}
