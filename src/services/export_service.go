package services

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/security/validation"
	"github.com/username/taxfolio/portfolio/src/utils"
)

const holdingsSheet = "Holdings"

var holdingsHeader = []string{
	"ISIN", "Product", "Quantity", "Cost / Share (EUR)", "Cost Basis (EUR)", "Market Value (EUR)",
	"Realized Stock P/L (EUR)", "Dividends (EUR)", "Commissions (EUR)", "Realized Gains (EUR)",
	"Unrealized P/L (EUR)", "Unrealized P/L %", "Total Profit (EUR)", "Total Profit %",
}

// ExportHoldingsXLSX renders the live grouped holdings table as a workbook.
func (s *portfolioServiceImpl) ExportHoldingsXLSX(userID int64) ([]byte, error) {
	rows, err := s.GetHoldings(userID, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no holdings to export", ErrNotFound)
	}
	return BuildHoldingsWorkbook(rows, s.cfg.Now())
}

// BuildHoldingsWorkbook writes grouped holdings rows to a single-sheet xlsx
// file. Text cells are sanitized against formula injection. rows must not be
// empty.
func BuildHoldingsWorkbook(rows []models.HoldingRow, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.L.Error("Error closing workbook", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", holdingsSheet); err != nil {
		return nil, fmt.Errorf("error naming sheet: %w", err)
	}

	if err := f.SetCellStr(holdingsSheet, "A1", "Generated "+generatedAt.UTC().Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("error writing generation time: %w", err)
	}
	if last := rows[len(rows)-1]; last.IsTotalRow {
		summary := "Market value " + utils.FormatCurrency(last.MarketValueEUR, models.BaseCurrency)
		if err := f.SetCellStr(holdingsSheet, "B1", summary); err != nil {
			return nil, fmt.Errorf("error writing summary: %w", err)
		}
	}
	for i, title := range holdingsHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return nil, fmt.Errorf("error resolving header cell: %w", err)
		}
		if err := f.SetCellStr(holdingsSheet, cell, title); err != nil {
			return nil, fmt.Errorf("error writing header %q: %w", title, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#cfe2f3"}},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating header style: %w", err)
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(holdingsHeader), 2)
	if err != nil {
		return nil, fmt.Errorf("error resolving header range: %w", err)
	}
	if err := f.SetCellStyle(holdingsSheet, "A2", lastHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("error applying header style: %w", err)
	}

	for i, row := range rows {
		r := i + 3
		values := []interface{}{
			validation.SanitizeCell(row.ISIN),
			validation.SanitizeCell(row.ProductName),
			row.Quantity,
			utils.RoundFloat(row.CostPerShare, 4),
			utils.RoundFloat(row.TotalCostBasisEUR, 2),
			utils.RoundFloat(row.MarketValueEUR, 2),
			utils.RoundFloat(row.TotalRealizedStockPL, 2),
			utils.RoundFloat(row.TotalDividends, 2),
			utils.RoundFloat(row.TotalCommissions, 2),
			utils.RoundFloat(row.RealizedGains, 2),
			utils.RoundFloat(row.UnrealizedPL, 2),
			utils.RoundFloat(row.UnrealizedPLPercentage, 2),
			utils.RoundFloat(row.TotalProfitAmount, 2),
			utils.RoundFloat(row.TotalProfitPercentage, 2),
		}
		cell, err := excelize.CoordinatesToCellName(1, r)
		if err != nil {
			return nil, fmt.Errorf("error resolving row %d: %w", r, err)
		}
		if err := f.SetSheetRow(holdingsSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("error writing row %d: %w", r, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}
