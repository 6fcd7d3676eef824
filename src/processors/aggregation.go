package processors

import (
	"strings"

	"github.com/username/taxfolio/portfolio/src/models"
)

// Aggregate folds realized stock sales and raw transactions into lifetime
// metrics per ISIN. It never fails: rows without an ISIN are skipped and
// missing numbers count as zero. Every call returns a fresh map.
//
// Option sales are accepted for signature symmetry with the callers but are
// not folded in: option P/L is reported separately.
func Aggregate(transactions []models.Transaction, stockSales []models.SaleDetail, optionSales []models.OptionSaleDetail) models.AggregatedMetrics {
	acc := make(map[string]models.AggregatedMetric)

	// Realized P/L comes from lot-matched sales only; raw transactions cannot
	// reconstruct it.
	for _, sale := range stockSales {
		isin := strings.TrimSpace(sale.ISIN)
		if isin == "" {
			continue
		}
		m := acc[isin]
		m.TotalRealizedStockPL += sale.Delta
		acc[isin] = m
	}

	for _, tx := range transactions {
		isin := strings.TrimSpace(tx.ISIN)
		if isin == "" {
			continue
		}
		m := acc[isin]
		if isType(tx, models.TransactionTypeDividend) && !isSubType(tx, models.SubTypeTax) {
			m.TotalDividends += tx.AmountEUR
		}
		m.TotalCommissions += CommissionEUR(tx)
		acc[isin] = m
	}

	return models.AggregatedMetrics(acc)
}
