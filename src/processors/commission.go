package processors

import (
	"math"
	"strings"

	"github.com/username/taxfolio/portfolio/src/models"
)

// CommissionEUR returns the commission of tx as a non-negative EUR magnitude.
// Commissions in a foreign currency are divided by the transaction's exchange
// rate; when no rate is available the raw amount is used unchanged.
func CommissionEUR(tx models.Transaction) float64 {
	commission := math.Abs(tx.Commission)
	if commission == 0 {
		return 0
	}
	currency := strings.ToUpper(strings.TrimSpace(tx.Currency))
	if currency != "" && currency != models.BaseCurrency && tx.ExchangeRate > 0 {
		return commission / tx.ExchangeRate
	}
	return commission
}

func isType(tx models.Transaction, txType string) bool {
	return strings.EqualFold(strings.TrimSpace(tx.TransactionType), txType)
}

func isSubType(tx models.Transaction, subType string) bool {
	return strings.EqualFold(strings.TrimSpace(tx.TransactionSubType), subType)
}

func isSide(tx models.Transaction, side string) bool {
	return strings.EqualFold(strings.TrimSpace(tx.BuySell), side)
}
