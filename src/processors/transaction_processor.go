package processors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/utils"
)

// RateSource provides EUR reference rates for ingestion.
type RateSource interface {
	Rate(currency string, date time.Time) (float64, error)
}

type TransactionProcessor struct {
	rates RateSource
}

// NewTransactionProcessor creates a processor. rates may be nil, in which
// case missing exchange rates default to 1.
func NewTransactionProcessor(rates RateSource) *TransactionProcessor {
	return &TransactionProcessor{rates: rates}
}

// Process normalizes imported transactions: enums are trimmed and upper-cased,
// dates rewritten as YYYY-MM-DD, a missing exchange rate and EUR amount are
// filled in and every row gets a content hash for idempotent re-imports.
// Values the client supplied are never overwritten.
func (p *TransactionProcessor) Process(txs []models.Transaction) []models.Transaction {
	processed := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		tx.Source = strings.ToLower(strings.TrimSpace(tx.Source))
		tx.TransactionType = strings.ToUpper(strings.TrimSpace(tx.TransactionType))
		tx.TransactionSubType = strings.ToUpper(strings.TrimSpace(tx.TransactionSubType))
		tx.BuySell = strings.ToUpper(strings.TrimSpace(tx.BuySell))
		tx.Currency = strings.ToUpper(strings.TrimSpace(tx.Currency))
		tx.BalanceCurrency = strings.ToUpper(strings.TrimSpace(tx.BalanceCurrency))
		tx.ISIN = strings.ToUpper(strings.TrimSpace(tx.ISIN))
		tx.ProductName = strings.TrimSpace(tx.ProductName)
		tx.Date = utils.NormalizeDate(tx.Date)
		if tx.Currency == "" {
			tx.Currency = models.BaseCurrency
		}

		// Trades without a signed amount: buys spend cash, sells receive it.
		if tx.Amount == 0 && (tx.TransactionType == models.TransactionTypeStock || tx.TransactionType == models.TransactionTypeOption) {
			gross := math.Abs(tx.Quantity * tx.Price)
			if tx.BuySell == models.Buy {
				tx.Amount = -gross
			} else {
				tx.Amount = gross
			}
		}

		if tx.ExchangeRate <= 0 {
			tx.ExchangeRate = p.lookupRate(tx)
		}
		if tx.AmountEUR == 0 && tx.Amount != 0 {
			tx.AmountEUR = utils.RoundFloat(tx.Amount/tx.ExchangeRate, 4)
		}

		tx.HashID = GenerateHash(tx)
		processed = append(processed, tx)
	}
	return processed
}

func (p *TransactionProcessor) lookupRate(tx models.Transaction) float64 {
	if tx.Currency == models.BaseCurrency || p.rates == nil {
		return 1.0
	}
	rate, err := p.rates.Rate(tx.Currency, utils.ParseDate(tx.Date))
	if err != nil || rate <= 0 {
		logger.L.Warn("Exchange rate unavailable, defaulting to 1", "currency", tx.Currency, "date", tx.Date, "error", err)
		return 1.0
	}
	return rate
}

// GenerateHash fingerprints the fields that identify a broker record. The
// running cash balance separates same-day rows that are otherwise identical,
// such as two equal deposits; a client-assigned ID does the same when set.
func GenerateHash(tx models.Transaction) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%f|%f|%f|%f|%s|%f|%s",
		tx.Source, tx.Date, tx.ISIN, tx.ProductName, tx.TransactionType, tx.TransactionSubType,
		tx.BuySell, tx.Quantity, tx.Price, tx.Amount, tx.Commission, tx.OrderID,
		tx.CashBalance, tx.BalanceCurrency)
	if tx.ID != 0 {
		input += fmt.Sprintf("|%d", tx.ID)
	}
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}
