package validation

import (
	"errors"
	"fmt"
	"math"
	"mime"
	"strings"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/utils"
)

// AllowedImportContentTypes lists the client-declared MIME types accepted by
// the JSON import endpoints.
var AllowedImportContentTypes = map[string]bool{
	"application/json": true,
	"text/json":        true,
}

var validTransactionTypes = map[string]bool{
	models.TransactionTypeStock:    true,
	models.TransactionTypeOption:   true,
	models.TransactionTypeDividend: true,
	models.TransactionTypeCash:     true,
	models.TransactionTypeFee:      true,
}

var validSubTypes = map[string]bool{
	"":                       true,
	models.SubTypeDeposit:    true,
	models.SubTypeWithdrawal: true,
	models.SubTypeTax:        true,
	models.SubTypeCall:       true,
	models.SubTypePut:        true,
}

// ErrEmptyImport is returned for an import without rows.
var ErrEmptyImport = errors.New("import contains no rows")

// ValidateClientContentType checks the Content-Type header of an import.
func ValidateClientContentType(contentType string) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !AllowedImportContentTypes[strings.ToLower(mediaType)] {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		return fmt.Errorf("content type '%s' is not allowed for imports", contentType)
	}
	return nil
}

// ValidateTransactions checks the fields the calculations cannot default.
// The first invalid row is reported by its index.
func ValidateTransactions(txs []models.Transaction) error {
	if len(txs) == 0 {
		return ErrEmptyImport
	}
	for i, tx := range txs {
		if utils.ParseDate(tx.Date).IsZero() {
			return fmt.Errorf("row %d: invalid date '%s'", i, tx.Date)
		}
		txType := strings.ToUpper(strings.TrimSpace(tx.TransactionType))
		if !validTransactionTypes[txType] {
			return fmt.Errorf("row %d: unknown transaction_type '%s'", i, tx.TransactionType)
		}
		if !validSubTypes[strings.ToUpper(strings.TrimSpace(tx.TransactionSubType))] {
			return fmt.Errorf("row %d: unknown transaction_subtype '%s'", i, tx.TransactionSubType)
		}
		if txType == models.TransactionTypeStock || txType == models.TransactionTypeOption {
			side := strings.ToUpper(strings.TrimSpace(tx.BuySell))
			if side != models.Buy && side != models.Sell {
				return fmt.Errorf("row %d: buy_sell must be BUY or SELL for %s rows", i, txType)
			}
		}
		for name, v := range map[string]float64{"quantity": tx.Quantity, "price": tx.Price, "amount": tx.Amount, "amount_eur": tx.AmountEUR, "commission": tx.Commission, "exchange_rate": tx.ExchangeRate} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("row %d: %s is not a finite number", i, name)
			}
		}
		if tx.ExchangeRate < 0 {
			return fmt.Errorf("row %d: exchange_rate cannot be negative", i)
		}
	}
	return nil
}

// ValidateSnapshots checks dates and that values are finite. Negative values
// are accepted: the return engine treats them like an empty account.
func ValidateSnapshots(snapshots []models.PortfolioSnapshot) error {
	if len(snapshots) == 0 {
		return ErrEmptyImport
	}
	for i, s := range snapshots {
		if utils.ParseDate(s.Date).IsZero() {
			return fmt.Errorf("row %d: invalid date '%s'", i, s.Date)
		}
		if math.IsNaN(s.PortfolioValue) || math.IsInf(s.PortfolioValue, 0) ||
			math.IsNaN(s.CumulativeCashFlow) || math.IsInf(s.CumulativeCashFlow, 0) {
			return fmt.Errorf("row %d: values must be finite numbers", i)
		}
	}
	return nil
}
