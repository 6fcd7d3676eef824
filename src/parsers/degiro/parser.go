package degiro

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/utils"
)

// Source is the broker name stored on parsed transactions.
const Source = "degiro"

const (
	dateLayout     = "02-01-2006"
	minRecordWidth = 12
	unknownType    = "UNKNOWN"
)

var (
	tradeRe  = regexp.MustCompile(`(?i)\s*(compra|venda)\s+([\d\s.,]+)\s+(.+?)\s*@([\d,.]+)`)
	optionRe = regexp.MustCompile(`\s+([CP])\d+(\.\d+)?\s+\d{2}[A-Z]{3}\d{2}$`)
)

// RawTransaction is one row of the DEGIRO account statement export.
type RawTransaction struct {
	OrderDate, OrderTime, ValueDate, Name, ISIN, Description, ExchangeRate string
	Currency, Amount, BalanceCurrency, Balance, OrderID                     string
}

type DeGiroParser struct{}

func NewParser() *DeGiroParser {
	return &DeGiroParser{}
}

// Parse reads a DEGIRO account statement CSV. Commission rows that belong to
// an order are folded into that order's trade.
func (p *DeGiroParser) Parse(file io.Reader) ([]models.Transaction, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read all CSV records: %w", err)
	}

	var rawTxs []RawTransaction
	for _, record := range records {
		if len(record) < minRecordWidth {
			continue
		}
		rawTxs = append(rawTxs, RawTransaction{
			OrderDate: record[0], OrderTime: record[1], ValueDate: record[2],
			Name: record[3], ISIN: record[4], Description: record[5],
			ExchangeRate: record[6], Currency: record[7], Amount: record[8],
			BalanceCurrency: record[9], Balance: record[10], OrderID: record[11],
		})
	}

	tradeOrders := make(map[string]bool)
	for _, raw := range rawTxs {
		if tradeRe.MatchString(raw.Description) && raw.OrderID != "" {
			tradeOrders[raw.OrderID] = true
		}
	}

	txs := make([]models.Transaction, 0, len(rawTxs))
	for _, raw := range rawTxs {
		date, err := time.Parse(dateLayout, strings.TrimSpace(raw.OrderDate))
		if err != nil {
			logger.L.Warn("DeGiro Parser: Skipping row due to invalid date", "date", raw.OrderDate)
			continue
		}

		if isCommission(raw.Description) && tradeOrders[raw.OrderID] {
			continue
		}

		txType, subType, buySell, productName, quantity, price := classifyDeGiroTransaction(raw)
		if txType == unknownType {
			logger.L.Debug("DeGiro Parser: Skipping unclassified row", "description", raw.Description)
			continue
		}

		rate := parseNumber(raw.ExchangeRate)
		tx := models.Transaction{
			Source:             Source,
			Date:               date.Format(utils.ISODateFormat),
			ProductName:        productName,
			ISIN:               strings.TrimSpace(raw.ISIN),
			Quantity:           quantity,
			Price:              price,
			TransactionType:    txType,
			TransactionSubType: subType,
			BuySell:            buySell,
			Amount:             parseNumber(raw.Amount),
			Currency:           strings.TrimSpace(raw.Currency),
			CashBalance:        parseNumber(raw.Balance),
			BalanceCurrency:    strings.TrimSpace(raw.BalanceCurrency),
			OrderID:            strings.TrimSpace(raw.OrderID),
		}
		if rate > 0 {
			tx.ExchangeRate = rate
		}
		if buySell != "" {
			tx.Commission = commissionForOrder(raw.OrderID, rawTxs, tx.Currency, rate)
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

// classifyDeGiroTransaction maps a statement description onto the canonical
// type, subtype and trade fields.
func classifyDeGiroTransaction(raw RawTransaction) (txType, subType, buySell, productName string, quantity, price float64) {
	lowerDesc := strings.ToLower(raw.Description)

	// Trades first: product names may contain words like "Dividend".
	matches := tradeRe.FindStringSubmatch(raw.Description)
	if matches == nil {
		switch {
		case strings.Contains(lowerDesc, "imposto sobre dividendo") || strings.Contains(lowerDesc, "dividend tax"):
			return models.TransactionTypeDividend, models.SubTypeTax, "", raw.Name, 0, 0
		case strings.Contains(lowerDesc, "dividendo") || strings.Contains(lowerDesc, "dividend"):
			return models.TransactionTypeDividend, "", "", raw.Name, 0, 0
		case strings.Contains(lowerDesc, "depósito") || strings.Contains(lowerDesc, "flatex deposit"):
			return models.TransactionTypeCash, models.SubTypeDeposit, "", "Cash Deposit", 0, 0
		case strings.Contains(lowerDesc, "levantamento") || strings.Contains(lowerDesc, "withdrawal"):
			return models.TransactionTypeCash, models.SubTypeWithdrawal, "", "Cash Withdrawal", 0, 0
		case isCommission(raw.Description) || strings.Contains(lowerDesc, "custo de conectividade"):
			return models.TransactionTypeFee, "", "", "Brokerage Fee", 0, 0
		}
		return unknownType, "", "", "", 0, 0
	}

	if strings.EqualFold(matches[1], "compra") {
		buySell = models.Buy
	} else {
		buySell = models.Sell
	}

	productName = strings.TrimSpace(matches[3])
	quantity = parseQuantity(matches[2])
	price = parseNumber(matches[4])

	if m := optionRe.FindStringSubmatch(productName); m != nil {
		txType = models.TransactionTypeOption
		if m[1] == "C" {
			subType = models.SubTypeCall
		} else {
			subType = models.SubTypePut
		}
	} else {
		txType = models.TransactionTypeStock
	}
	return
}

func isCommission(description string) bool {
	return strings.Contains(strings.ToLower(description), "comissões de transação")
}

// commissionForOrder sums the EUR commission rows of an order and expresses
// the total in the trade currency.
func commissionForOrder(orderID string, rows []RawTransaction, currency string, rate float64) float64 {
	if orderID == "" {
		return 0
	}
	var total float64
	for _, row := range rows {
		if row.OrderID == orderID && isCommission(row.Description) {
			total += math.Abs(parseNumber(row.Amount))
		}
	}
	if total != 0 && !strings.EqualFold(currency, models.BaseCurrency) && rate > 0 {
		total *= rate
	}
	return total
}

// parseQuantity reads whole-share counts where "." groups thousands.
func parseQuantity(s string) float64 {
	s = strings.NewReplacer(" ", "", ".", "").Replace(s)
	return parseNumber(s)
}

// parseNumber accepts both "1234.56" and the European "1.234,56" forms.
// Unparseable input yields 0.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, " ", ""))
	if s == "" {
		return 0
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
