package ibkr

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/utils"
)

// Source is the broker name stored on parsed transactions.
const Source = "ibkr"

// FlexQueryResponse is the root element of the IBKR Flex Query report.
type FlexQueryResponse struct {
	XMLName        xml.Name        `xml:"FlexQueryResponse"`
	FlexStatements []FlexStatement `xml:"FlexStatements>FlexStatement"`
}

// FlexStatement contains all the data for a given account and period.
type FlexStatement struct {
	XMLName          xml.Name          `xml:"FlexStatement"`
	AccountId        string            `xml:"accountId,attr"`
	Trades           []Trade           `xml:"Trades>Trade"`
	CashTransactions []CashTransaction `xml:"CashTransactions>CashTransaction"`
}

// Trade represents a stock or option trade.
type Trade struct {
	AssetCategory string  `xml:"assetCategory,attr"`
	Symbol        string  `xml:"symbol,attr"`
	Description   string  `xml:"description,attr"`
	ISIN          string  `xml:"isin,attr"`
	Multiplier    float64 `xml:"multiplier,attr"`
	DateTime      string  `xml:"dateTime,attr"`
	Quantity      float64 `xml:"quantity,attr"`
	TradePrice    float64 `xml:"tradePrice,attr"`
	TradeMoney    float64 `xml:"tradeMoney,attr"`
	Currency      string  `xml:"currency,attr"`
	FxRateToBase  float64 `xml:"fxRateToBase,attr"`
	Exchange      string  `xml:"exchange,attr"`
	IBCommission  float64 `xml:"ibCommission,attr"`
	BuySell       string  `xml:"buySell,attr"`
	IBOrderID     string  `xml:"ibOrderID,attr"`
	PutCall       string  `xml:"putCall,attr"`
}

// CashTransaction represents dividends, withholding tax, deposits and withdrawals.
type CashTransaction struct {
	Type          string  `xml:"type,attr"`
	Description   string  `xml:"description,attr"`
	DateTime      string  `xml:"dateTime,attr"`
	Amount        float64 `xml:"amount,attr"`
	Currency      string  `xml:"currency,attr"`
	FxRateToBase  float64 `xml:"fxRateToBase,attr"`
	LevelOfDetail string  `xml:"levelOfDetail,attr"`
	ISIN          string  `xml:"isin,attr"`
	Symbol        string  `xml:"symbol,attr"`
	TransactionID string  `xml:"transactionID,attr"`
}

// IBKRParser reads IBKR Flex Query XML statements.
type IBKRParser struct{}

// NewParser creates a new instance of the IBKRParser.
func NewParser() *IBKRParser {
	return &IBKRParser{}
}

// Parse reads an IBKR XML report and converts its trades and detailed cash
// rows into canonical transactions. Currency conversions (IDEALFX) are ignored.
func (p *IBKRParser) Parse(file io.Reader) ([]models.Transaction, error) {
	var response FlexQueryResponse
	if err := xml.NewDecoder(file).Decode(&response); err != nil {
		return nil, fmt.Errorf("ibkr parser: failed to decode XML: %w", err)
	}

	txs := []models.Transaction{}
	for _, stmt := range response.FlexStatements {
		for _, trade := range stmt.Trades {
			if trade.Exchange == "IDEALFX" {
				continue
			}
			tx, err := p.processTrade(trade)
			if err != nil {
				logger.L.Warn("IBKR Parser: Skipping trade due to processing error", "ibOrderID", trade.IBOrderID, "error", err)
				continue
			}
			txs = append(txs, tx)
		}

		for _, cashTx := range stmt.CashTransactions {
			// Summary rows duplicate the detail rows.
			if cashTx.LevelOfDetail != "" && cashTx.LevelOfDetail != "DETAIL" {
				continue
			}
			tx, ok, err := p.processCash(cashTx)
			if err != nil {
				logger.L.Warn("IBKR Parser: Skipping cash transaction due to processing error", "description", cashTx.Description, "error", err)
				continue
			}
			if ok {
				txs = append(txs, tx)
			}
		}
	}

	return txs, nil
}

func (p *IBKRParser) processTrade(trade Trade) (models.Transaction, error) {
	date, err := parseIBKRDateTime(trade.DateTime)
	if err != nil {
		return models.Transaction{}, err
	}

	var txType, subType string
	switch trade.AssetCategory {
	case "STK":
		txType = models.TransactionTypeStock
	case "OPT":
		txType = models.TransactionTypeOption
		switch trade.PutCall {
		case "P":
			subType = models.SubTypePut
		case "C":
			subType = models.SubTypeCall
		}
	default:
		return models.Transaction{}, fmt.Errorf("unsupported asset category %q", trade.AssetCategory)
	}

	productName := trade.Description
	if productName == "" {
		productName = trade.Symbol
	}

	// tradeMoney is positive for a BUY; amounts are negative on outflow.
	return models.Transaction{
		Source:             Source,
		Date:               date.Format(utils.ISODateFormat),
		ProductName:        productName,
		ISIN:               trade.ISIN,
		Quantity:           math.Abs(trade.Quantity),
		Price:              trade.TradePrice,
		TransactionType:    txType,
		TransactionSubType: subType,
		BuySell:            strings.ToUpper(trade.BuySell),
		Amount:             -trade.TradeMoney,
		Commission:         math.Abs(trade.IBCommission),
		Currency:           trade.Currency,
		ExchangeRate:       toEURRate(trade.Currency, trade.FxRateToBase),
		OrderID:            trade.IBOrderID,
	}, nil
}

// processCash converts dividend, withholding and deposit rows. ok is false for
// cash types that have no canonical equivalent.
func (p *IBKRParser) processCash(cashTx CashTransaction) (tx models.Transaction, ok bool, err error) {
	var txType, subType, productName string
	switch cashTx.Type {
	case "Dividends", "Payment In Lieu Of Dividends":
		txType, productName = models.TransactionTypeDividend, cashTx.Symbol
	case "Withholding Tax":
		txType, subType, productName = models.TransactionTypeDividend, models.SubTypeTax, cashTx.Symbol
	case "Deposits/Withdrawals":
		txType, productName = models.TransactionTypeCash, "Cash Transfer"
		if cashTx.Amount >= 0 {
			subType = models.SubTypeDeposit
		} else {
			subType = models.SubTypeWithdrawal
		}
	case "Other Fees":
		txType, productName = models.TransactionTypeFee, cashTx.Description
	default:
		return models.Transaction{}, false, nil
	}

	date, err := parseIBKRDateTime(cashTx.DateTime)
	if err != nil {
		return models.Transaction{}, false, err
	}

	return models.Transaction{
		Source:             Source,
		Date:               date.Format(utils.ISODateFormat),
		ProductName:        productName,
		ISIN:               cashTx.ISIN,
		TransactionType:    txType,
		TransactionSubType: subType,
		Amount:             cashTx.Amount,
		Currency:           cashTx.Currency,
		ExchangeRate:       toEURRate(cashTx.Currency, cashTx.FxRateToBase),
		OrderID:            cashTx.TransactionID,
	}, true, nil
}

// toEURRate inverts IBKR's fxRateToBase (EUR per unit, for a EUR base
// account) into units of currency per EUR. Zero leaves the lookup to ingestion.
func toEURRate(currency string, fxRateToBase float64) float64 {
	if strings.EqualFold(currency, models.BaseCurrency) {
		return 1
	}
	if fxRateToBase <= 0 {
		return 0
	}
	return 1 / fxRateToBase
}

// parseIBKRDateTime converts IBKR's "YYYYMMDD;HHMMSS" or "YYYYMMDD" format.
func parseIBKRDateTime(datetime string) (time.Time, error) {
	layout := "20060102;150405"
	if !strings.Contains(datetime, ";") {
		layout = "20060102"
	}

	t, err := time.Parse(layout, datetime)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse ibkr datetime '%s': %w", datetime, err)
	}
	return t, nil
}
