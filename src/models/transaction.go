package models

// Transaction types.
const (
	TransactionTypeStock    = "STOCK"
	TransactionTypeOption   = "OPTION"
	TransactionTypeDividend = "DIVIDEND"
	TransactionTypeCash     = "CASH"
	TransactionTypeFee      = "FEE"
)

// Transaction subtypes.
const (
	SubTypeDeposit    = "DEPOSIT"
	SubTypeWithdrawal = "WITHDRAWAL"
	SubTypeTax        = "TAX"
	SubTypeCall       = "CALL"
	SubTypePut        = "PUT"
)

const (
	Buy  = "BUY"
	Sell = "SELL"
)

const BaseCurrency = "EUR"

// Transaction is one immutable broker log record. Dates are ISO (YYYY-MM-DD)
// once the record went through ingestion.
type Transaction struct {
	ID                 int64   `json:"id,omitempty"`
	Source             string  `json:"source"` // e.g. degiro, ibkr
	Date               string  `json:"date"`
	ProductName        string  `json:"product_name"`
	ISIN               string  `json:"isin"`
	Quantity           float64 `json:"quantity"`
	Price              float64 `json:"price"`
	TransactionType    string  `json:"transaction_type"`    // STOCK, OPTION, DIVIDEND, CASH, FEE
	TransactionSubType string  `json:"transaction_subtype"` // DEPOSIT, WITHDRAWAL, TAX, CALL, PUT
	BuySell            string  `json:"buy_sell"`
	Amount             float64 `json:"amount"` // signed, original currency
	AmountEUR          float64 `json:"amount_eur"`
	Commission         float64 `json:"commission"`
	Currency           string  `json:"currency"`
	ExchangeRate       float64 `json:"exchange_rate"` // units of Currency per EUR
	CashBalance        float64 `json:"cash_balance"`
	BalanceCurrency    string  `json:"balance_currency"`
	OrderID            string  `json:"order_id,omitempty"`
	HashID             string  `json:"hash_id,omitempty"`
}

// CashFlow is one signed external flow used by the XIRR solver. Deposits are
// negative, withdrawals and the terminal valuation positive.
type CashFlow struct {
	Amount float64 `json:"amount"`
	Date   string  `json:"date"`
}
