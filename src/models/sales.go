package models

import "encoding/json"

// SaleDetail is one closed stock lot (or lot split) produced by FIFO matching.
type SaleDetail struct {
	SaleDate      string  `json:"SaleDate"`
	BuyDate       string  `json:"BuyDate"`
	ProductName   string  `json:"ProductName"`
	ISIN          string  `json:"ISIN"`
	Quantity      float64 `json:"Quantity"`
	SalePrice     float64 `json:"SalePrice"`
	SaleAmountEUR float64 `json:"SaleAmountEUR"`
	BuyPrice      float64 `json:"BuyPrice"`
	BuyAmountEUR  float64 `json:"BuyAmountEUR"`
	Commission    float64 `json:"Commission"`
	Delta         float64 `json:"Delta"` // realized P/L in EUR
}

// UnmarshalJSON accepts the lowercase "isin" key some feeds use.
func (s *SaleDetail) UnmarshalJSON(data []byte) error {
	type plain SaleDetail
	aux := struct {
		*plain
		LowerISIN string `json:"isin"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if s.ISIN == "" {
		s.ISIN = aux.LowerISIN
	}
	return nil
}

// OptionSaleDetail is one closed option position.
type OptionSaleDetail struct {
	OpenDate       string  `json:"open_date"`
	CloseDate      string  `json:"close_date"`
	ProductName    string  `json:"product_name"`
	ISIN           string  `json:"isin"`
	Quantity       float64 `json:"quantity"`
	OpenAmountEUR  float64 `json:"open_amount_eur"`
	CloseAmountEUR float64 `json:"close_amount_eur"`
	Commission     float64 `json:"commission"`
	Delta          float64 `json:"delta"`
	OpenOrderID    string  `json:"open_order_id,omitempty"`
	CloseOrderID   string  `json:"close_order_id,omitempty"`
}

// OptionHolding is an open option position. Quantity is signed: positive for
// long, negative for short.
type OptionHolding struct {
	OpenDate      string  `json:"open_date"`
	ProductName   string  `json:"product_name"`
	Quantity      float64 `json:"quantity"`
	OpenPrice     float64 `json:"open_price"`
	OpenAmountEUR float64 `json:"open_amount_eur"`
	OpenOrderID   string  `json:"open_order_id,omitempty"`
}

// PurchaseLot represents a remaining unsold purchase lot.
type PurchaseLot struct {
	BuyDate      string  `json:"buy_date"`
	ProductName  string  `json:"product_name"`
	ISIN         string  `json:"isin"`
	Quantity     float64 `json:"quantity"`
	BuyPrice     float64 `json:"buy_price"`
	BuyAmountEUR float64 `json:"buy_amount_eur"` // sign depends on the source
}
