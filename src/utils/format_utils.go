package utils

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatCurrency renders amount in the given ISO currency, e.g. "€1,234.56".
// Unknown codes fall back to EUR.
func FormatCurrency(amount float64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || money.GetCurrency(code) == nil {
		code = money.EUR
	}
	cur := money.GetCurrency(code)
	minor := decimal.NewFromFloat(Finite(amount)).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}

// FormatPercent renders a percentage with two decimals, e.g. "12.34%".
func FormatPercent(pct float64) string {
	return fmt.Sprintf("%.2f%%", RoundFloat(pct, 2))
}
