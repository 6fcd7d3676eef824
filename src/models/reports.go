package models

// DividendCountrySummary is one year/country cell of the dividend report.
// TaxedAmt keeps the sign of the withholding rows, so it is usually negative.
type DividendCountrySummary struct {
	GrossAmt float64 `json:"gross_amt"`
	TaxedAmt float64 `json:"taxed_amt"`
}

// DividendTaxResult is keyed by year, then by ISIN country code.
type DividendTaxResult map[string]map[string]DividendCountrySummary

// Add accumulates a dividend amount into the year/country cell.
func (r DividendTaxResult) Add(year, country string, amount float64, withheld bool) {
	countries, ok := r[year]
	if !ok {
		countries = make(map[string]DividendCountrySummary)
		r[year] = countries
	}
	summary := countries[country]
	if withheld {
		summary.TaxedAmt += amount
	} else {
		summary.GrossAmt += amount
	}
	countries[country] = summary
}

// FeeDetail is one cost line of the fee view. AmountEUR is negative.
type FeeDetail struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	ISIN        string  `json:"isin,omitempty"`
	AmountEUR   float64 `json:"amount_eur"`
	Source      string  `json:"source"`
	Category    string  `json:"category"`
}
