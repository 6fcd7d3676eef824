package processors

import (
	"strings"

	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/utils"
)

// UnknownCountry groups dividends whose ISIN has no usable country prefix.
const UnknownCountry = "XX"

// dividendProcessorImpl implements the DividendProcessor interface.
type dividendProcessorImpl struct{}

// NewDividendProcessor creates a new instance of DividendProcessor.
func NewDividendProcessor() DividendProcessor {
	return &dividendProcessorImpl{}
}

// CalculateTaxSummary groups dividends by year and by the issuer country taken
// from the ISIN prefix. Withholding tax rows (subtype TAX) go to TaxedAmt and
// keep their sign, so tax withheld is negative.
func (p *dividendProcessorImpl) CalculateTaxSummary(transactions []models.Transaction) models.DividendTaxResult {
	result := make(models.DividendTaxResult)

	for _, t := range transactions {
		if !isType(t, models.TransactionTypeDividend) {
			continue
		}
		date := utils.ParseDate(t.Date)
		if date.IsZero() {
			continue
		}
		year := date.Format("2006")
		country := CountryFromISIN(t.ISIN)

		result.Add(year, country, t.AmountEUR, isSubType(t, models.SubTypeTax))
	}

	for year, countries := range result {
		for country, summary := range countries {
			summary.GrossAmt = utils.RoundFloat(summary.GrossAmt, 2)
			summary.TaxedAmt = utils.RoundFloat(summary.TaxedAmt, 2)
			result[year][country] = summary
		}
	}

	return result
}

// CountryFromISIN returns the two-letter country prefix of an ISIN.
func CountryFromISIN(isin string) string {
	isin = strings.ToUpper(strings.TrimSpace(isin))
	if len(isin) < 2 {
		return UnknownCountry
	}
	prefix := isin[:2]
	for _, r := range prefix {
		if r < 'A' || r > 'Z' {
			return UnknownCountry
		}
	}
	return prefix
}
