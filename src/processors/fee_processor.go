package processors

import (
	"math"

	"github.com/username/taxfolio/portfolio/src/models"
)

const (
	FeeCategoryBrokerage  = "Brokerage Fee"
	FeeCategoryCommission = "Trade Commission"
)

type feeProcessorImpl struct{}

func NewFeeProcessor() FeeProcessor {
	return &feeProcessorImpl{}
}

// Process lists dedicated fee rows and every trade commission. All amounts are
// reported as negative EUR costs.
func (p *feeProcessorImpl) Process(transactions []models.Transaction) []models.FeeDetail {
	feeDetails := []models.FeeDetail{}

	for _, tx := range transactions {
		if isType(tx, models.TransactionTypeFee) {
			feeDetails = append(feeDetails, models.FeeDetail{
				Date:        tx.Date,
				Description: tx.ProductName,
				ISIN:        tx.ISIN,
				AmountEUR:   -math.Abs(tx.AmountEUR),
				Source:      tx.Source,
				Category:    FeeCategoryBrokerage,
			})
		}

		if commission := CommissionEUR(tx); commission > 0 {
			feeDetails = append(feeDetails, models.FeeDetail{
				Date:        tx.Date,
				Description: tx.ProductName,
				ISIN:        tx.ISIN,
				AmountEUR:   -commission,
				Source:      tx.Source,
				Category:    FeeCategoryCommission,
			})
		}
	}
	return feeDetails
}
