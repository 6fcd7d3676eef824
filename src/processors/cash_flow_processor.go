package processors

import (
	"math"

	"github.com/username/taxfolio/portfolio/src/models"
)

// cashFlowProcessor implements the CashFlowProcessor interface.
type cashFlowProcessor struct{}

// NewCashFlowProcessor creates a new instance of CashFlowProcessor.
func NewCashFlowProcessor() CashFlowProcessor {
	return &cashFlowProcessor{}
}

// Process extracts external cash movements in XIRR sign convention: money the
// investor puts in is negative, money taken out is positive.
func (p *cashFlowProcessor) Process(transactions []models.Transaction) []models.CashFlow {
	var flows []models.CashFlow
	for _, tx := range transactions {
		if !isType(tx, models.TransactionTypeCash) {
			continue
		}
		amount := math.Abs(tx.AmountEUR)
		if amount == 0 {
			continue
		}
		switch {
		case isSubType(tx, models.SubTypeDeposit):
			flows = append(flows, models.CashFlow{Amount: -amount, Date: tx.Date})
		case isSubType(tx, models.SubTypeWithdrawal):
			flows = append(flows, models.CashFlow{Amount: amount, Date: tx.Date})
		}
	}
	return flows
}
