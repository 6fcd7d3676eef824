package processors

import (
	"math"
	"sort"
	"strings"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/utils"
)

// optionProcessorImpl implements the OptionProcessor interface.
type optionProcessorImpl struct{}

// NewOptionProcessor creates a new instance of OptionProcessor.
func NewOptionProcessor() OptionProcessor {
	return &optionProcessorImpl{}
}

// Process matches option trades per product. A buy first closes open shorts,
// a sell first closes open longs; any remainder opens a new position.
func (p *optionProcessorImpl) Process(transactions []models.Transaction) ([]models.OptionSaleDetail, []models.OptionHolding) {
	byProduct := groupOptionTransactionsByProduct(transactions)

	products := make([]string, 0, len(byProduct))
	for product := range byProduct {
		products = append(products, product)
	}
	sort.Strings(products)

	saleDetails := []models.OptionSaleDetail{}
	holdings := []models.OptionHolding{}

	for _, product := range products {
		txs := byProduct[product]
		sortOptionTransactions(txs)

		var openLong, openShort []*openLot
		for _, tx := range txs {
			qty := math.Abs(tx.Quantity)
			isBuy := isSide(tx, models.Buy)

			closing := &openShort
			if !isBuy {
				closing = &openLong
			}

			remaining := qty
			for remaining > quantityEpsilon && len(*closing) > 0 {
				pos := (*closing)[0]
				matched := math.Min(remaining, pos.remaining)
				saleDetails = append(saleDetails, newOptionSaleDetail(pos.tx, tx, matched, !isBuy))

				remaining -= matched
				pos.remaining -= matched
				if pos.remaining <= quantityEpsilon {
					*closing = (*closing)[1:]
				}
			}

			if remaining > quantityEpsilon {
				if isBuy {
					openLong = append(openLong, &openLot{tx: tx, remaining: remaining})
				} else {
					openShort = append(openShort, &openLot{tx: tx, remaining: remaining})
				}
			}
		}

		for _, pos := range openLong {
			holdings = append(holdings, newOptionHolding(pos.tx, pos.remaining))
		}
		for _, pos := range openShort {
			holdings = append(holdings, newOptionHolding(pos.tx, -pos.remaining))
		}
	}

	return saleDetails, holdings
}

// newOptionSaleDetail prorates both legs to the matched quantity. For a long
// position the close is the sale; for a short the open is.
func newOptionSaleDetail(openTx, closeTx models.Transaction, matched float64, isLong bool) models.OptionSaleDetail {
	openRatio := matched / math.Abs(openTx.Quantity)
	closeRatio := matched / math.Abs(closeTx.Quantity)

	openEUR := math.Abs(openTx.AmountEUR) * openRatio
	closeEUR := math.Abs(closeTx.AmountEUR) * closeRatio

	delta := openEUR - closeEUR
	if isLong {
		delta = closeEUR - openEUR
	}

	return models.OptionSaleDetail{
		OpenDate:       openTx.Date,
		CloseDate:      closeTx.Date,
		ProductName:    openTx.ProductName,
		ISIN:           strings.TrimSpace(openTx.ISIN),
		Quantity:       matched,
		OpenAmountEUR:  openEUR,
		CloseAmountEUR: closeEUR,
		Commission:     CommissionEUR(openTx)*openRatio + CommissionEUR(closeTx)*closeRatio,
		Delta:          delta,
		OpenOrderID:    openTx.OrderID,
		CloseOrderID:   closeTx.OrderID,
	}
}

// newOptionHolding builds an open position. quantity is signed.
func newOptionHolding(tx models.Transaction, quantity float64) models.OptionHolding {
	return models.OptionHolding{
		OpenDate:      tx.Date,
		ProductName:   tx.ProductName,
		Quantity:      quantity,
		OpenPrice:     tx.Price,
		OpenAmountEUR: math.Abs(tx.AmountEUR) * math.Abs(quantity) / math.Abs(tx.Quantity),
		OpenOrderID:   tx.OrderID,
	}
}

// groupOptionTransactionsByProduct groups by product name: option ISINs are
// often missing or shared across strikes.
func groupOptionTransactionsByProduct(transactions []models.Transaction) map[string][]models.Transaction {
	grouped := make(map[string][]models.Transaction)
	for _, tx := range transactions {
		if !isType(tx, models.TransactionTypeOption) {
			continue
		}
		if tx.Quantity == 0 {
			logger.L.Warn("Skipping option transaction with zero quantity", "orderID", tx.OrderID, "product", tx.ProductName)
			continue
		}
		if !isSide(tx, models.Buy) && !isSide(tx, models.Sell) {
			logger.L.Warn("Skipping option transaction without buy/sell side", "orderID", tx.OrderID, "product", tx.ProductName)
			continue
		}
		product := strings.TrimSpace(tx.ProductName)
		if product == "" {
			logger.L.Warn("Skipping option transaction with empty product name", "orderID", tx.OrderID)
			continue
		}
		grouped[product] = append(grouped[product], tx)
	}
	return grouped
}

func sortOptionTransactions(transactions []models.Transaction) {
	sort.SliceStable(transactions, func(i, j int) bool {
		dateI := utils.ParseDate(transactions[i].Date)
		dateJ := utils.ParseDate(transactions[j].Date)
		if dateI.Equal(dateJ) {
			return transactions[i].OrderID < transactions[j].OrderID
		}
		return dateI.Before(dateJ)
	})
}
