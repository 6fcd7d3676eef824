package processors

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/utils"
)

// quantityEpsilon absorbs float drift on fractional share quantities.
const quantityEpsilon = 1e-9

// stockProcessorImpl implements the StockProcessor interface.
type stockProcessorImpl struct{}

// NewStockProcessor creates a new instance of StockProcessor.
func NewStockProcessor() StockProcessor {
	return &stockProcessorImpl{}
}

// openLot is a purchase with its unmatched remainder.
type openLot struct {
	tx        models.Transaction
	remaining float64
}

// Process matches every stock sell against the oldest open buys of the same
// ISIN and returns the closed lots and the lots still open.
func (p *stockProcessorImpl) Process(transactions []models.Transaction) ([]models.SaleDetail, []models.PurchaseLot) {
	return p.process(transactions, time.Time{})
}

func (p *stockProcessorImpl) ProcessAsOf(transactions []models.Transaction, asOf time.Time) ([]models.SaleDetail, []models.PurchaseLot) {
	return p.process(transactions, utils.TruncateDay(asOf))
}

func (p *stockProcessorImpl) process(transactions []models.Transaction, asOf time.Time) ([]models.SaleDetail, []models.PurchaseLot) {
	byISIN := groupStockTransactionsByISIN(transactions, asOf)

	isins := make([]string, 0, len(byISIN))
	for isin := range byISIN {
		isins = append(isins, isin)
	}
	sort.Strings(isins)

	saleDetails := []models.SaleDetail{}
	remainingLots := []models.PurchaseLot{}

	for _, isin := range isins {
		txs := byISIN[isin]
		sortTransactionsByDate(txs)

		var open []*openLot
		for _, tx := range txs {
			qty := math.Abs(tx.Quantity)
			if qty == 0 {
				continue
			}
			if isSide(tx, models.Buy) {
				open = append(open, &openLot{tx: tx, remaining: qty})
				continue
			}

			remainingQty := qty
			for remainingQty > quantityEpsilon && len(open) > 0 {
				lot := open[0]
				matched := math.Min(remainingQty, lot.remaining)
				saleDetails = append(saleDetails, newSaleDetail(tx, lot.tx, matched))

				remainingQty -= matched
				lot.remaining -= matched
				if lot.remaining <= quantityEpsilon {
					open = open[1:]
				}
			}
		}

		for _, lot := range open {
			remainingLots = append(remainingLots, newPurchaseLot(lot.tx, lot.remaining))
		}
	}

	return saleDetails, remainingLots
}

// newSaleDetail prorates the sale and buy legs to the matched quantity.
// Amounts are kept as magnitudes so Delta is sale minus buy whatever the
// broker's sign convention.
func newSaleDetail(sale, buy models.Transaction, matched float64) models.SaleDetail {
	saleRatio := matched / math.Abs(sale.Quantity)
	buyRatio := matched / math.Abs(buy.Quantity)

	saleEUR := math.Abs(sale.AmountEUR) * saleRatio
	buyEUR := math.Abs(buy.AmountEUR) * buyRatio

	return models.SaleDetail{
		SaleDate:      sale.Date,
		BuyDate:       buy.Date,
		ProductName:   sale.ProductName,
		ISIN:          strings.TrimSpace(sale.ISIN),
		Quantity:      matched,
		SalePrice:     sale.Price,
		SaleAmountEUR: saleEUR,
		BuyPrice:      buy.Price,
		BuyAmountEUR:  buyEUR,
		Commission:    CommissionEUR(sale)*saleRatio + CommissionEUR(buy)*buyRatio,
		Delta:         saleEUR - buyEUR,
	}
}

func newPurchaseLot(buy models.Transaction, remaining float64) models.PurchaseLot {
	return models.PurchaseLot{
		BuyDate:      buy.Date,
		ProductName:  buy.ProductName,
		ISIN:         strings.TrimSpace(buy.ISIN),
		Quantity:     remaining,
		BuyPrice:     buy.Price,
		BuyAmountEUR: math.Abs(buy.AmountEUR) * remaining / math.Abs(buy.Quantity),
	}
}

// groupStockTransactionsByISIN keeps stock trades with an ISIN and a side,
// dated on or before asOf when asOf is set.
func groupStockTransactionsByISIN(transactions []models.Transaction, asOf time.Time) map[string][]models.Transaction {
	grouped := make(map[string][]models.Transaction)
	for _, tx := range transactions {
		isin := strings.TrimSpace(tx.ISIN)
		if isin == "" || !isType(tx, models.TransactionTypeStock) {
			continue
		}
		if !isSide(tx, models.Buy) && !isSide(tx, models.Sell) {
			continue
		}
		if !asOf.IsZero() && utils.ParseDate(tx.Date).After(asOf) {
			continue
		}
		grouped[isin] = append(grouped[isin], tx)
	}
	return grouped
}

// sortTransactionsByDate orders by date, then buys before sells on the same
// day, then by order id for determinism.
func sortTransactionsByDate(transactions []models.Transaction) {
	sort.SliceStable(transactions, func(i, j int) bool {
		dateI := utils.ParseDate(transactions[i].Date)
		dateJ := utils.ParseDate(transactions[j].Date)
		if !dateI.Equal(dateJ) {
			return dateI.Before(dateJ)
		}
		buyI, buyJ := isSide(transactions[i], models.Buy), isSide(transactions[j], models.Buy)
		if buyI != buyJ {
			return buyI
		}
		return transactions[i].OrderID < transactions[j].OrderID
	})
}
