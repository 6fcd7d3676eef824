package processors

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/utils"
)

const (
	TotalRowLabel = "TOTAL"

	PriceStatusOK          = "OK"
	PriceStatusUnavailable = "UNAVAILABLE"

	// Lots held for less than this many days get no annualized figure:
	// compounding a few days of movement gives meaningless numbers.
	MinDaysForAnnualizedReturn = 30

	annualizedNotAvailable = "N/A"
)

// NormalizeHolding is the single sign boundary for holdings: cost basis and
// market value become non-negative magnitudes whatever the source convention.
func NormalizeHolding(h models.CurrentHolding) models.CurrentHolding {
	h.ISIN = strings.TrimSpace(h.ISIN)
	h.TotalCostBasisEUR = math.Abs(utils.Finite(h.TotalCostBasisEUR))
	h.MarketValueEUR = math.Abs(utils.Finite(h.MarketValueEUR))
	h.CurrentPriceEUR = math.Abs(utils.Finite(h.CurrentPriceEUR))
	h.Quantity = utils.Finite(h.Quantity)
	return h
}

// BuildGroupedRows turns the open positions and the lifetime metrics into the
// grouped holdings table. A trailing total row is appended when there is at
// least one holding. Historical views never report unrealized gains.
func BuildGroupedRows(holdings []models.CurrentHolding, metrics models.AggregatedMetrics, isHistorical bool) []models.HoldingRow {
	rows := make([]models.HoldingRow, 0, len(holdings)+1)
	for _, raw := range holdings {
		h := NormalizeHolding(raw)
		rows = append(rows, buildHoldingRow(h, metrics.Get(h.ISIN), isHistorical))
	}
	if len(rows) == 0 {
		return rows
	}
	return append(rows, totalRow(rows))
}

func buildHoldingRow(h models.CurrentHolding, m models.AggregatedMetric, isHistorical bool) models.HoldingRow {
	costBasis := h.TotalCostBasisEUR

	row := models.HoldingRow{
		CurrentHolding:   h,
		AggregatedMetric: m,
	}
	if h.Quantity > 0 {
		row.CostPerShare = costBasis / h.Quantity
	}
	row.RealizedGains = m.TotalDividends + m.TotalRealizedStockPL - math.Abs(m.TotalCommissions)
	if !isHistorical {
		row.UnrealizedPL = h.MarketValueEUR - costBasis
	}
	row.UnrealizedPLPercentage = percentOf(row.UnrealizedPL, costBasis)
	row.TotalProfitAmount = row.UnrealizedPL + row.RealizedGains
	row.TotalProfitPercentage = percentOf(row.TotalProfitAmount, costBasis)
	return row
}

// totalRow sums every numeric column. Percentages are recomputed from the
// summed amounts, never averaged.
func totalRow(rows []models.HoldingRow) models.HoldingRow {
	total := models.HoldingRow{IsTotalRow: true}
	total.ISIN = TotalRowLabel
	total.ProductName = TotalRowLabel
	for _, r := range rows {
		total.Quantity += r.Quantity
		total.MarketValueEUR += r.MarketValueEUR
		total.TotalCostBasisEUR += r.TotalCostBasisEUR
		total.TotalRealizedStockPL += r.TotalRealizedStockPL
		total.TotalDividends += r.TotalDividends
		total.TotalCommissions += r.TotalCommissions
		total.RealizedGains += r.RealizedGains
		total.UnrealizedPL += r.UnrealizedPL
		total.TotalProfitAmount += r.TotalProfitAmount
	}
	total.UnrealizedPLPercentage = percentOf(total.UnrealizedPL, total.TotalCostBasisEUR)
	total.TotalProfitPercentage = percentOf(total.TotalProfitAmount, total.TotalCostBasisEUR)
	return total
}

// BuildDetailedRows enriches every open lot with its current valuation. Lots
// without a price are valued at their buy price.
func BuildDetailedRows(lots []models.PurchaseLot, prices map[string]float64, now time.Time) []models.DetailedRow {
	rows := make([]models.DetailedRow, 0, len(lots))
	for _, lot := range lots {
		lot.BuyAmountEUR = math.Abs(utils.Finite(lot.BuyAmountEUR))
		row := models.DetailedRow{PurchaseLot: lot, PriceStatus: PriceStatusUnavailable}

		if price, ok := prices[lot.ISIN]; ok && price > 0 {
			row.CurrentPriceEUR = price
			row.PriceStatus = PriceStatusOK
		} else if lot.Quantity > 0 {
			row.CurrentPriceEUR = lot.BuyAmountEUR / lot.Quantity
		}

		row.MarketValueEUR = row.CurrentPriceEUR * lot.Quantity
		row.UnrealizedPL = row.MarketValueEUR - lot.BuyAmountEUR
		if lot.Quantity > 0 {
			row.UnrealizedPLPerShare = row.UnrealizedPL / lot.Quantity
		}
		row.DaysHeld = utils.DaysHeld(lot.BuyDate, now)
		row.AnnualizedReturn = AnnualizedReturn(lot.BuyAmountEUR, row.MarketValueEUR, row.DaysHeld)
		rows = append(rows, row)
	}
	return rows
}

// AnnualizedReturn formats the compound annual growth of cost into value over
// daysHeld days, or "N/A" when it cannot be computed meaningfully.
func AnnualizedReturn(cost, value float64, daysHeld int) string {
	if cost <= 0 || value <= 0 || daysHeld < MinDaysForAnnualizedReturn {
		return annualizedNotAvailable
	}
	rate := math.Pow(value/cost, 365.0/float64(daysHeld)) - 1
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return annualizedNotAvailable
	}
	return utils.FormatPercent(rate * 100)
}

// HoldingsFromLots groups open lots by ISIN into current holdings. Holdings
// without a price are valued at cost.
func HoldingsFromLots(lots []models.PurchaseLot, prices map[string]float64) []models.CurrentHolding {
	byISIN := make(map[string]*models.CurrentHolding)
	var order []string
	for _, lot := range lots {
		isin := strings.TrimSpace(lot.ISIN)
		if isin == "" {
			continue
		}
		h, ok := byISIN[isin]
		if !ok {
			h = &models.CurrentHolding{ISIN: isin, ProductName: lot.ProductName}
			byISIN[isin] = h
			order = append(order, isin)
		}
		h.Quantity += lot.Quantity
		h.TotalCostBasisEUR += math.Abs(lot.BuyAmountEUR)
	}

	holdings := make([]models.CurrentHolding, 0, len(order))
	for _, isin := range order {
		h := *byISIN[isin]
		if price, ok := prices[isin]; ok && price > 0 {
			h.CurrentPriceEUR = price
			h.MarketValueEUR = price * h.Quantity
		} else {
			h.CurrentPriceEUR = utils.SafeDiv(h.TotalCostBasisEUR, h.Quantity)
			h.MarketValueEUR = h.TotalCostBasisEUR
		}
		holdings = append(holdings, h)
	}

	sort.SliceStable(holdings, func(i, j int) bool {
		if holdings[i].ProductName == holdings[j].ProductName {
			return holdings[i].ISIN < holdings[j].ISIN
		}
		return holdings[i].ProductName < holdings[j].ProductName
	})
	return holdings
}

func percentOf(amount, base float64) float64 {
	if base > 0 {
		return amount / base * 100
	}
	return 0
}
