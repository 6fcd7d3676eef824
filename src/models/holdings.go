package models

// CurrentHolding is an open position snapshot at "now". Depending on the
// source, TotalCostBasisEUR may be stored negative.
type CurrentHolding struct {
	ISIN              string  `json:"isin"`
	ProductName       string  `json:"product_name"`
	Quantity          float64 `json:"quantity"`
	MarketValueEUR    float64 `json:"market_value_eur"`
	TotalCostBasisEUR float64 `json:"total_cost_basis_eur"`
	CurrentPriceEUR   float64 `json:"current_price_eur"`
}

// AggregatedMetric holds the lifetime metrics of one instrument.
// TotalCommissions is always a non-negative magnitude.
type AggregatedMetric struct {
	TotalRealizedStockPL float64 `json:"totalRealizedStockPL"`
	TotalDividends       float64 `json:"totalDividends"`
	TotalCommissions     float64 `json:"totalCommissions"`
}

// AggregatedMetrics is keyed by ISIN.
type AggregatedMetrics map[string]AggregatedMetric

// Get returns the metric for isin, or the zero metric when unknown.
func (m AggregatedMetrics) Get(isin string) AggregatedMetric {
	if m == nil {
		return AggregatedMetric{}
	}
	return m[isin]
}

// HoldingRow is one grouped holdings table row.
type HoldingRow struct {
	CurrentHolding
	AggregatedMetric

	CostPerShare           float64 `json:"costPerShare"`
	RealizedGains          float64 `json:"realizedGains"`
	UnrealizedPL           float64 `json:"unrealizedPL"`
	UnrealizedPLPercentage float64 `json:"unrealizedPLPercentage"`
	TotalProfitAmount      float64 `json:"totalProfitAmount"`
	TotalProfitPercentage  float64 `json:"totalProfitPercentage"`
	IsTotalRow             bool    `json:"isTotalRow"`
}

// DetailedRow is one open purchase lot enriched for the lots table.
type DetailedRow struct {
	PurchaseLot

	CurrentPriceEUR      float64 `json:"current_price_eur"`
	MarketValueEUR       float64 `json:"market_value_eur"`
	DaysHeld             int     `json:"days_held"`
	UnrealizedPL         float64 `json:"unrealized_pl"`
	UnrealizedPLPerShare float64 `json:"unrealized_pl_per_share"`
	AnnualizedReturn     string  `json:"annualized_return"`
	PriceStatus          string  `json:"price_status"` // OK or UNAVAILABLE
}
