package models

// PortfolioSnapshot is one daily point of the historical value series.
// CumulativeCashFlow is the running sum of signed external flows since
// inception. Zero-value days (empty account) may appear in the series.
type PortfolioSnapshot struct {
	Date               string   `json:"date"`
	PortfolioValue     float64  `json:"portfolio_value"`
	CumulativeCashFlow float64  `json:"cumulative_cash_flow"`
	SPYPrice           *float64 `json:"spy_price,omitempty"`
	BenchmarkValue     *float64 `json:"benchmark_value,omitempty"`
}

// ReturnsSummary is the "Returns" view model. A nil pointer means there was
// not enough data and the UI should render a dash, not 0%.
type ReturnsSummary struct {
	AsOf         string              `json:"as_of"`
	Periods      map[string]*float64 `json:"periods"`
	DailyChange  *float64            `json:"daily_change"`
	XIRR         *float64            `json:"xirr"`
	XIRRReliable bool                `json:"xirr_reliable"`
	Volatility   *float64            `json:"volatility"`
}
