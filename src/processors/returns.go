package processors

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/utils"
)

type Method string

const (
	MethodDietz Method = "dietz"
	MethodTWR   Method = "twr"
)

type Period string

const (
	Period1W  Period = "1W"
	Period1M  Period = "1M"
	Period3M  Period = "3M"
	Period6M  Period = "6M"
	PeriodYTD Period = "YTD"
	Period1Y  Period = "1Y"
	Period5Y  Period = "5Y"
	PeriodAll Period = "ALL"
)

// AllPeriods lists the dashboard windows in display order.
var AllPeriods = []Period{Period1W, Period1M, Period3M, Period6M, PeriodYTD, Period1Y, Period5Y, PeriodAll}

const (
	// DefaultMinDenominator: a day whose start capital (previous value plus
	// the day's flow) or whose closing value is at or below this amount is an
	// empty-account gap and is bridged with a 0% day.
	DefaultMinDenominator = 1.0
	// DefaultMaxDailyReturn: daily returns above 1000% are data glitches and
	// are discarded.
	DefaultMaxDailyReturn = 10.0
	// DefaultDietzMinStartValue: a Dietz anchor below this value is treated
	// as an empty account.
	DefaultDietzMinStartValue = 1.0

	tradingDaysPerYear = 252
)

// ReturnOptions holds the thresholds of the return engine.
type ReturnOptions struct {
	MinDenominator     float64
	MaxDailyReturn     float64
	DietzMinStartValue float64
}

func DefaultReturnOptions() ReturnOptions {
	return ReturnOptions{
		MinDenominator:     DefaultMinDenominator,
		MaxDailyReturn:     DefaultMaxDailyReturn,
		DietzMinStartValue: DefaultDietzMinStartValue,
	}
}

// ComputeReturn returns the percentage return of the series from windowStart
// to its last snapshot, or nil when no snapshot exists at or before
// windowStart. The series does not need to be sorted.
func ComputeReturn(series []models.PortfolioSnapshot, windowStart time.Time, method Method, opts ReturnOptions) *float64 {
	sorted := SortSnapshots(series)
	idx := anchorIndex(sorted, windowStart)
	if idx < 0 {
		return nil
	}

	switch method {
	case MethodDietz:
		return modifiedDietz(sorted[idx], sorted[len(sorted)-1], opts)
	case MethodTWR:
		return timeWeightedReturn(sorted[idx:], opts)
	default:
		return nil
	}
}

// SortSnapshots returns a date-ascending copy of series without the
// snapshots whose date cannot be parsed.
func SortSnapshots(series []models.PortfolioSnapshot) []models.PortfolioSnapshot {
	out := make([]models.PortfolioSnapshot, 0, len(series))
	for _, s := range series {
		if !utils.ParseDate(s.Date).IsZero() {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return utils.ParseDate(out[i].Date).Before(utils.ParseDate(out[j].Date))
	})
	return out
}

// anchorIndex finds the latest snapshot dated on or before windowStart.
func anchorIndex(sorted []models.PortfolioSnapshot, windowStart time.Time) int {
	start := utils.TruncateDay(windowStart)
	idx := -1
	for i, s := range sorted {
		if utils.ParseDate(s.Date).After(start) {
			break
		}
		idx = i
	}
	return idx
}

// modifiedDietz weights the window's net flow at its midpoint.
func modifiedDietz(start, end models.PortfolioSnapshot, opts ReturnOptions) *float64 {
	if start.PortfolioValue < opts.DietzMinStartValue {
		return nil
	}
	netFlow := end.CumulativeCashFlow - start.CumulativeCashFlow
	gain := (end.PortfolioValue - start.PortfolioValue) - netFlow
	adjustedCapital := start.PortfolioValue + netFlow*0.5
	if adjustedCapital <= 0 {
		return nil
	}
	return ptr(gain / adjustedCapital * 100)
}

func timeWeightedReturn(window []models.PortfolioSnapshot, opts ReturnOptions) *float64 {
	product := 1.0
	for _, r := range dailyReturns(window, opts) {
		product *= 1 + r
	}
	return ptr((product - 1) * 100)
}

// dailyReturns walks adjacent snapshot pairs and returns the daily returns
// that survive the gap and glitch filters. window must be sorted.
func dailyReturns(window []models.PortfolioSnapshot, opts ReturnOptions) []float64 {
	var out []float64
	for i := 1; i < len(window); i++ {
		prev, curr := window[i-1], window[i]
		dailyFlow := curr.CumulativeCashFlow - prev.CumulativeCashFlow
		denominator := prev.PortfolioValue + dailyFlow
		if denominator <= opts.MinDenominator || curr.PortfolioValue <= opts.MinDenominator {
			continue
		}
		r := curr.PortfolioValue/denominator - 1
		if math.IsNaN(r) || math.IsInf(r, 0) || r > opts.MaxDailyReturn {
			continue
		}
		out = append(out, r)
	}
	return out
}

// DailyReturns returns the filtered daily returns of the whole series.
func DailyReturns(series []models.PortfolioSnapshot, opts ReturnOptions) []float64 {
	return dailyReturns(SortSnapshots(series), opts)
}

// Volatility is the annualized standard deviation of the daily returns, in
// percent. It needs at least two daily returns.
func Volatility(series []models.PortfolioSnapshot, opts ReturnOptions) *float64 {
	returns := DailyReturns(series, opts)
	if len(returns) < 2 {
		return nil
	}
	return ptr(stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear) * 100)
}

// DailyChange is today's simple return against the previous snapshot, net of
// today's flows. It is nil when there is no positive previous value.
func DailyChange(currentValue, previousValue, netFlowsToday float64) *float64 {
	if previousValue <= 0 {
		return nil
	}
	return ptr((currentValue - previousValue - netFlowsToday) / previousValue * 100)
}

// LatestDailyChange applies DailyChange to the last two snapshots.
func LatestDailyChange(series []models.PortfolioSnapshot) *float64 {
	sorted := SortSnapshots(series)
	if len(sorted) < 2 {
		return nil
	}
	prev, curr := sorted[len(sorted)-2], sorted[len(sorted)-1]
	return DailyChange(curr.PortfolioValue, prev.PortfolioValue, curr.CumulativeCashFlow-prev.CumulativeCashFlow)
}

// MethodFor picks Modified Dietz for short windows and TWR for long ones.
func MethodFor(p Period) Method {
	switch p {
	case Period1W, Period1M, Period3M, Period6M:
		return MethodDietz
	default:
		return MethodTWR
	}
}

// WindowStart returns the first day of period p ending at now. PeriodAll
// starts at the earliest snapshot of series.
func WindowStart(p Period, now time.Time, series []models.PortfolioSnapshot) time.Time {
	today := utils.TruncateDay(now)
	switch p {
	case Period1W:
		return today.AddDate(0, 0, -7)
	case Period1M:
		return today.AddDate(0, -1, 0)
	case Period3M:
		return today.AddDate(0, -3, 0)
	case Period6M:
		return today.AddDate(0, -6, 0)
	case PeriodYTD:
		return time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case Period1Y:
		return today.AddDate(-1, 0, 0)
	case Period5Y:
		return today.AddDate(-5, 0, 0)
	default:
		sorted := SortSnapshots(series)
		if len(sorted) == 0 {
			return today
		}
		return utils.ParseDate(sorted[0].Date)
	}
}

// PeriodReturns computes every dashboard window, keyed by period label.
func PeriodReturns(series []models.PortfolioSnapshot, now time.Time, opts ReturnOptions) map[string]*float64 {
	out := make(map[string]*float64, len(AllPeriods))
	for _, p := range AllPeriods {
		out[string(p)] = ComputeReturn(series, WindowStart(p, now, series), MethodFor(p), opts)
	}
	return out
}

func ptr(v float64) *float64 {
	return &v
}
