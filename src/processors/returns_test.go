package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/taxfolio/portfolio/src/models"
)

func snap(date string, value, cashFlow float64) models.PortfolioSnapshot {
	return models.PortfolioSnapshot{Date: date, PortfolioValue: value, CumulativeCashFlow: cashFlow}
}

func TestComputeReturn_DietzBoundary(t *testing.T) {
	series := []models.PortfolioSnapshot{
		snap("2024-01-01", 0.5, 0),
		snap("2024-01-31", 1000, 1000),
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, ComputeReturn(series, start, MethodDietz, DefaultReturnOptions()))
}

func TestComputeReturn_Dietz(t *testing.T) {
	series := []models.PortfolioSnapshot{
		snap("2024-02-01", 1200, 1100),
		snap("2024-01-01", 1000, 1000),
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got := ComputeReturn(series, start, MethodDietz, DefaultReturnOptions())
	require.NotNil(t, got)
	// gain 100 over 1000 + 100/2
	assert.InDelta(t, 9.5238, *got, 0.0001)
}

func TestComputeReturn_NoAnchor(t *testing.T) {
	series := []models.PortfolioSnapshot{snap("2024-03-01", 100, 100)}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, ComputeReturn(series, start, MethodTWR, DefaultReturnOptions()))
	assert.Nil(t, ComputeReturn(nil, start, MethodDietz, DefaultReturnOptions()))
}

func TestComputeReturn_TWRGapBridging(t *testing.T) {
	series := []models.PortfolioSnapshot{
		snap("2024-01-01", 100, 100),
		snap("2024-01-02", 110, 100),
		snap("2024-01-03", 121, 100),
		snap("2024-01-04", 0, 100),
		snap("2024-01-05", 50, 150),
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got := ComputeReturn(series, start, MethodTWR, DefaultReturnOptions())
	require.NotNil(t, got)
	assert.InDelta(t, 21.0, *got, 1e-9, "the gap and the fresh deposit contribute 0%")

	beforeGap := ComputeReturn(series[:3], start, MethodTWR, DefaultReturnOptions())
	require.NotNil(t, beforeGap)
	assert.InDelta(t, *beforeGap, *got, 1e-9)
}

func TestComputeReturn_TWRDiscardsGlitches(t *testing.T) {
	series := []models.PortfolioSnapshot{
		snap("2024-01-01", 100, 100),
		snap("2024-01-02", 5000, 100),
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got := ComputeReturn(series, start, MethodTWR, DefaultReturnOptions())
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)

	opts := DefaultReturnOptions()
	opts.MaxDailyReturn = 100
	got = ComputeReturn(series, start, MethodTWR, opts)
	require.NotNil(t, got)
	assert.InDelta(t, 4900.0, *got, 1e-9)
}

func TestComputeReturn_SinglePointWindow(t *testing.T) {
	series := []models.PortfolioSnapshot{snap("2024-01-01", 100, 100)}
	got := ComputeReturn(series, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), MethodTWR, DefaultReturnOptions())
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)
}

func TestDailyChange(t *testing.T) {
	got := DailyChange(110, 100, 5)
	require.NotNil(t, got)
	assert.InDelta(t, 5.0, *got, 1e-9)
	assert.Nil(t, DailyChange(110, 0, 0))

	latest := LatestDailyChange([]models.PortfolioSnapshot{
		snap("2024-01-02", 220, 110),
		snap("2024-01-01", 200, 100),
	})
	require.NotNil(t, latest)
	assert.InDelta(t, 5.0, *latest, 1e-9)
	assert.Nil(t, LatestDailyChange(nil))
}

func TestVolatility(t *testing.T) {
	series := []models.PortfolioSnapshot{
		snap("2024-01-01", 100, 100),
		snap("2024-01-02", 110, 100),
		snap("2024-01-03", 99, 100),
	}
	got := Volatility(series, DefaultReturnOptions())
	require.NotNil(t, got)
	assert.InDelta(t, 224.50, *got, 0.01)

	assert.Nil(t, Volatility(series[:2], DefaultReturnOptions()))
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2024, 3, 15, 17, 0, 0, 0, time.UTC)
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	assert.Equal(t, day(2024, 3, 8), WindowStart(Period1W, now, nil))
	assert.Equal(t, day(2024, 2, 15), WindowStart(Period1M, now, nil))
	assert.Equal(t, day(2023, 9, 15), WindowStart(Period6M, now, nil))
	assert.Equal(t, day(2024, 1, 1), WindowStart(PeriodYTD, now, nil))
	assert.Equal(t, day(2023, 3, 15), WindowStart(Period1Y, now, nil))
	assert.Equal(t, day(2019, 3, 15), WindowStart(Period5Y, now, nil))

	series := []models.PortfolioSnapshot{snap("2022-05-04", 1, 1), snap("2021-07-01", 1, 1)}
	assert.Equal(t, day(2021, 7, 1), WindowStart(PeriodAll, now, series))
}

func TestMethodFor(t *testing.T) {
	assert.Equal(t, MethodDietz, MethodFor(Period3M))
	assert.Equal(t, MethodTWR, MethodFor(PeriodYTD))
	assert.Equal(t, MethodTWR, MethodFor(PeriodAll))
}

func TestPeriodReturns(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	series := []models.PortfolioSnapshot{
		snap("2024-01-01", 100, 100),
		snap("2024-01-10", 110, 100),
	}

	returns := PeriodReturns(series, now, DefaultReturnOptions())
	require.Len(t, returns, len(AllPeriods))
	assert.Nil(t, returns["1M"], "no snapshot before the window start")
	require.NotNil(t, returns["ALL"])
	assert.InDelta(t, 10.0, *returns["ALL"], 1e-9)
	require.NotNil(t, returns["YTD"])
	assert.InDelta(t, 10.0, *returns["YTD"], 1e-9)
}
