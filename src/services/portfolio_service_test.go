package services

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/username/taxfolio/portfolio/src/database"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/processors"
)

type mockPriceService struct {
	mock.Mock
}

func (m *mockPriceService) GetCurrentPrices(isins []string) (map[string]PriceInfo, error) {
	args := m.Called(isins)
	prices, _ := args.Get(0).(map[string]PriceInfo)
	return prices, args.Error(1)
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, prices PriceService) PortfolioService {
	t.Helper()
	db, err := database.Open(database.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPortfolioService(
		db,
		processors.NewTransactionProcessor(nil),
		processors.NewStockProcessor(),
		processors.NewOptionProcessor(),
		processors.NewDividendProcessor(),
		processors.NewFeeProcessor(),
		processors.NewCashFlowProcessor(),
		prices,
		cache.New(DefaultCacheExpiration, CacheCleanupInterval),
		PortfolioServiceConfig{
			ReturnOptions: processors.DefaultReturnOptions(),
			Now:           func() time.Time { return fixedNow },
		},
	)
}

func sampleTransactions() []models.Transaction {
	return []models.Transaction{
		{Date: "2023-06-01", TransactionType: "CASH", TransactionSubType: "DEPOSIT", Amount: 2000, Currency: "EUR"},
		{Date: "2023-06-02", ISIN: "X", ProductName: "Xcorp", TransactionType: "STOCK", BuySell: "BUY", Quantity: 10, Price: 80, Currency: "EUR", OrderID: "1"},
		{Date: "2023-06-02", ISIN: "Y", ProductName: "Ycorp", TransactionType: "STOCK", BuySell: "BUY", Quantity: 5, Price: 20, Currency: "EUR", OrderID: "2"},
		{Date: "2024-01-15", ISIN: "Y", ProductName: "Ycorp", TransactionType: "STOCK", BuySell: "SELL", Quantity: 5, Price: 30, Currency: "EUR", OrderID: "3"},
		{Date: "2024-03-01", ISIN: "X", ProductName: "Xcorp", TransactionType: "DIVIDEND", Amount: 100, Currency: "EUR"},
	}
}

func TestImportTransactions_Deduplicates(t *testing.T) {
	svc := newTestService(t, nil)

	res, err := svc.ImportTransactions(1, sampleTransactions())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Inserted)
	assert.Equal(t, 0, res.Duplicates)
	assert.NotEmpty(t, res.ImportID)

	res, err = svc.ImportTransactions(1, sampleTransactions())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 5, res.Duplicates)

	txs, err := svc.GetTransactions(1)
	require.NoError(t, err)
	assert.Len(t, txs, 5)
}

func TestImportTransactions_KeepsSameDayDeposits(t *testing.T) {
	svc := newTestService(t, nil)

	res, err := svc.ImportTransactions(1, []models.Transaction{
		{Date: "2024-01-10", TransactionType: "CASH", TransactionSubType: "DEPOSIT", Amount: 500, Currency: "EUR", CashBalance: 500, BalanceCurrency: "EUR"},
		{Date: "2024-01-10", TransactionType: "CASH", TransactionSubType: "DEPOSIT", Amount: 500, Currency: "EUR", CashBalance: 1000, BalanceCurrency: "EUR"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Duplicates)

	txs, err := svc.GetTransactions(1)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestImportTransactions_InvalidInput(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.ImportTransactions(1, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ImportTransactions(1, []models.Transaction{{Date: "garbage", TransactionType: "CASH"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetHoldings_LiveWithPrices(t *testing.T) {
	prices := &mockPriceService{}
	prices.On("GetCurrentPrices", []string{"X"}).Return(map[string]PriceInfo{
		"X": {Status: processors.PriceStatusOK, Price: 100, Currency: "EUR"},
	}, nil)

	svc := newTestService(t, prices)
	_, err := svc.ImportTransactions(1, sampleTransactions())
	require.NoError(t, err)

	rows, err := svc.GetHoldings(1, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	x := rows[0]
	assert.Equal(t, "X", x.ISIN)
	assert.Equal(t, 800.0, x.TotalCostBasisEUR)
	assert.Equal(t, 1000.0, x.MarketValueEUR)
	assert.Equal(t, 200.0, x.UnrealizedPL)
	assert.Equal(t, 100.0, x.RealizedGains)
	assert.Equal(t, 300.0, x.TotalProfitAmount)
	assert.True(t, rows[1].IsTotalRow)

	// Served from cache.
	_, err = svc.GetHoldings(1, nil)
	require.NoError(t, err)
	prices.AssertNumberOfCalls(t, "GetCurrentPrices", 1)

	metrics, err := svc.GetAggregatedMetrics(1)
	require.NoError(t, err)
	assert.Equal(t, 50.0, metrics.Get("Y").TotalRealizedStockPL)
}

func TestGetHoldings_Historical(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.ImportTransactions(1, sampleTransactions())
	require.NoError(t, err)

	asOf := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	rows, err := svc.GetHoldings(1, &asOf)
	require.NoError(t, err)
	require.Len(t, rows, 3, "X, Y and the total row")
	for _, r := range rows {
		assert.Equal(t, 0.0, r.UnrealizedPL)
	}
	assert.Equal(t, "Y", rows[1].ISIN)
	assert.Equal(t, 0.0, rows[1].TotalRealizedStockPL, "the sale happens after as_of")

	future := fixedNow.AddDate(0, 0, 2)
	_, err = svc.GetHoldings(1, &future)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetDetailedLots_UnavailablePrice(t *testing.T) {
	prices := &mockPriceService{}
	prices.On("GetCurrentPrices", mock.Anything).Return(map[string]PriceInfo{}, assert.AnError)

	svc := newTestService(t, prices)
	_, err := svc.ImportTransactions(1, sampleTransactions())
	require.NoError(t, err)

	lots, err := svc.GetDetailedLots(1)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, processors.PriceStatusUnavailable, lots[0].PriceStatus)
	assert.Equal(t, 80.0, lots[0].CurrentPriceEUR)
	assert.Equal(t, 365, lots[0].DaysHeld)
}

func TestGetReturns(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.ImportTransactions(1, []models.Transaction{
		{Date: "2023-06-01", TransactionType: "CASH", TransactionSubType: "DEPOSIT", Amount: 1000},
	})
	require.NoError(t, err)

	_, err = svc.ImportSnapshots(1, []models.PortfolioSnapshot{
		{Date: "01-06-2023", PortfolioValue: 1000, CumulativeCashFlow: 1000},
		{Date: "2024-05-31", PortfolioValue: 1090, CumulativeCashFlow: 1000},
		{Date: "2024-06-01", PortfolioValue: 1100, CumulativeCashFlow: 1000},
	})
	require.NoError(t, err)

	summary, err := svc.GetReturns(1)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", summary.AsOf)

	require.NotNil(t, summary.Periods["ALL"])
	assert.InDelta(t, 10.0, *summary.Periods["ALL"], 1e-9)
	assert.Nil(t, summary.Periods["5Y"])

	require.NotNil(t, summary.DailyChange)
	assert.InDelta(t, 0.917, *summary.DailyChange, 0.001)

	require.NotNil(t, summary.XIRR)
	assert.InDelta(t, 10.0, *summary.XIRR, 0.05)
	assert.True(t, summary.XIRRReliable)
	assert.NotNil(t, summary.Volatility)
}

func TestGetReturns_XIRRValuedAtLastSnapshot(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.ImportTransactions(1, []models.Transaction{
		{Date: "2023-06-01", TransactionType: "CASH", TransactionSubType: "DEPOSIT", Amount: 1000},
	})
	require.NoError(t, err)

	// 365 days from the deposit; now is one day later.
	_, err = svc.ImportSnapshots(1, []models.PortfolioSnapshot{
		{Date: "2023-06-01", PortfolioValue: 1000, CumulativeCashFlow: 1000},
		{Date: "2024-05-31", PortfolioValue: 1100, CumulativeCashFlow: 1000},
	})
	require.NoError(t, err)

	summary, err := svc.GetReturns(1)
	require.NoError(t, err)
	require.NotNil(t, summary.XIRR)
	assert.InDelta(t, 10.0, *summary.XIRR, 0.01)
}

func TestGetReturns_NoData(t *testing.T) {
	svc := newTestService(t, nil)
	summary, err := svc.GetReturns(7)
	require.NoError(t, err)
	assert.Nil(t, summary.XIRR)
	assert.Nil(t, summary.DailyChange)
	for _, v := range summary.Periods {
		assert.Nil(t, v)
	}
}

func TestImportSnapshots_InvalidatesReturns(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.ImportSnapshots(1, []models.PortfolioSnapshot{{Date: "2024-05-01", PortfolioValue: 100, CumulativeCashFlow: 100}})
	require.NoError(t, err)

	before, err := svc.GetReturns(1)
	require.NoError(t, err)
	assert.Nil(t, before.DailyChange)

	_, err = svc.ImportSnapshots(1, []models.PortfolioSnapshot{{Date: "2024-05-02", PortfolioValue: 110, CumulativeCashFlow: 100}})
	require.NoError(t, err)

	after, err := svc.GetReturns(1)
	require.NoError(t, err)
	require.NotNil(t, after.DailyChange)
	assert.InDelta(t, 10.0, *after.DailyChange, 1e-9)
}

func TestDeleteAllUserData(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.ImportTransactions(1, sampleTransactions())
	require.NoError(t, err)
	_, err = svc.GetHoldings(1, nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAllUserData(1))

	rows, err := svc.GetHoldings(1, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDashboardViews(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.ImportTransactions(1, append(sampleTransactions(),
		models.Transaction{Date: "2024-02-01", ProductName: "SPY C500", TransactionType: "OPTION", BuySell: "SELL", Quantity: 1, Amount: 120},
	))
	require.NoError(t, err)

	sales, err := svc.GetStockSaleDetails(1)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.InDelta(t, 50.0, sales[0].Delta, 1e-9)

	optionSales, err := svc.GetOptionSaleDetails(1)
	require.NoError(t, err)
	assert.Empty(t, optionSales)

	optionHoldings, err := svc.GetOptionHoldings(1)
	require.NoError(t, err)
	require.Len(t, optionHoldings, 1)
	assert.Equal(t, -1.0, optionHoldings[0].Quantity)

	dividends, err := svc.GetDividendTaxSummary(1)
	require.NoError(t, err)
	assert.Equal(t, 100.0, dividends["2024"][processors.UnknownCountry].GrossAmt)

	fees, err := svc.GetFees(1)
	require.NoError(t, err)
	assert.Empty(t, fees)
}

func TestExportHoldingsXLSX(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.ExportHoldingsXLSX(1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ImportTransactions(1, []models.Transaction{
		{Date: "2024-01-02", ISIN: "X", ProductName: "=cmd()", TransactionType: "STOCK", BuySell: "BUY", Quantity: 2, Price: 50},
	})
	require.NoError(t, err)

	data, err := svc.ExportHoldingsXLSX(1)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue(holdingsSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "ISIN", header)

	name, err := f.GetCellValue(holdingsSheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "'=cmd()", name)

	total, err := f.GetCellValue(holdingsSheet, "A4")
	require.NoError(t, err)
	assert.Equal(t, processors.TotalRowLabel, total)

	summary, err := f.GetCellValue(holdingsSheet, "B1")
	require.NoError(t, err)
	assert.Contains(t, summary, "100.00")
}

func TestBuildHoldingsWorkbook_HeaderAndStamp(t *testing.T) {
	data, err := BuildHoldingsWorkbook([]models.HoldingRow{
		{CurrentHolding: models.CurrentHolding{ISIN: "X", ProductName: "Xcorp", Quantity: 1}},
	}, fixedNow)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	stamp, err := f.GetCellValue(holdingsSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Generated 2024-06-01T12:00:00Z", stamp)

	summary, err := f.GetCellValue(holdingsSheet, "B1")
	require.NoError(t, err)
	assert.Empty(t, summary, "no total row, no summary")

	header, err := f.GetRows(holdingsSheet)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(header), 2)
	assert.Equal(t, holdingsHeader, header[1])
}

func TestImportStatement(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.ImportStatement(1, "robinhood", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ImportStatement(1, "degiro", strings.NewReader("header only\n"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	csv := "Data,Hora,Data Valor,Produto,ISIN,Descrição,Taxa,Variação,,Saldo,,ID da Ordem\n" +
		"02-01-2024,09:00,02-01-2024,,,Depósito,,EUR,\"500,00\",EUR,\"500,00\",\n" +
		"03-01-2024,10:00,03-01-2024,ACME,NL0000000001,Compra 4 Acme@50 EUR,,EUR,\"-200,00\",EUR,\"300,00\",o-1\n" +
		"03-01-2024,10:00,03-01-2024,ACME,NL0000000001,Comissões de transação DEGIRO e/ou taxas de terceiros,,EUR,\"-1,00\",EUR,\"299,00\",o-1\n"

	res, err := svc.ImportStatement(1, "degiro", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)

	lots, err := svc.GetDetailedLots(1)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "NL0000000001", lots[0].ISIN)

	fees, err := svc.GetFees(1)
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, -1.0, fees[0].AmountEUR)
}
