package services

import (
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/model"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/parsers"
	"github.com/username/taxfolio/portfolio/src/processors"
	"github.com/username/taxfolio/portfolio/src/security/validation"
	"github.com/username/taxfolio/portfolio/src/utils"
)

const (
	// Full calculation results, rebuilt from the database on a miss.
	ckPortfolioData = "res_portfolio_data_user_%d"

	// Derived view models.
	ckMetrics         = "agg_metrics_user_%d"
	ckHoldings        = "agg_holdings_user_%d"
	ckLots            = "agg_lots_user_%d"
	ckReturns         = "agg_returns_user_%d"
	ckDividendSummary = "agg_dividend_summary_user_%d"
	ckFees            = "agg_fees_user_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

var userCacheKeys = []string{ckPortfolioData, ckMetrics, ckHoldings, ckLots, ckReturns, ckDividendSummary, ckFees}

// PortfolioServiceConfig holds the tunables of the portfolio service.
type PortfolioServiceConfig struct {
	ReturnOptions processors.ReturnOptions
	CacheExpiry   time.Duration
	// Now is the clock used for days held, daily change and XIRR. Defaults to
	// time.Now.
	Now func() time.Time
}

// portfolioData is every FIFO result derived from a user's transactions.
type portfolioData struct {
	transactions   []models.Transaction
	stockSales     []models.SaleDetail
	lots           []models.PurchaseLot
	optionSales    []models.OptionSaleDetail
	optionHoldings []models.OptionHolding
}

type portfolioServiceImpl struct {
	db                   *sql.DB
	transactionProcessor *processors.TransactionProcessor
	stockProcessor       processors.StockProcessor
	optionProcessor      processors.OptionProcessor
	dividendProcessor    processors.DividendProcessor
	feeProcessor         processors.FeeProcessor
	cashFlowProcessor    processors.CashFlowProcessor
	priceService         PriceService
	reportCache          *cache.Cache
	cfg                  PortfolioServiceConfig
}

// NewPortfolioService wires the processors to the store. priceService may be
// nil, in which case holdings are valued at cost.
func NewPortfolioService(
	db *sql.DB,
	transactionProcessor *processors.TransactionProcessor,
	stockProcessor processors.StockProcessor,
	optionProcessor processors.OptionProcessor,
	dividendProcessor processors.DividendProcessor,
	feeProcessor processors.FeeProcessor,
	cashFlowProcessor processors.CashFlowProcessor,
	priceService PriceService,
	reportCache *cache.Cache,
	cfg PortfolioServiceConfig,
) PortfolioService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CacheExpiry <= 0 {
		cfg.CacheExpiry = DefaultCacheExpiration
	}
	return &portfolioServiceImpl{
		db:                   db,
		transactionProcessor: transactionProcessor,
		stockProcessor:       stockProcessor,
		optionProcessor:      optionProcessor,
		dividendProcessor:    dividendProcessor,
		feeProcessor:         feeProcessor,
		cashFlowProcessor:    cashFlowProcessor,
		priceService:         priceService,
		reportCache:          reportCache,
		cfg:                  cfg,
	}
}

func (s *portfolioServiceImpl) ImportTransactions(userID int64, txs []models.Transaction) (*ImportResult, error) {
	startTime := time.Now()
	logger.L.Info("ImportTransactions START", "userID", userID, "rows", len(txs))

	if err := validation.ValidateTransactions(txs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	processed := s.transactionProcessor.Process(txs)
	importID := uuid.NewString()

	inserted, err := model.InsertTransactions(s.db, userID, importID, processed)
	if err != nil {
		return nil, err
	}

	// The next request triggers a full recalculation.
	s.InvalidateUserCache(userID)

	logger.L.Info("ImportTransactions END", "userID", userID, "importID", importID, "inserted", inserted, "duration", time.Since(startTime))
	return &ImportResult{
		ImportID:   importID,
		Received:   len(txs),
		Inserted:   inserted,
		Duplicates: len(txs) - inserted,
	}, nil
}

// ImportStatement parses a broker statement file and imports its rows.
func (s *portfolioServiceImpl) ImportStatement(userID int64, source string, file io.Reader) (*ImportResult, error) {
	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	txs, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("%w: no recognizable transactions in %s statement", ErrInvalidInput, source)
	}
	logger.L.Info("Parsed broker statement", "userID", userID, "source", source, "rows", len(txs))
	return s.ImportTransactions(userID, txs)
}

func (s *portfolioServiceImpl) ImportSnapshots(userID int64, snapshots []models.PortfolioSnapshot) (*ImportResult, error) {
	if err := validation.ValidateSnapshots(snapshots); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	normalized := make([]models.PortfolioSnapshot, len(snapshots))
	for i, snap := range snapshots {
		snap.Date = utils.NormalizeDate(snap.Date)
		normalized[i] = snap
	}

	stored, err := model.UpsertSnapshots(s.db, userID, normalized)
	if err != nil {
		return nil, err
	}
	s.reportCache.Delete(fmt.Sprintf(ckReturns, userID))

	importID := uuid.NewString()
	logger.L.Info("Imported portfolio snapshots", "userID", userID, "importID", importID, "count", stored)
	return &ImportResult{ImportID: importID, Received: len(snapshots), Inserted: stored}, nil
}

func (s *portfolioServiceImpl) GetTransactions(userID int64) ([]models.Transaction, error) {
	data, err := s.getPortfolioData(userID)
	if err != nil {
		return nil, err
	}
	return data.transactions, nil
}

func (s *portfolioServiceImpl) DeleteAllUserData(userID int64) error {
	txCount, err := model.DeleteTransactionsByUserID(s.db, userID)
	if err != nil {
		return err
	}
	snapCount, err := model.DeleteSnapshotsByUserID(s.db, userID)
	if err != nil {
		return err
	}
	s.InvalidateUserCache(userID)
	logger.L.Info("Deleted all user data", "userID", userID, "transactions", txCount, "snapshots", snapCount)
	return nil
}

// InvalidateUserCache clears all cached data for a user, forcing a complete
// rebuild on the next request.
func (s *portfolioServiceImpl) InvalidateUserCache(userID int64) {
	for _, key := range userCacheKeys {
		s.reportCache.Delete(fmt.Sprintf(key, userID))
	}
	logger.L.Debug("Invalidated all caches for user", "userID", userID)
}

// getPortfolioData is the central function that populates the FIFO results
// on a cache miss.
func (s *portfolioServiceImpl) getPortfolioData(userID int64) (*portfolioData, error) {
	cacheKey := fmt.Sprintf(ckPortfolioData, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for portfolio data", "userID", userID)
		return cached.(*portfolioData), nil
	}

	logger.L.Info("Cache miss for portfolio data, recalculating from DB", "userID", userID)
	transactions, err := model.GetTransactionsByUserID(s.db, userID)
	if err != nil {
		return nil, err
	}

	data := &portfolioData{transactions: transactions}
	data.stockSales, data.lots = s.stockProcessor.Process(transactions)
	data.optionSales, data.optionHoldings = s.optionProcessor.Process(transactions)

	s.reportCache.Set(cacheKey, data, s.cfg.CacheExpiry)
	return data, nil
}

func (s *portfolioServiceImpl) GetAggregatedMetrics(userID int64) (models.AggregatedMetrics, error) {
	cacheKey := fmt.Sprintf(ckMetrics, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(models.AggregatedMetrics), nil
	}
	data, err := s.getPortfolioData(userID)
	if err != nil {
		return nil, err
	}
	metrics := processors.Aggregate(data.transactions, data.stockSales, data.optionSales)
	s.reportCache.Set(cacheKey, metrics, s.cfg.CacheExpiry)
	return metrics, nil
}

func (s *portfolioServiceImpl) GetHoldings(userID int64, asOf *time.Time) ([]models.HoldingRow, error) {
	if asOf != nil {
		return s.getHistoricalHoldings(userID, *asOf)
	}

	cacheKey := fmt.Sprintf(ckHoldings, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.([]models.HoldingRow), nil
	}
	data, err := s.getPortfolioData(userID)
	if err != nil {
		return nil, err
	}
	metrics, err := s.GetAggregatedMetrics(userID)
	if err != nil {
		return nil, err
	}

	holdings := processors.HoldingsFromLots(data.lots, s.currentPrices(data.lots))
	rows := processors.BuildGroupedRows(holdings, metrics, false)
	s.reportCache.Set(cacheKey, rows, s.cfg.CacheExpiry)
	return rows, nil
}

// getHistoricalHoldings replays the transactions up to asOf. Positions are
// valued at cost and unrealized gains are not reported.
func (s *portfolioServiceImpl) getHistoricalHoldings(userID int64, asOf time.Time) ([]models.HoldingRow, error) {
	day := utils.TruncateDay(asOf)
	if day.After(utils.TruncateDay(s.cfg.Now())) {
		return nil, fmt.Errorf("%w: as_of date %s is in the future", ErrInvalidInput, day.Format(utils.ISODateFormat))
	}

	data, err := s.getPortfolioData(userID)
	if err != nil {
		return nil, err
	}

	var upTo []models.Transaction
	for _, tx := range data.transactions {
		if !utils.ParseDate(tx.Date).After(day) {
			upTo = append(upTo, tx)
		}
	}
	sales, lots := s.stockProcessor.ProcessAsOf(upTo, day)
	metrics := processors.Aggregate(upTo, sales, nil)
	return processors.BuildGroupedRows(processors.HoldingsFromLots(lots, nil), metrics, true), nil
}

func (s *portfolioServiceImpl) GetDetailedLots(userID int64) ([]models.DetailedRow, error) {
	cacheKey := fmt.Sprintf(ckLots, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.([]models.DetailedRow), nil
	}
	data, err := s.getPortfolioData(userID)
	if err != nil {
		return nil, err
	}
	rows := processors.BuildDetailedRows(data.lots, s.currentPrices(data.lots), s.cfg.Now())
	s.reportCache.Set(cacheKey, rows, s.cfg.CacheExpiry)
	return rows, nil
}

func (s *portfolioServiceImpl) GetReturns(userID int64) (*models.ReturnsSummary, error) {
	cacheKey := fmt.Sprintf(ckReturns, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(*models.ReturnsSummary), nil
	}

	series, err := model.GetSnapshotsByUserID(s.db, userID)
	if err != nil {
		return nil, err
	}
	data, err := s.getPortfolioData(userID)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	opts := s.cfg.ReturnOptions
	summary := &models.ReturnsSummary{
		AsOf:        now.Format(utils.ISODateFormat),
		Periods:     processors.PeriodReturns(series, now, opts),
		DailyChange: processors.LatestDailyChange(series),
		Volatility:  processors.Volatility(series, opts),
	}

	if sorted := processors.SortSnapshots(series); len(sorted) > 0 {
		// The terminal value is dated at its own snapshot, not at now.
		last := sorted[len(sorted)-1]
		valuedAt := utils.ParseDate(last.Date)
		if valuedAt.IsZero() {
			valuedAt = now
		}
		flows := s.cashFlowProcessor.Process(data.transactions)
		if len(flows) > 0 && last.PortfolioValue != 0 {
			xirr := processors.XIRR(flows, last.PortfolioValue, valuedAt, processors.DefaultXIRRGuess)
			summary.XIRR = &xirr
			summary.XIRRReliable = processors.XIRRReliable(xirr)
		}
	}

	s.reportCache.Set(cacheKey, summary, s.cfg.CacheExpiry)
	return summary, nil
}

func (s *portfolioServiceImpl) GetStockSaleDetails(userID int64) ([]models.SaleDetail, error) {
	data, err := s.getPortfolioData(userID)
	if err != nil {
		return nil, err
	}
	return data.stockSales, nil
}

func (s *portfolioServiceImpl) GetOptionSaleDetails(userID int64) ([]models.OptionSaleDetail, error) {
	data, err := s.getPortfolioData(userID)
	if err != nil {
		return nil, err
	}
	return data.optionSales, nil
}

func (s *portfolioServiceImpl) GetOptionHoldings(userID int64) ([]models.OptionHolding, error) {
	data, err := s.getPortfolioData(userID)
	if err != nil {
		return nil, err
	}
	return data.optionHoldings, nil
}

func (s *portfolioServiceImpl) GetDividendTaxSummary(userID int64) (models.DividendTaxResult, error) {
	cacheKey := fmt.Sprintf(ckDividendSummary, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(models.DividendTaxResult), nil
	}
	data, err := s.getPortfolioData(userID)
	if err != nil {
		return nil, err
	}
	summary := s.dividendProcessor.CalculateTaxSummary(data.transactions)
	s.reportCache.Set(cacheKey, summary, s.cfg.CacheExpiry)
	return summary, nil
}

func (s *portfolioServiceImpl) GetFees(userID int64) ([]models.FeeDetail, error) {
	cacheKey := fmt.Sprintf(ckFees, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.([]models.FeeDetail), nil
	}
	data, err := s.getPortfolioData(userID)
	if err != nil {
		return nil, err
	}
	fees := s.feeProcessor.Process(data.transactions)
	s.reportCache.Set(cacheKey, fees, s.cfg.CacheExpiry)
	return fees, nil
}

// currentPrices returns EUR prices for the ISINs of lots. Lookup failures
// leave the ISIN out, so the holding is valued at cost.
func (s *portfolioServiceImpl) currentPrices(lots []models.PurchaseLot) map[string]float64 {
	prices := make(map[string]float64)
	if s.priceService == nil || len(lots) == 0 {
		return prices
	}

	seen := make(map[string]bool)
	var isins []string
	for _, lot := range lots {
		if lot.ISIN != "" && !seen[lot.ISIN] {
			seen[lot.ISIN] = true
			isins = append(isins, lot.ISIN)
		}
	}

	infos, err := s.priceService.GetCurrentPrices(isins)
	if err != nil {
		logger.L.Warn("Price lookup failed, valuing holdings at cost", "error", err)
	}
	for isin, info := range infos {
		if info.Status == processors.PriceStatusOK && info.Price > 0 {
			prices[isin] = info.Price
		}
	}
	return prices
}
