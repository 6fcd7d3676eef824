package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/username/taxfolio/portfolio/src/logger"
	"github.com/username/taxfolio/portfolio/src/model"
	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/processors"
)

const (
	defaultYahooPageURL   = "https://finance.yahoo.com/quote/VHYL.L"
	defaultYahooSearchURL = "https://query1.finance.yahoo.com/v1/finance/search"
	defaultYahooQuoteURL  = "https://query2.finance.yahoo.com/v7/finance/quote"

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"
)

var crumbPattern = regexp.MustCompile(`"CrumbStore":{"crumb":"(.*?)"}`)

type yahooSearchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		Exchange  string `json:"exchange"`
		Shortname string `json:"shortname"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
			Currency           string  `json:"currency"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteResponse"`
}

// PriceServiceOptions overrides the Yahoo endpoints and pacing.
type PriceServiceOptions struct {
	PageURL      string
	SearchURL    string
	QuoteURL     string
	RequestDelay time.Duration
	Timeout      time.Duration
}

// priceServiceImpl prices ISINs from Yahoo Finance. Resolved tickers are
// kept in isin_ticker_map so later lookups need a single quote request.
type priceServiceImpl struct {
	httpClient *http.Client
	db         *sql.DB
	rates      processors.RateSource
	opts       PriceServiceOptions

	mu    sync.Mutex
	crumb string
}

// NewPriceService creates a Yahoo price service. db may be nil to disable
// the ticker cache; rates converts quotes to EUR.
func NewPriceService(db *sql.DB, rates processors.RateSource, opts PriceServiceOptions) PriceService {
	if opts.PageURL == "" {
		opts.PageURL = defaultYahooPageURL
	}
	if opts.SearchURL == "" {
		opts.SearchURL = defaultYahooSearchURL
	}
	if opts.QuoteURL == "" {
		opts.QuoteURL = defaultYahooQuoteURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	return &priceServiceImpl{
		httpClient: &http.Client{Jar: jar, Timeout: opts.Timeout},
		db:         db,
		rates:      rates,
		opts:       opts,
	}
}

// GetCurrentPrices returns a PriceInfo for every requested ISIN. ISINs that
// could not be priced are reported UNAVAILABLE.
func (s *priceServiceImpl) GetCurrentPrices(isins []string) (map[string]PriceInfo, error) {
	result := make(map[string]PriceInfo)
	var toFetch []string
	for _, isin := range isins {
		if _, dup := result[isin]; dup {
			continue
		}
		result[isin] = PriceInfo{Status: processors.PriceStatusUnavailable}
		if isin != "" {
			toFetch = append(toFetch, isin)
		}
	}
	if len(toFetch) == 0 {
		return result, nil
	}

	crumb, err := s.ensureCrumb()
	if err != nil {
		return result, fmt.Errorf("failed to initialize Yahoo session: %w", err)
	}

	tickers := s.cachedTickers(toFetch)
	for i, isin := range toFetch {
		if i > 0 && s.opts.RequestDelay > 0 {
			time.Sleep(s.opts.RequestDelay)
		}

		ticker, ok := tickers[isin]
		if !ok {
			ticker, err = s.getTickerForISIN(isin)
			if err != nil {
				logger.L.Warn("Yahoo Fetch: Could not get ticker", "isin", isin, "error", err)
				continue
			}
			s.storeTicker(isin, ticker)
		}

		price, currency, err := s.getPriceForTicker(ticker, crumb)
		if err != nil {
			logger.L.Warn("Yahoo Fetch: Could not get price", "ticker", ticker, "error", err)
			continue
		}

		priceEUR, err := s.toEUR(price, currency)
		if err != nil {
			logger.L.Warn("Yahoo Fetch: Could not get exchange rate", "currency", currency, "error", err)
			continue
		}

		logger.L.Debug("Yahoo Fetch: Successfully got price", "isin", isin, "ticker", ticker, "priceEUR", priceEUR)
		result[isin] = PriceInfo{Status: processors.PriceStatusOK, Price: priceEUR, Currency: models.BaseCurrency}
	}
	return result, nil
}

func (s *priceServiceImpl) toEUR(price float64, currency string) (float64, error) {
	ccy := strings.ToUpper(strings.TrimSpace(currency))
	if ccy == "" || ccy == models.BaseCurrency {
		return price, nil
	}
	// Pence-quoted London listings.
	if ccy == "GBP" && currency == "GBp" {
		price /= 100
	}
	if s.rates == nil {
		return 0, fmt.Errorf("no exchange rates available for %s", ccy)
	}
	rate, err := s.rates.Rate(ccy, time.Now())
	if err != nil {
		return 0, err
	}
	if rate <= 0 {
		return 0, fmt.Errorf("invalid exchange rate %f for %s", rate, ccy)
	}
	return price / rate, nil
}

// ensureCrumb visits a Yahoo Finance page once to collect the session cookies
// and the crumb the quote endpoint requires.
func (s *priceServiceImpl) ensureCrumb() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.crumb != "" {
		return s.crumb, nil
	}

	logger.L.Info("Initializing Yahoo Finance session to get crumb and cookies")
	body, err := s.get(s.opts.PageURL)
	if err != nil {
		return "", fmt.Errorf("failed to make initial request to Yahoo: %w", err)
	}
	matches := crumbPattern.FindStringSubmatch(string(body))
	if len(matches) < 2 {
		return "", fmt.Errorf("could not find crumb in Yahoo Finance response")
	}
	s.crumb = matches[1]
	return s.crumb, nil
}

func (s *priceServiceImpl) getTickerForISIN(isin string) (string, error) {
	body, err := s.get(s.opts.SearchURL + "?q=" + url.QueryEscape(isin))
	if err != nil {
		return "", fmt.Errorf("failed to call Yahoo search API for ISIN %s: %w", isin, err)
	}
	var searchData yahooSearchResponse
	if err := json.Unmarshal(body, &searchData); err != nil {
		return "", fmt.Errorf("failed to decode Yahoo search response for ISIN %s: %w", isin, err)
	}
	if len(searchData.Quotes) == 0 || searchData.Quotes[0].Symbol == "" {
		return "", fmt.Errorf("no ticker found for ISIN %s on Yahoo Finance", isin)
	}
	return searchData.Quotes[0].Symbol, nil
}

func (s *priceServiceImpl) getPriceForTicker(ticker, crumb string) (float64, string, error) {
	query := url.Values{"symbols": {ticker}, "crumb": {crumb}}
	body, err := s.get(s.opts.QuoteURL + "?" + query.Encode())
	if err != nil {
		return 0, "", fmt.Errorf("failed to call Yahoo quote API for ticker %s: %w", ticker, err)
	}
	var quoteData yahooQuoteResponse
	if err := json.Unmarshal(body, &quoteData); err != nil {
		return 0, "", fmt.Errorf("failed to decode Yahoo quote response for ticker %s: %w", ticker, err)
	}
	if quoteData.QuoteResponse.Error != nil || len(quoteData.QuoteResponse.Result) == 0 {
		return 0, "", fmt.Errorf("yahoo quote API returned an error or no result for ticker %s", ticker)
	}
	quote := quoteData.QuoteResponse.Result[0]
	if quote.RegularMarketPrice <= 0 {
		return 0, "", fmt.Errorf("yahoo quote API returned no price for ticker %s", ticker)
	}
	return quote.RegularMarketPrice, quote.Currency, nil
}

func (s *priceServiceImpl) get(rawURL string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-OK status %d", resp.StatusCode)
	}
	return body, nil
}

func (s *priceServiceImpl) cachedTickers(isins []string) map[string]string {
	tickers := make(map[string]string)
	if s.db == nil {
		return tickers
	}
	mappings, err := model.GetMappingsByISINs(s.db, isins)
	if err != nil {
		logger.L.Warn("Could not read ticker cache", "error", err)
		return tickers
	}
	for isin, m := range mappings {
		tickers[isin] = m.TickerSymbol
	}
	return tickers
}

func (s *priceServiceImpl) storeTicker(isin, ticker string) {
	if s.db == nil {
		return
	}
	if err := model.UpsertMapping(s.db, model.ISINTickerMap{ISIN: isin, TickerSymbol: ticker}); err != nil {
		logger.L.Warn("Could not store ticker mapping", "isin", isin, "error", err)
	}
}
