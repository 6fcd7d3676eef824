package model

import (
	"database/sql"
	"strings"
	"time"
)

// ISINTickerMap caches the exchange ticker an ISIN resolved to, so quote
// lookups skip the search request.
type ISINTickerMap struct {
	ISIN         string
	TickerSymbol string
	Exchange     sql.NullString
	Currency     string
}

// GetMappingsByISINs retrieves multiple ISIN-to-ticker mappings in a single
// query, keyed by ISIN.
func GetMappingsByISINs(db *sql.DB, isins []string) (map[string]ISINTickerMap, error) {
	mappings := make(map[string]ISINTickerMap)
	if len(isins) == 0 {
		return mappings, nil
	}

	query := `SELECT isin, ticker_symbol, exchange, currency FROM isin_ticker_map WHERE isin IN (?` + strings.Repeat(",?", len(isins)-1) + `)`
	args := make([]interface{}, len(isins))
	for i, isin := range isins {
		args[i] = isin
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var mapping ISINTickerMap
		var currency sql.NullString
		if err := rows.Scan(&mapping.ISIN, &mapping.TickerSymbol, &mapping.Exchange, &currency); err != nil {
			return nil, err
		}
		mapping.Currency = currency.String
		mappings[mapping.ISIN] = mapping
	}
	return mappings, rows.Err()
}

// UpsertMapping stores or refreshes one ISIN-to-ticker mapping.
func UpsertMapping(db *sql.DB, mapping ISINTickerMap) error {
	query := `
		INSERT INTO isin_ticker_map (isin, ticker_symbol, exchange, currency, last_checked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(isin) DO UPDATE SET
			ticker_symbol = excluded.ticker_symbol,
			exchange = excluded.exchange,
			currency = excluded.currency,
			last_checked_at = excluded.last_checked_at`

	_, err := db.Exec(query, mapping.ISIN, mapping.TickerSymbol, mapping.Exchange, mapping.Currency, time.Now().UTC().Format(time.RFC3339))
	return err
}
