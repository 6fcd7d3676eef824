package model

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/taxfolio/portfolio/src/database"
	"github.com/username/taxfolio/portfolio/src/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTransactions_InsertIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	txs := []models.Transaction{
		{Date: "2024-01-02", ISIN: "X", TransactionType: "STOCK", BuySell: "BUY", Quantity: 1.5, Price: 10, AmountEUR: -15, HashID: "h1"},
		{Date: "2024-01-01", TransactionType: "CASH", TransactionSubType: "DEPOSIT", AmountEUR: 100, HashID: "h2"},
	}

	n, err := InsertTransactions(db, 1, "batch-1", txs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = InsertTransactions(db, 1, "batch-2", txs)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "duplicates are skipped")

	n, err = InsertTransactions(db, 2, "batch-3", txs[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n, "hashes are unique per user")

	stored, err := GetTransactionsByUserID(db, 1)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "2024-01-01", stored[0].Date)
	assert.Equal(t, "DEPOSIT", stored[0].TransactionSubType)
	assert.Equal(t, 1.5, stored[1].Quantity)
	assert.Equal(t, "X", stored[1].ISIN)
	assert.NotZero(t, stored[1].ID)

	deleted, err := DeleteTransactionsByUserID(db, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	stored, err = GetTransactionsByUserID(db, 1)
	require.NoError(t, err)
	assert.Empty(t, stored)

	other, err := GetTransactionsByUserID(db, 2)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestSnapshots_Upsert(t *testing.T) {
	db := openTestDB(t)
	spy := 470.5

	_, err := UpsertSnapshots(db, 1, []models.PortfolioSnapshot{
		{Date: "2024-01-02", PortfolioValue: 110, CumulativeCashFlow: 100, SPYPrice: &spy},
		{Date: "2024-01-01", PortfolioValue: 100, CumulativeCashFlow: 100},
	})
	require.NoError(t, err)

	_, err = UpsertSnapshots(db, 1, []models.PortfolioSnapshot{
		{Date: "2024-01-02", PortfolioValue: 120, CumulativeCashFlow: 100},
	})
	require.NoError(t, err)

	series, err := GetSnapshotsByUserID(db, 1)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "2024-01-01", series[0].Date)
	assert.Nil(t, series[0].SPYPrice)
	assert.Equal(t, 120.0, series[1].PortfolioValue)
	assert.Nil(t, series[1].SPYPrice, "an upsert replaces the whole row")

	deleted, err := DeleteSnapshotsByUserID(db, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestTickerMappings(t *testing.T) {
	db := openTestDB(t)

	mappings, err := GetMappingsByISINs(db, nil)
	require.NoError(t, err)
	assert.Empty(t, mappings)

	require.NoError(t, UpsertMapping(db, ISINTickerMap{ISIN: "US0378331005", TickerSymbol: "AAPL", Currency: "USD"}))
	require.NoError(t, UpsertMapping(db, ISINTickerMap{ISIN: "US0378331005", TickerSymbol: "AAPL.MX", Currency: "MXN"}))

	mappings, err = GetMappingsByISINs(db, []string{"US0378331005", "IE00B4L5Y983"})
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "AAPL.MX", mappings["US0378331005"].TickerSymbol)
	assert.False(t, mappings["US0378331005"].Exchange.Valid)
}
