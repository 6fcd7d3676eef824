package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/username/taxfolio/portfolio/src/logger"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var DB *sql.DB

const schema = `
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		import_id TEXT,
		date TEXT NOT NULL,
		source TEXT,
		product_name TEXT,
		isin TEXT,
		quantity REAL,
		price REAL,
		transaction_type TEXT,
		transaction_subtype TEXT,
		buy_sell TEXT,
		amount REAL,
		amount_eur REAL,
		commission REAL,
		currency TEXT,
		exchange_rate REAL,
		cash_balance REAL,
		balance_currency TEXT,
		order_id TEXT,
		hash_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, hash_id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, date);

	CREATE TABLE IF NOT EXISTS portfolio_snapshots (
		user_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		portfolio_value REAL NOT NULL,
		cumulative_cash_flow REAL NOT NULL,
		spy_price REAL,
		benchmark_value REAL,
		PRIMARY KEY(user_id, date)
	);

	CREATE TABLE IF NOT EXISTS isin_ticker_map (
		isin TEXT PRIMARY KEY,
		ticker_symbol TEXT NOT NULL,
		exchange TEXT,
		currency TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_checked_at TIMESTAMP
	);
`

// Columns added after the first release. Older databases get them on start.
var transactionColumns = map[string]string{
	"import_id":        "TEXT",
	"cash_balance":     "REAL",
	"balance_currency": "TEXT",
}

// Open opens a sqlite database at path and ensures the schema exists.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	logger.L.Info("Checking database migrations", "databasePath", path)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := addMissingColumns(db, "transactions", transactionColumns); err != nil {
		db.Close()
		return nil, err
	}
	logger.L.Info("Database tables ensured/created.")
	return db, nil
}

// InitDB opens the application database into DB.
func InitDB(path string) error {
	db, err := Open(path)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

func addMissingColumns(db *sql.DB, table string, columns map[string]string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("error querying table schema for %s: %w", table, err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("error scanning column info for %s: %w", table, err)
		}
		existing[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating over column info for %s: %w", table, err)
	}
	rows.Close()

	for name, def := range columns {
		if existing[name] {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, name, def)); err != nil {
			return fmt.Errorf("error adding %s column to %s: %w", name, table, err)
		}
		logger.L.Info("Added column", "table", table, "column", name)
	}
	return nil
}
