package model

import (
	"database/sql"
	"fmt"

	"github.com/username/taxfolio/portfolio/src/models"
)

// UpsertSnapshots stores the snapshots of userID. A snapshot for a date that
// already exists replaces the stored one.
func UpsertSnapshots(db *sql.DB, userID int64, snapshots []models.PortfolioSnapshot) (int, error) {
	dbTx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO portfolio_snapshots (user_id, date, portfolio_value, cumulative_cash_flow, spy_price, benchmark_value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			portfolio_value = excluded.portfolio_value,
			cumulative_cash_flow = excluded.cumulative_cash_flow,
			spy_price = excluded.spy_price,
			benchmark_value = excluded.benchmark_value`)
	if err != nil {
		return 0, fmt.Errorf("error preparing snapshot statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range snapshots {
		if _, err := stmt.Exec(userID, s.Date, s.PortfolioValue, s.CumulativeCashFlow, nullableFloat(s.SPYPrice), nullableFloat(s.BenchmarkValue)); err != nil {
			return 0, fmt.Errorf("error storing snapshot for %s: %w", s.Date, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing snapshots: %w", err)
	}
	return len(snapshots), nil
}

// GetSnapshotsByUserID returns the user's snapshot series ordered by date.
func GetSnapshotsByUserID(db *sql.DB, userID int64) ([]models.PortfolioSnapshot, error) {
	rows, err := db.Query(`SELECT date, portfolio_value, cumulative_cash_flow, spy_price, benchmark_value FROM portfolio_snapshots WHERE user_id = ? ORDER BY date ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying snapshots for userID %d: %w", userID, err)
	}
	defer rows.Close()

	snapshots := []models.PortfolioSnapshot{}
	for rows.Next() {
		var s models.PortfolioSnapshot
		var spy, benchmark sql.NullFloat64
		if err := rows.Scan(&s.Date, &s.PortfolioValue, &s.CumulativeCashFlow, &spy, &benchmark); err != nil {
			return nil, fmt.Errorf("error scanning snapshot row for userID %d: %w", userID, err)
		}
		if spy.Valid {
			s.SPYPrice = &spy.Float64
		}
		if benchmark.Valid {
			s.BenchmarkValue = &benchmark.Float64
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over snapshot rows for userID %d: %w", userID, err)
	}
	return snapshots, nil
}

// DeleteSnapshotsByUserID removes the user's snapshot series.
func DeleteSnapshotsByUserID(db *sql.DB, userID int64) (int64, error) {
	res, err := db.Exec(`DELETE FROM portfolio_snapshots WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("error deleting snapshots for userID %d: %w", userID, err)
	}
	return res.RowsAffected()
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
