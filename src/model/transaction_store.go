package model

import (
	"database/sql"
	"fmt"

	"github.com/username/taxfolio/portfolio/src/models"
)

const transactionColumnsSQL = `id, date, source, product_name, isin, quantity, price, transaction_type, transaction_subtype, buy_sell, amount, amount_eur, commission, currency, exchange_rate, cash_balance, balance_currency, order_id, hash_id`

// InsertTransactions stores txs for userID in one database transaction.
// Rows whose hash already exists for the user are skipped. It returns the
// number of rows actually inserted.
func InsertTransactions(db *sql.DB, userID int64, importID string, txs []models.Transaction) (int, error) {
	dbTx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO transactions (user_id, import_id, date, source, product_name, isin, quantity, price, transaction_type, transaction_subtype, buy_sell, amount, amount_eur, commission, currency, exchange_rate, cash_balance, balance_currency, order_id, hash_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, hash_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, tx := range txs {
		res, err := stmt.Exec(userID, importID, tx.Date, tx.Source, tx.ProductName, tx.ISIN, tx.Quantity, tx.Price, tx.TransactionType, tx.TransactionSubType, tx.BuySell, tx.Amount, tx.AmountEUR, tx.Commission, tx.Currency, tx.ExchangeRate, tx.CashBalance, tx.BalanceCurrency, tx.OrderID, tx.HashID)
		if err != nil {
			return 0, fmt.Errorf("error inserting transaction (OrderID: %s): %w", tx.OrderID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing transactions: %w", err)
	}
	return inserted, nil
}

// GetTransactionsByUserID returns the user's transactions ordered by date.
func GetTransactionsByUserID(db *sql.DB, userID int64) ([]models.Transaction, error) {
	rows, err := db.Query(`SELECT `+transactionColumnsSQL+` FROM transactions WHERE user_id = ? ORDER BY date ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions for userID %d: %w", userID, err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var tx models.Transaction
		var source, productName, isin, txType, subType, buySell, currency, balanceCurrency, orderID sql.NullString
		var quantity, price, amount, amountEUR, commission, rate, cashBalance sql.NullFloat64
		if err := rows.Scan(&tx.ID, &tx.Date, &source, &productName, &isin, &quantity, &price, &txType, &subType, &buySell, &amount, &amountEUR, &commission, &currency, &rate, &cashBalance, &balanceCurrency, &orderID, &tx.HashID); err != nil {
			return nil, fmt.Errorf("error scanning transaction row for userID %d: %w", userID, err)
		}
		tx.Source = source.String
		tx.ProductName = productName.String
		tx.ISIN = isin.String
		tx.TransactionType = txType.String
		tx.TransactionSubType = subType.String
		tx.BuySell = buySell.String
		tx.Currency = currency.String
		tx.BalanceCurrency = balanceCurrency.String
		tx.OrderID = orderID.String
		tx.Quantity = quantity.Float64
		tx.Price = price.Float64
		tx.Amount = amount.Float64
		tx.AmountEUR = amountEUR.Float64
		tx.Commission = commission.Float64
		tx.ExchangeRate = rate.Float64
		tx.CashBalance = cashBalance.Float64
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over transaction rows for userID %d: %w", userID, err)
	}
	return transactions, nil
}

// DeleteTransactionsByUserID removes every transaction of the user.
func DeleteTransactionsByUserID(db *sql.DB, userID int64) (int64, error) {
	res, err := db.Exec(`DELETE FROM transactions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("error deleting transactions for userID %d: %w", userID, err)
	}
	return res.RowsAffected()
}
