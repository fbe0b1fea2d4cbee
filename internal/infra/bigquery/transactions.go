package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/openbank-sync/internal/domain"
	"github.com/shopspring/decimal"
)

// numericScale is the number of fractional digits a NUMERIC column keeps.
const numericScale = 9

// TransactionRow is one row of the transactions table as read back by queries.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	UserID    string `bigquery:"user_id"`    // REQUIRED
	AccountID string `bigquery:"account_id"` // REQUIRED

	TransactionDate civil.Date             `bigquery:"transaction_date"` // REQUIRED, partition column
	TransactionTS   time.Time              `bigquery:"transaction_ts"`   // REQUIRED
	BookingTS       bigquery.NullTimestamp `bigquery:"booking_ts"`       // NULLABLE

	Description string   `bigquery:"description"` // REQUIRED STRING
	Amount      *big.Rat `bigquery:"amount"`      // REQUIRED NUMERIC
	Currency    string   `bigquery:"currency"`    // REQUIRED STRING
	Status      string   `bigquery:"status"`      // REQUIRED STRING

	Reference bigquery.NullString `bigquery:"reference"` // NULLABLE
	Category  bigquery.NullString `bigquery:"category"`  // NULLABLE

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

// transactionParam is one element of the ARRAY<STRUCT> query parameter fed to MERGE.
// Optional values travel as empty strings and are turned into NULL in SQL.
type transactionParam struct {
	TransactionID string    `bigquery:"transaction_id"`
	UserID        string    `bigquery:"user_id"`
	AccountID     string    `bigquery:"account_id"`
	TransactionTS time.Time `bigquery:"transaction_ts"`
	BookingTS     string    `bigquery:"booking_ts"`
	Description   string    `bigquery:"description"`
	Amount        *big.Rat  `bigquery:"amount"`
	Currency      string    `bigquery:"currency"`
	Status        string    `bigquery:"status"`
	Reference     string    `bigquery:"reference"`
	Category      string    `bigquery:"category"`
}

// toNumeric converts an amount to a NUMERIC value, rejecting amounts that
// NUMERIC would round.
func toNumeric(d decimal.Decimal) (*big.Rat, error) {
	if !d.Equal(d.Truncate(numericScale)) {
		return nil, fmt.Errorf("amount %s has more than %d fractional digits", d.String(), numericScale)
	}
	return d.Rat(), nil
}

func fromNumeric(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(r.FloatString(numericScale))
}

func toParam(tx domain.Transaction) (transactionParam, error) {
	amount, err := toNumeric(tx.Amount)
	if err != nil {
		return transactionParam{}, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}

	var booking string
	if tx.BookingDateTime != nil {
		booking = tx.BookingDateTime.UTC().Format(time.RFC3339Nano)
	}

	return transactionParam{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		AccountID:     tx.AccountID,
		TransactionTS: tx.Date.UTC(),
		BookingTS:     booking,
		Description:   tx.Description,
		Amount:        amount,
		Currency:      tx.Currency,
		Status:        tx.Status,
		Reference:     tx.Reference,
		Category:      tx.Category,
	}, nil
}

// ToDomain converts a stored row back to a transaction.
func (r *TransactionRow) ToDomain() (domain.Transaction, error) {
	amount, err := fromNumeric(r.Amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: amount: %w", r.TransactionID, err)
	}

	tx := domain.Transaction{
		ID:          r.TransactionID,
		AccountID:   r.AccountID,
		UserID:      r.UserID,
		Date:        r.TransactionTS.UTC(),
		Description: r.Description,
		Amount:      amount,
		Currency:    r.Currency,
		Status:      r.Status,
	}
	if r.BookingTS.Valid {
		booked := r.BookingTS.Timestamp.UTC()
		tx.BookingDateTime = &booked
	}
	if r.Reference.Valid {
		tx.Reference = r.Reference.StringVal
	}
	if r.Category.Valid {
		tx.Category = r.Category.StringVal
	}
	return tx, nil
}
