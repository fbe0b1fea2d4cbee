package openbanking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/openbank-sync/internal/domain"
	"github.com/shopspring/decimal"
)

// Institution is a bank the aggregator can connect to.
type Institution struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"fullName"`
}

// InstitutionsResponse is the body of GET /institutions.
type InstitutionsResponse struct {
	Items []Institution `json:"data"`
}

// Account is an account as reported by the aggregator.
type Account struct {
	ID            string          `json:"id"`
	AccountType   string          `json:"accountType"`
	AccountNumber string          `json:"accountNumber"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	InstitutionID string          `json:"institutionId"`
}

// ToDomain attaches the owning user.
func (a Account) ToDomain(userID string) domain.Account {
	return domain.Account{
		ID:            a.ID,
		UserID:        userID,
		AccountType:   a.AccountType,
		AccountNumber: a.AccountNumber,
		Balance:       a.Balance,
		Currency:      a.Currency,
		InstitutionID: a.InstitutionID,
	}
}

// AccountsResponse is the body of GET /accounts.
// Items is nil when the payload had no data field.
type AccountsResponse struct {
	Items []Account `json:"data"`
}

// Transaction is a transaction as reported by the aggregator.
// Amount decodes from either a JSON number or string without
// passing through float64.
type Transaction struct {
	ID              string          `json:"id"`
	Date            time.Time       `json:"date"`
	BookingDateTime *time.Time      `json:"bookingDateTime,omitempty"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	Reference       string          `json:"reference,omitempty"`
	Category        string          `json:"category,omitempty"`
}

// UnmarshalJSON accepts date and bookingDateTime as RFC 3339 timestamps,
// zone-less timestamps or plain calendar dates. Zone-less values are UTC.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	var raw struct {
		plain
		Date            string `json:"date"`
		BookingDateTime string `json:"bookingDateTime,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	date, err := ParseDate(raw.Date)
	if err != nil {
		return fmt.Errorf("transaction %s: date: %w", raw.ID, err)
	}
	booking, err := ParseDate(raw.BookingDateTime)
	if err != nil {
		return fmt.Errorf("transaction %s: bookingDateTime: %w", raw.ID, err)
	}

	*t = Transaction(raw.plain)
	t.Date = date
	t.BookingDateTime = nil
	if !booking.IsZero() {
		t.BookingDateTime = &booking
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseDate parses an aggregator date. An empty value is the zero time.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", value)
}

// ToDomain attaches the ownership of the sync job that fetched the transaction.
// Any account id in the aggregator payload is ignored.
func (t Transaction) ToDomain(accountID, userID string) domain.Transaction {
	return domain.Transaction{
		ID:              t.ID,
		AccountID:       accountID,
		UserID:          userID,
		Date:            t.Date,
		BookingDateTime: t.BookingDateTime,
		Description:     t.Description,
		Amount:          t.Amount,
		Currency:        t.Currency,
		Status:          t.Status,
		Reference:       t.Reference,
		Category:        t.Category,
	}
}

// TransactionsResponse is the body of GET /accounts/{id}/transactions.
// Items is nil when the payload had no data field, and empty when the
// account has no transactions.
type TransactionsResponse struct {
	Items []Transaction `json:"data"`
}
