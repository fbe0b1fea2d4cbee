package openbanking

import (
	"errors"
	"fmt"
)

var (
	// ErrAPI matches every *APIError.
	ErrAPI = errors.New("open banking API error")
	// ErrNoTransactionData is returned when a transactions payload has no data field.
	ErrNoTransactionData = errors.New("No transaction data received")
	// ErrNoAccountData is returned when an accounts payload has no data field.
	ErrNoAccountData = errors.New("No accounts data received")
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 2048

// APIError is a non-2xx response from the aggregator.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d - %s", ErrAPI.Error(), e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrAPI) match.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
