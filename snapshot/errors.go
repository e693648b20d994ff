package snapshot

import (
	"errors"
	"fmt"
)

// ErrNoData means the ticker has too little history for a snapshot.
// It is permanent for the current session and never retried.
var ErrNoData = errors.New("insufficient price history")

// TransientFetchError is a retryable failure while loading market data
type TransientFetchError struct {
	Ticker string
	Err    error
}

// Error implements the error interface
func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch error for %s: %v", e.Ticker, e.Err)
}

// Unwrap returns the underlying error
func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err carries a TransientFetchError
func IsTransient(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}
