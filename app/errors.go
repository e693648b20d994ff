package app

import (
	"errors"
	"fmt"
	"time"
)

// ErrTickInProgress is returned by OutcomeTracker.Tick when a previous tick is still running
var ErrTickInProgress = errors.New("outcome tracker tick already in progress")

// ErrAlreadyClosed is returned when closing a recommendation that is no longer ACTIVE
var ErrAlreadyClosed = errors.New("recommendation already closed")

// StaleSessionError reports an evaluation requested while the market is shut
type StaleSessionError struct {
	At       time.Time
	NextOpen time.Time
}

// Error implements the error interface
func (e *StaleSessionError) Error() string {
	return fmt.Sprintf("market closed at %s, next session opens %s",
		e.At.Format(time.RFC3339), e.NextOpen.Format(time.RFC3339))
}

// IsStaleSession checks if err is a StaleSessionError
func IsStaleSession(err error) bool {
	var target *StaleSessionError
	return errors.As(err, &target)
}

// ErrEmptyTicker is returned when a ticker argument is blank
var ErrEmptyTicker = errors.New("ticker is required")
