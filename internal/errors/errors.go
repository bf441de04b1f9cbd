// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrAlreadyOpen        = errors.New("trade already open")
	ErrNotOpen            = errors.New("trade not open")
	ErrQuoteUnavailable   = errors.New("quote unavailable")
	ErrOrderRejected      = errors.New("order rejected")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionExpired     = errors.New("session expired")
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrNoCandidates       = errors.New("no candidates available")
	ErrEmptyWatchlist     = errors.New("watchlist is empty")
	ErrRateLimited        = errors.New("rate limited")
	ErrConfigInvalid      = errors.New("invalid configuration")
)

// BrokerError represents an error from the broker API.
type BrokerError struct {
	Code    string
	Message string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("broker error [%s]: %s", e.Code, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(code, message string, err error) *BrokerError {
	return &BrokerError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// OrderError represents a failed order placement. It always unwraps to
// ErrOrderRejected so callers can treat every gateway failure uniformly.
type OrderError struct {
	Symbol string
	Side   string
	Reason string
	Err    error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error %s %s: %s: %v", e.Side, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error %s %s: %s", e.Side, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrOrderRejected, e.Err}
	}
	return []error{ErrOrderRejected}
}

// NewOrderError creates a new OrderError.
func NewOrderError(symbol, side, reason string, err error) *OrderError {
	return &OrderError{
		Symbol: symbol,
		Side:   side,
		Reason: reason,
		Err:    err,
	}
}

// InvariantError reports a broken ledger contract. It is never expected in
// correct operation and terminates the monitor loop.
type InvariantError struct {
	Key       string
	Operation string
	Err       error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation [%s] %s: %v", e.Key, e.Operation, e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// NewInvariantError creates a new InvariantError.
func NewInvariantError(key, operation string, err error) *InvariantError {
	return &InvariantError{
		Key:       key,
		Operation: operation,
		Err:       err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a market data error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsInvariant reports whether err carries an InvariantError.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
