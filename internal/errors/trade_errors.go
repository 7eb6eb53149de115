package errors

import (
	"fmt"
	"strings"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Critical errors that should stop the session
	ErrorCategoryFatal         ErrorCategory = "FATAL"
	ErrorCategoryBroker        ErrorCategory = "BROKER"
	ErrorCategoryCredentials   ErrorCategory = "CREDENTIALS"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"

	// Non-critical errors that can be retried or recovered from
	ErrorCategoryNetwork    ErrorCategory = "NETWORK"
	ErrorCategoryTimeout    ErrorCategory = "TIMEOUT"
	ErrorCategoryValidation ErrorCategory = "VALIDATION"
	ErrorCategoryOrder      ErrorCategory = "ORDER"
	ErrorCategoryPosition   ErrorCategory = "POSITION"

	// Temporary errors
	ErrorCategoryTemporary ErrorCategory = "TEMPORARY"
	ErrorCategoryRateLimit ErrorCategory = "RATE_LIMIT"
)

// TradeError represents a categorized error with context
type TradeError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *TradeError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s in %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s in %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *TradeError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *TradeError) IsRetryable() bool {
	return e.Retryable
}

// NewTradeError creates a new categorized trade error
func NewTradeError(category ErrorCategory, component, operation, message string) *TradeError {
	return &TradeError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// WrapError wraps an existing error with trade error context
func WrapError(err error, category ErrorCategory, component, operation string) *TradeError {
	if err == nil {
		return nil
	}

	return &TradeError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

// WithRetryable sets the retryable flag
func (e *TradeError) WithRetryable(retryable bool) *TradeError {
	e.Retryable = retryable
	return e
}

// isRetryableCategory determines if an error category is generally retryable
func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryTemporary, ErrorCategoryRateLimit:
		return true
	case ErrorCategoryFatal, ErrorCategoryCredentials, ErrorCategoryConfiguration:
		return false
	default:
		return true // Default to retryable for safety
	}
}

// IsRetryable reports whether err should be retried. Non-TradeError values
// are categorized first.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if tradeErr, ok := err.(*TradeError); ok {
		return tradeErr.Retryable
	}
	return CategorizeError(err, "unknown", "unknown").Retryable
}

// CategorizeError attempts to categorize a generic error
func CategorizeError(err error, component, operation string) *TradeError {
	if err == nil {
		return nil
	}

	// Check if it's already a TradeError
	if tradeErr, ok := err.(*TradeError); ok {
		return tradeErr
	}

	errMsg := strings.ToLower(err.Error())

	// Network-related errors
	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "context deadline exceeded") {
		return WrapError(err, ErrorCategoryTimeout, component, operation)
	}

	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dns") || strings.Contains(errMsg, "dial") {
		return WrapError(err, ErrorCategoryNetwork, component, operation)
	}

	// Broker-related errors
	if strings.Contains(errMsg, "api key") || strings.Contains(errMsg, "api secret") ||
		strings.Contains(errMsg, "authentication") || strings.Contains(errMsg, "unauthorized") {
		return WrapError(err, ErrorCategoryCredentials, component, operation)
	}

	if strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "too many requests") {
		return WrapError(err, ErrorCategoryRateLimit, component, operation)
	}

	if strings.Contains(errMsg, "insufficient") || strings.Contains(errMsg, "balance") {
		return WrapError(err, ErrorCategoryOrder, component, operation).WithRetryable(false)
	}

	if strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "constraint") ||
		strings.Contains(errMsg, "minimum") || strings.Contains(errMsg, "maximum") {
		return WrapError(err, ErrorCategoryValidation, component, operation).WithRetryable(false)
	}

	// Default to temporary error for unknown cases
	return WrapError(err, ErrorCategoryTemporary, component, operation)
}

// NewNetworkError wraps a transport failure on a venue read.
func NewNetworkError(component, operation string, err error) *TradeError {
	return WrapError(err, ErrorCategoryNetwork, component, operation)
}

// NewValidationError reports rejected input. Never retried.
func NewValidationError(component, operation, message string) *TradeError {
	return NewTradeError(ErrorCategoryValidation, component, operation, message).WithRetryable(false)
}

// NewOrderError wraps a failure placing or cancelling an order.
func NewOrderError(component, operation string, err error) *TradeError {
	return WrapError(err, ErrorCategoryOrder, component, operation)
}

// NewPositionError wraps a failure reading position state.
func NewPositionError(component, operation string, err error) *TradeError {
	return WrapError(err, ErrorCategoryPosition, component, operation)
}
