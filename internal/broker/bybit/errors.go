package bybit

import "fmt"

// BybitError represents an error returned by the Bybit API
type BybitError struct {
	Code    int
	Message string
}

func (e *BybitError) Error() string {
	return fmt.Sprintf("bybit API error %d: %s", e.Code, e.Message)
}

// Common Bybit v5 error codes
const (
	ErrCodeInvalidAPIKey       = 10003
	ErrCodeInvalidSignature    = 10004
	ErrCodeInvalidTimestamp    = 10005
	ErrCodeRateLimitExceeded   = 10006
	ErrCodeOrderNotFound       = 110001
	ErrCodeInvalidOrderType    = 110004
	ErrCodeInsufficientBalance = 110007
	ErrCodeSymbolNotFound      = 110009
	ErrCodeInvalidQuantity     = 110020
	ErrCodeInvalidPrice        = 110021
	ErrCodeMarketClosed        = 110043
)

// NewBybitError creates a new Bybit error
func NewBybitError(code int, message string) *BybitError {
	return &BybitError{Code: code, Message: message}
}

// IsOrderNotFoundError reports whether err means the order no longer exists
// at the venue (already filled, cancelled, or expired).
func IsOrderNotFoundError(err error) bool {
	if bybitErr, ok := err.(*BybitError); ok {
		return bybitErr.Code == ErrCodeOrderNotFound
	}
	return false
}

// IsRateLimitError reports whether err is a rate limit rejection.
func IsRateLimitError(err error) bool {
	if bybitErr, ok := err.(*BybitError); ok {
		return bybitErr.Code == ErrCodeRateLimitExceeded
	}
	return false
}

// IsAuthenticationError reports whether err is a credentials problem.
func IsAuthenticationError(err error) bool {
	if bybitErr, ok := err.(*BybitError); ok {
		switch bybitErr.Code {
		case ErrCodeInvalidAPIKey, ErrCodeInvalidSignature, ErrCodeInvalidTimestamp:
			return true
		}
	}
	return false
}
