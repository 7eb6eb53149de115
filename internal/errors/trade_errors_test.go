package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorizeError(t *testing.T) {
	cases := []struct {
		message   string
		category  ErrorCategory
		retryable bool
	}{
		{"context deadline exceeded", ErrorCategoryTimeout, true},
		{"request timeout after 5s", ErrorCategoryTimeout, true},
		{"dial tcp: connection refused", ErrorCategoryNetwork, true},
		{"invalid api key provided", ErrorCategoryCredentials, false},
		{"rate limit exceeded, slow down", ErrorCategoryRateLimit, true},
		{"insufficient balance for order", ErrorCategoryOrder, false},
		{"invalid quantity 0", ErrorCategoryValidation, false},
		{"something unexpected happened", ErrorCategoryTemporary, true},
	}

	for _, c := range cases {
		tradeErr := CategorizeError(errors.New(c.message), "bybit", "place_order")
		require.NotNil(t, tradeErr, c.message)
		assert.Equal(t, c.category, tradeErr.Category, c.message)
		assert.Equal(t, c.retryable, tradeErr.Retryable, c.message)
	}
}

func TestCategorizeErrorPassesThroughTradeError(t *testing.T) {
	original := NewValidationError("session", "validate", "bad input")
	assert.Same(t, original, CategorizeError(original, "other", "other"))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.False(t, IsRetryable(NewValidationError("session", "validate", "bad input")))
	assert.True(t, IsRetryable(NewNetworkError("bybit", "order_status", errors.New("boom"))))
}

func TestWrapErrorUnwraps(t *testing.T) {
	underlying := errors.New("boom")
	wrapped := WrapError(underlying, ErrorCategoryNetwork, "bybit", "market_tickers")

	assert.ErrorIs(t, wrapped, underlying)
	assert.Contains(t, wrapped.Error(), "NETWORK")
	assert.Contains(t, wrapped.Error(), "bybit")

	assert.Nil(t, WrapError(nil, ErrorCategoryNetwork, "bybit", "market_tickers"))
}

func TestConstructorCategories(t *testing.T) {
	boom := errors.New("boom")

	assert.Equal(t, ErrorCategoryOrder, NewOrderError("bybit", "cancel_order", boom).Category)
	assert.Equal(t, ErrorCategoryPosition, NewPositionError("bybit", "position_query", boom).Category)
	assert.Equal(t, ErrorCategoryNetwork, NewNetworkError("bybit", "order_status", boom).Category)

	v := NewValidationError("session", "validate", "bad input")
	assert.Equal(t, ErrorCategoryValidation, v.Category)
	assert.False(t, v.IsRetryable())
}
