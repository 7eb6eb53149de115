package safety

import (
	"fmt"
	"math"
	"strings"
)

// ValidationResult represents the result of a validation check
type ValidationResult struct {
	Valid   bool
	Message string
	Code    string
}

// Validator provides defensive validation for order parameters before
// they reach a venue.
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePrice validates a price value for trading
func (v *Validator) ValidatePrice(price float64, symbol string) ValidationResult {
	if math.IsNaN(price) {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid price for %s: price is NaN", symbol),
			Code:    "INVALID_PRICE_NAN",
		}
	}

	if math.IsInf(price, 0) {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid price for %s: price is infinite", symbol),
			Code:    "INVALID_PRICE_INF",
		}
	}

	if price <= 0 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid price %.8f for %s: price must be positive", price, symbol),
			Code:    "INVALID_PRICE_NEGATIVE",
		}
	}

	// Catch obvious feed corruption before it becomes an order
	if price > 1e10 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("suspicious price %.8f for %s: exceeds reasonable bounds", price, symbol),
			Code:    "PRICE_OUT_OF_BOUNDS",
		}
	}

	return ValidationResult{Valid: true}
}

// ValidateShareCount validates an order quantity
func (v *Validator) ValidateShareCount(quantity int64, symbol string) ValidationResult {
	if quantity <= 0 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid quantity %d for %s: quantity must be positive", quantity, symbol),
			Code:    "INVALID_QUANTITY_NEGATIVE",
		}
	}

	if quantity > 1e12 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("suspicious quantity %d for %s: exceeds reasonable bounds", quantity, symbol),
			Code:    "QUANTITY_OUT_OF_BOUNDS",
		}
	}

	return ValidationResult{Valid: true}
}

// ValidateSymbol validates a trading symbol format
func (v *Validator) ValidateSymbol(symbol string) ValidationResult {
	if symbol == "" {
		return ValidationResult{
			Valid:   false,
			Message: "symbol cannot be empty",
			Code:    "SYMBOL_EMPTY",
		}
	}

	if len(symbol) > 20 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("symbol %s too long: maximum 20 characters", symbol),
			Code:    "SYMBOL_TOO_LONG",
		}
	}

	if symbol != strings.ToUpper(symbol) || strings.ContainsAny(symbol, " \t\n") {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("symbol %q must be upper case with no whitespace", symbol),
			Code:    "SYMBOL_MALFORMED",
		}
	}

	return ValidationResult{Valid: true}
}

// ValidateStopDistance checks a stop price against the reference price it
// protects. A stop at or beyond 50% away is treated as a data error.
func (v *Validator) ValidateStopDistance(referencePrice, stopPrice float64, symbol string) ValidationResult {
	if result := v.ValidatePrice(stopPrice, symbol); !result.Valid {
		return result
	}
	if result := v.ValidatePrice(referencePrice, symbol); !result.Valid {
		return result
	}

	distance := math.Abs(referencePrice-stopPrice) / referencePrice
	if distance > 0.5 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("suspicious stop %.4f for %s: %.0f%% away from price %.4f", stopPrice, symbol, distance*100, referencePrice),
			Code:    "STOP_TOO_FAR",
		}
	}

	return ValidationResult{Valid: true}
}

// ValidateOrderID validates an order identifier returned by a venue
func (v *Validator) ValidateOrderID(orderID string) ValidationResult {
	if orderID == "" {
		return ValidationResult{
			Valid:   false,
			Message: "order ID cannot be empty",
			Code:    "ORDER_ID_EMPTY",
		}
	}

	if len(orderID) > 64 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("order ID too long: %d characters", len(orderID)),
			Code:    "ORDER_ID_TOO_LONG",
		}
	}

	return ValidationResult{Valid: true}
}

// Err converts a failed result into an error, nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%s: %s", r.Code, r.Message)
}
