// Package broker defines the execution capability consumed by the trade
// manager. Implementations wrap a real venue (internal/broker/bybit) or a
// deterministic in-memory venue for paper trading and tests
// (internal/broker/sim). All implementations must be safe for concurrent use
// by multiple managers.
package broker

import (
	"context"
	"errors"
)

// ErrNoData is returned by GetLastPrice when no market data is available for
// the instrument (market closed, feed gap). Callers treat it as a stall, not
// a failure.
var ErrNoData = errors.New("no market data available")

// Side is the order side on the wire.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Direction is the direction of the position being managed.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

// ParseDirection parses "long"/"short" (case-insensitive first letter is
// enough for CLI convenience but config should use the full word).
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "long", "Long", "LONG":
		return Long, nil
	case "short", "Short", "SHORT":
		return Short, nil
	}
	return Long, errors.New("direction must be \"long\" or \"short\"")
}

// EntrySide is the side that opens the position.
func (d Direction) EntrySide() Side {
	if d == Short {
		return SideSell
	}
	return SideBuy
}

// ExitSide is the side that reduces the position.
func (d Direction) ExitSide() Side {
	if d == Short {
		return SideBuy
	}
	return SideSell
}

// Sign is +1 for long, -1 for short. Used for PnL and price-cross math.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// OrderHandle is an opaque venue-assigned order identifier.
type OrderHandle string

// OrderState is the lifecycle state of an order.
type OrderState string

const (
	OrderPending   OrderState = "Pending"
	OrderFilled    OrderState = "Filled"
	OrderCancelled OrderState = "Cancelled"
	OrderRejected  OrderState = "Rejected"
)

// OrderStatus is a point-in-time snapshot of an order.
type OrderStatus struct {
	Handle       OrderHandle
	State        OrderState
	AvgFillPrice float64
	FilledQty    int64
}

// Broker is the minimal execution surface the manager depends on. The venue
// holds ground truth: GetPositionSize is authoritative and the manager
// reconciles against it.
type Broker interface {
	// PlaceMarketOrder submits a market order for qty shares.
	PlaceMarketOrder(ctx context.Context, instrument string, side Side, qty int64) (OrderHandle, error)

	// PlaceStopOrder submits a stop-market order triggered at stopPrice.
	PlaceStopOrder(ctx context.Context, instrument string, side Side, qty int64, stopPrice float64) (OrderHandle, error)

	// CancelOrder cancels an open order. Cancelling an order that is already
	// filled or cancelled is not an error.
	CancelOrder(ctx context.Context, instrument string, handle OrderHandle) error

	// GetOrderStatus reports the current state of an order.
	GetOrderStatus(ctx context.Context, instrument string, handle OrderHandle) (OrderStatus, error)

	// GetPositionSize returns the signed position in shares: positive long,
	// negative short, zero flat.
	GetPositionSize(ctx context.Context, instrument string) (int64, error)

	// GetLastPrice returns the last traded price, or ErrNoData.
	GetLastPrice(ctx context.Context, instrument string) (float64, error)
}
