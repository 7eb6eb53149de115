package broker

import (
	"context"
	"time"

	"github.com/stefanopk/ladderbot/internal/safety"
)

// Guard limiter / breaker names, one per concern so a failing market data
// feed does not open the trading circuit.
const (
	guardTrading      = "trading"
	guardMarketData   = "market_data"
	guardPositionData = "position_data"
)

// Guarded wraps a Broker with rate limiting and circuit breaking. Order
// placement, market data, and position queries each get their own budget
// and breaker.
type Guarded struct {
	inner    Broker
	limiters *safety.RateLimiterManager
	breakers *safety.CircuitBreakerManager
}

// NewGuarded wraps inner with default budgets: 10 orders/s, 20 market data
// reads/s, 10 position reads/s, breaker opening after 5 consecutive
// failures for 30s.
func NewGuarded(inner Broker) *Guarded {
	return &Guarded{
		inner:    inner,
		limiters: safety.NewRateLimiterManager(),
		breakers: safety.NewCircuitBreakerManager(),
	}
}

func (g *Guarded) call(ctx context.Context, concern string, capacity, refill int, fn func() error) error {
	limiter := g.limiters.GetOrCreate(concern, capacity, refill)
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	breaker := g.breakers.GetOrCreate(concern, safety.CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
	})
	return breaker.Call(fn)
}

func (g *Guarded) PlaceMarketOrder(ctx context.Context, instrument string, side Side, qty int64) (OrderHandle, error) {
	var handle OrderHandle
	err := g.call(ctx, guardTrading, 10, 10, func() error {
		var err error
		handle, err = g.inner.PlaceMarketOrder(ctx, instrument, side, qty)
		return err
	})
	return handle, err
}

func (g *Guarded) PlaceStopOrder(ctx context.Context, instrument string, side Side, qty int64, stopPrice float64) (OrderHandle, error) {
	var handle OrderHandle
	err := g.call(ctx, guardTrading, 10, 10, func() error {
		var err error
		handle, err = g.inner.PlaceStopOrder(ctx, instrument, side, qty, stopPrice)
		return err
	})
	return handle, err
}

func (g *Guarded) CancelOrder(ctx context.Context, instrument string, handle OrderHandle) error {
	return g.call(ctx, guardTrading, 10, 10, func() error {
		return g.inner.CancelOrder(ctx, instrument, handle)
	})
}

func (g *Guarded) GetOrderStatus(ctx context.Context, instrument string, handle OrderHandle) (OrderStatus, error) {
	var status OrderStatus
	err := g.call(ctx, guardTrading, 10, 10, func() error {
		var err error
		status, err = g.inner.GetOrderStatus(ctx, instrument, handle)
		return err
	})
	return status, err
}

func (g *Guarded) GetPositionSize(ctx context.Context, instrument string) (int64, error) {
	var size int64
	err := g.call(ctx, guardPositionData, 10, 10, func() error {
		var err error
		size, err = g.inner.GetPositionSize(ctx, instrument)
		return err
	})
	return size, err
}

func (g *Guarded) GetLastPrice(ctx context.Context, instrument string) (float64, error) {
	var price float64
	err := g.call(ctx, guardMarketData, 20, 20, func() error {
		var err error
		price, err = g.inner.GetLastPrice(ctx, instrument)
		// A feed gap is a stall, not a venue failure; do not trip the breaker
		if err == ErrNoData {
			price = 0
			return nil
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	if price == 0 {
		return 0, ErrNoData
	}
	return price, nil
}

// Stats exposes limiter and breaker statistics for health reporting.
func (g *Guarded) Stats() ([]safety.RateLimiterStats, []safety.CircuitBreakerStats) {
	return g.limiters.GetStats(), g.breakers.GetStats()
}
