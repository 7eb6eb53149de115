// Package sim provides a deterministic in-memory broker for paper trading
// and tests. Market orders fill instantly at the current price; stop orders
// rest and fill when the price crosses them. Test knobs allow simulating
// failed stops, vanished positions, and feed gaps.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/stefanopk/ladderbot/internal/broker"
)

type order struct {
	handle    broker.OrderHandle
	side      broker.Side
	qty       int64
	stopPrice float64 // 0 for market orders
	state     broker.OrderState
	avgPrice  float64
}

// Broker is an in-memory venue for one instrument.
type Broker struct {
	mu       sync.Mutex
	price    float64
	hasData  bool
	position int64
	orders   map[broker.OrderHandle]*order
	seq      int

	stopsExecute  bool
	nextPlaceErr  error
	placementMade int
}

// New creates a sim broker with an initial last price.
func New(startPrice float64) *Broker {
	return &Broker{
		price:        startPrice,
		hasData:      true,
		orders:       make(map[broker.OrderHandle]*order),
		stopsExecute: true,
	}
}

// SetPrice moves the market, filling any resting stop orders the new price
// crosses (unless stop execution is disabled).
func (b *Broker) SetPrice(p float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.price = p
	b.hasData = true
	b.triggerStops()
}

// SetNoData makes GetLastPrice return ErrNoData until the next SetPrice.
func (b *Broker) SetNoData() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hasData = false
}

// SetPosition overrides the venue position, simulating fills or closes that
// happened outside the manager's knowledge.
func (b *Broker) SetPosition(size int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.position = size
}

// DisableStopExecution makes resting stops ignore price crosses, simulating
// a venue that failed to execute the stop.
func (b *Broker) DisableStopExecution() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopsExecute = false
}

// FailNextPlacement makes the next order placement return err.
func (b *Broker) FailNextPlacement(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextPlaceErr = err
}

// Position returns the current signed position.
func (b *Broker) Position() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

// PlacementCount returns how many order placements have been accepted.
func (b *Broker) PlacementCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.placementMade
}

// OpenStops returns the number of resting stop orders and their total
// quantity.
func (b *Broker) OpenStops() (count int, qty int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.orders {
		if o.stopPrice > 0 && o.state == broker.OrderPending {
			count++
			qty += o.qty
		}
	}
	return count, qty
}

// ActiveStopPrice returns the price of the single resting stop, if any.
func (b *Broker) ActiveStopPrice() (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.orders {
		if o.stopPrice > 0 && o.state == broker.OrderPending {
			return o.stopPrice, true
		}
	}
	return 0, false
}

func (b *Broker) newHandle() broker.OrderHandle {
	b.seq++
	return broker.OrderHandle(fmt.Sprintf("sim-%d", b.seq))
}

func (b *Broker) fill(o *order, price float64) {
	o.state = broker.OrderFilled
	o.avgPrice = price
	if o.side == broker.SideBuy {
		b.position += o.qty
	} else {
		b.position -= o.qty
	}
}

func (b *Broker) triggerStops() {
	if !b.stopsExecute {
		return
	}
	for _, o := range b.orders {
		if o.stopPrice == 0 || o.state != broker.OrderPending {
			continue
		}
		// A sell stop protects a long and fires on the way down; a buy stop
		// protects a short and fires on the way up.
		crossed := (o.side == broker.SideSell && b.price <= o.stopPrice) ||
			(o.side == broker.SideBuy && b.price >= o.stopPrice)
		if crossed {
			b.fill(o, o.stopPrice)
		}
	}
}

func (b *Broker) PlaceMarketOrder(ctx context.Context, instrument string, side broker.Side, qty int64) (broker.OrderHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takePlacementError(); err != nil {
		return "", err
	}
	if qty <= 0 {
		return "", fmt.Errorf("invalid quantity %d", qty)
	}

	o := &order{handle: b.newHandle(), side: side, qty: qty, state: broker.OrderPending}
	b.orders[o.handle] = o
	b.fill(o, b.price)
	b.placementMade++
	return o.handle, nil
}

func (b *Broker) PlaceStopOrder(ctx context.Context, instrument string, side broker.Side, qty int64, stopPrice float64) (broker.OrderHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takePlacementError(); err != nil {
		return "", err
	}
	if qty <= 0 || stopPrice <= 0 {
		return "", fmt.Errorf("invalid stop order: qty=%d stop=%.2f", qty, stopPrice)
	}

	o := &order{handle: b.newHandle(), side: side, qty: qty, stopPrice: stopPrice, state: broker.OrderPending}
	b.orders[o.handle] = o
	b.placementMade++
	b.triggerStops()
	return o.handle, nil
}

func (b *Broker) takePlacementError() error {
	if b.nextPlaceErr != nil {
		err := b.nextPlaceErr
		b.nextPlaceErr = nil
		return err
	}
	return nil
}

func (b *Broker) CancelOrder(ctx context.Context, instrument string, handle broker.OrderHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[handle]
	if !ok {
		// Unknown handles are treated as already gone
		return nil
	}
	if o.state == broker.OrderPending {
		o.state = broker.OrderCancelled
	}
	return nil
}

func (b *Broker) GetOrderStatus(ctx context.Context, instrument string, handle broker.OrderHandle) (broker.OrderStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[handle]
	if !ok {
		return broker.OrderStatus{}, fmt.Errorf("order %s not found", handle)
	}

	status := broker.OrderStatus{Handle: o.handle, State: o.state, AvgFillPrice: o.avgPrice}
	if o.state == broker.OrderFilled {
		status.FilledQty = o.qty
	}
	return status, nil
}

func (b *Broker) GetPositionSize(ctx context.Context, instrument string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position, nil
}

func (b *Broker) GetLastPrice(ctx context.Context, instrument string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasData {
		return 0, broker.ErrNoData
	}
	return b.price, nil
}
