// Package manager runs the staged-exit state machine for one open position:
// it watches price, exits the position in ladder stages, ratchets the
// protective stop after each stage, and reconciles its bookkeeping against
// the broker, which always holds ground truth.
package manager

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stefanopk/ladderbot/internal/broker"
	"github.com/stefanopk/ladderbot/internal/ladder"
	"github.com/stefanopk/ladderbot/internal/monitoring"
)

// TradeState is the lifecycle state of a managed trade.
type TradeState string

const (
	StateInitial    TradeState = "Initial"
	StateComplete   TradeState = "Complete"
	StateStoppedOut TradeState = "StoppedOut"
	StateAborted    TradeState = "Aborted"
)

// StageFilledState names the state after stage n has confirmed filled.
func StageFilledState(n int) TradeState {
	return TradeState(fmt.Sprintf("Stage%dFilled", n))
}

// IsTerminal reports whether no further transitions can occur.
func IsTerminal(s TradeState) bool {
	return s == StateComplete || s == StateStoppedOut || s == StateAborted
}

// Exit reasons reported in the session outcome.
const (
	ExitReasonAllTargetsHit   = "AllTargetsHit"
	ExitReasonStopConfirmed   = "StopLossConfirmed"
	ExitReasonStopForcedClose = "StopLossForcedClose"
	ExitReasonAborted         = "Aborted"
	ExitReasonVanished        = "PositionVanished"
)

// Fill records one exit execution. Stage is the 1-based ladder stage, or 0
// for stop and emergency exits.
type Fill struct {
	Stage    int
	Quantity int64
	Price    float64
	Time     time.Time
}

// Logger is the subset of the file logger the manager writes to. A nil
// logger is replaced with a no-op.
type Logger interface {
	Info(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Error(format string, args ...interface{})
	Trade(format string, args ...interface{})
	LogStageFill(stage int, orderID string, qty int64, avgPrice float64, remaining int64)
	LogStopMove(oldStop, newStop float64, qty int64)
	LogReconciliation(expected, actual int64)
	LogTradeStatus(currentPrice float64, state string, remaining, original int64, nextTarget, stopPrice float64)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})                                {}
func (nopLogger) Warning(string, ...interface{})                             {}
func (nopLogger) Error(string, ...interface{})                               {}
func (nopLogger) Trade(string, ...interface{})                               {}
func (nopLogger) LogStageFill(int, string, int64, float64, int64)            {}
func (nopLogger) LogStopMove(float64, float64, int64)                        {}
func (nopLogger) LogReconciliation(int64, int64)                             {}
func (nopLogger) LogTradeStatus(float64, string, int64, int64, float64, float64) {}

// Config controls tick cadence and safety behavior.
type Config struct {
	Instrument       string
	TickInterval     time.Duration // default 1s
	ReconcileEvery   int           // ticks between broker reconciliations, default 10
	DisplayEvery     int           // ticks between status log blocks, default 10
	StopConfirmDelay time.Duration // wait before re-querying position on a stop cross, default 2s
	Retry            broker.RetryConfig
}

func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.ReconcileEvery <= 0 {
		c.ReconcileEvery = 10
	}
	if c.DisplayEvery <= 0 {
		c.DisplayEvery = 10
	}
	if c.StopConfirmDelay < 0 {
		c.StopConfirmDelay = 0
	} else if c.StopConfirmDelay == 0 {
		c.StopConfirmDelay = 2 * time.Second
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry = broker.DefaultRetryConfig()
	}
}

type stopOrder struct {
	handle broker.OrderHandle
	price  float64
	qty    int64
}

type pendingExit struct {
	stage  int // 1-based
	handle broker.OrderHandle
	qty    int64
}

// Manager drives one position through its exit ladder. One goroutine calls
// PollOnce (or Run); CurrentState, Fills, Abort, and Subscribe are safe from
// any goroutine.
type Manager struct {
	cfg    Config
	broker broker.Broker
	lad    *ladder.Ladder
	log    Logger
	bus    *eventBus

	tickMu sync.Mutex // serializes ticks

	mu         sync.RWMutex
	stagesDone int
	terminal   TradeState // empty while running
	exitReason string
	remaining  int64
	activeStop stopOrder
	pending    *pendingExit
	fills      []Fill
	tick       int64
	lastPrice  float64
	abortAsked bool
}

// New creates a manager for an already-open position described by lad.
// The initial protective stop is attached via AttachStop; if none is
// attached, the first tick places one at the ladder's initial stop price.
func New(cfg Config, b broker.Broker, lad *ladder.Ladder, log Logger) *Manager {
	cfg.setDefaults()
	if log == nil {
		log = nopLogger{}
	}
	return &Manager{
		cfg:       cfg,
		broker:    b,
		lad:       lad,
		log:       log,
		bus:       newEventBus(),
		remaining: lad.TotalShares,
	}
}

// AttachStop registers a protective stop that was placed before the manager
// started, so the first tick does not place a duplicate.
func (m *Manager) AttachStop(handle broker.OrderHandle, price float64, qty int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeStop = stopOrder{handle: handle, price: price, qty: qty}
}

// CurrentState returns the current lifecycle state.
func (m *Manager) CurrentState() TradeState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() TradeState {
	if m.terminal != "" {
		return m.terminal
	}
	if m.stagesDone == 0 {
		return StateInitial
	}
	return StageFilledState(m.stagesDone)
}

// ExitReason returns the recorded exit reason, empty while running.
func (m *Manager) ExitReason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exitReason
}

// RemainingSize returns the tracked share count still held.
func (m *Manager) RemainingSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.remaining
}

// Fills returns a copy of the recorded exit fills.
func (m *Manager) Fills() []Fill {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Fill, len(m.fills))
	copy(out, m.fills)
	return out
}

// Subscribe returns a finite stream of state transition events.
func (m *Manager) Subscribe() <-chan StatusEvent {
	return m.bus.Subscribe()
}

// Abort requests cancellation of open orders and a transition to Aborted at
// the next tick boundary. The position itself is not flattened.
func (m *Manager) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abortAsked = true
}

// Run ticks the manager until a terminal state is reached or ctx is done.
// Context cancellation is treated as an abort request: open orders are
// cancelled before returning.
func (m *Manager) Run(ctx context.Context) TradeState {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		state, err := m.PollOnce(ctx)
		if IsTerminal(state) {
			return state
		}
		if err == context.Canceled || err == context.DeadlineExceeded {
			return m.abortNow()
		}

		select {
		case <-ctx.Done():
			return m.abortNow()
		case <-ticker.C:
		}
	}
}

func (m *Manager) abortNow() TradeState {
	m.Abort()
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	state, _ := m.PollOnce(cleanupCtx)
	return state
}

// PollOnce advances the state machine by at most one stage. It never
// panics out: a panicking tick is logged and the state left unchanged.
func (m *Manager) PollOnce(ctx context.Context) (state TradeState, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("🚨 PANIC in trade tick: %v", r)
			monitoring.RecordError("panic")
			state = m.CurrentState()
			err = nil
		}
	}()

	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	if st := m.CurrentState(); IsTerminal(st) {
		return st, nil
	}

	m.mu.Lock()
	abort := m.abortAsked
	m.tick++
	tick := m.tick
	m.mu.Unlock()

	if abort {
		return m.doAbort(ctx), nil
	}

	if err := m.ensureStopPresent(ctx); err != nil {
		m.log.Error("failed to place protective stop: %v", err)
		monitoring.RecordError("stop_placement")
	}

	m.mu.RLock()
	pending := m.pending
	m.mu.RUnlock()
	if pending != nil {
		return m.confirmPending(ctx, pending), nil
	}

	reconcileDue := tick%int64(m.cfg.ReconcileEvery) == 0

	price, err := m.readPrice(ctx)
	if err != nil {
		if err == context.Canceled || err == context.DeadlineExceeded {
			return m.CurrentState(), err
		}
		// Stall: no market data means no exit decisions this tick, but the
		// broker can still be reconciled against
		m.log.Warning("no usable price this tick: %v", err)
		if reconcileDue {
			return m.reconcile(ctx), nil
		}
		return m.CurrentState(), nil
	}

	m.mu.Lock()
	m.lastPrice = price
	remaining := m.remaining
	activeStop := m.activeStop
	stagesDone := m.stagesDone
	m.mu.Unlock()

	monitoring.UpdatePrice(m.cfg.Instrument, price)
	monitoring.UpdateRemainingSize(m.cfg.Instrument, remaining)

	if m.cfg.DisplayEvery > 0 && tick%int64(m.cfg.DisplayEvery) == 0 {
		nextTarget := 0.0
		if stagesDone < len(m.lad.Stages) {
			nextTarget = m.lad.Stages[stagesDone].TargetPrice
		}
		m.log.LogTradeStatus(price, string(m.CurrentState()), remaining, m.lad.TotalShares, nextTarget, activeStop.price)
	}

	if remaining > 0 && activeStop.handle != "" && ladder.CrossedStop(price, activeStop.price, m.lad.Direction) {
		return m.resolveStopCross(ctx, price), nil
	}

	if stagesDone < len(m.lad.Stages) && ladder.Crossed(price, m.lad.Stages[stagesDone].TargetPrice, m.lad.Direction) {
		m.fireStage(ctx, stagesDone, price)
		return m.CurrentState(), nil
	}

	// Quiet tick: reconcile tracked size against broker ground truth. A zero
	// position here has no stage or stop event explaining it.
	if reconcileDue {
		return m.reconcile(ctx), nil
	}

	return m.CurrentState(), nil
}

// ensureStopPresent restores the stop-always-present invariant if the
// manager somehow has shares without a working stop order.
func (m *Manager) ensureStopPresent(ctx context.Context) error {
	m.mu.RLock()
	needsStop := m.remaining > 0 && m.activeStop.handle == "" && m.pending == nil
	remaining := m.remaining
	stagesDone := m.stagesDone
	m.mu.RUnlock()

	if !needsStop {
		return nil
	}

	stopPrice := m.lad.InitialStop()
	if stagesDone > 0 {
		stopPrice = m.lad.Stages[stagesDone-1].StopAfterFill
	}

	handle, err := m.broker.PlaceStopOrder(ctx, m.cfg.Instrument, m.lad.Direction.ExitSide(), remaining, stopPrice)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.activeStop = stopOrder{handle: handle, price: stopPrice, qty: remaining}
	m.mu.Unlock()

	m.log.Trade("🛡️ Protective stop placed at $%.2f for %d shares", stopPrice, remaining)
	return nil
}

// reconcile compares tracked size with the broker and adopts the broker's
// value on mismatch. The broker is ground truth.
func (m *Manager) reconcile(ctx context.Context) TradeState {
	var pos int64
	err := broker.Retry(ctx, m.cfg.Retry, func() error {
		var e error
		pos, e = m.broker.GetPositionSize(ctx, m.cfg.Instrument)
		return e
	})
	if err != nil {
		m.log.Warning("reconciliation skipped, position query failed: %v", err)
		monitoring.RecordError("position_query")
		return m.CurrentState()
	}

	actual := m.directionalSize(pos)

	m.mu.Lock()
	tracked := m.remaining
	pending := m.pending
	m.mu.Unlock()

	// An in-flight exit order makes any mismatch expected
	if pending != nil {
		return m.CurrentState()
	}

	if actual == 0 && tracked > 0 {
		m.log.Error("🚨 Position vanished: tracked %d shares but broker reports flat", tracked)
		m.cancelActiveStop(ctx)
		return m.finish(StateAborted, ExitReasonVanished)
	}

	if actual != tracked {
		m.log.LogReconciliation(tracked, actual)
		monitoring.RecordReconciliation(m.cfg.Instrument)
		m.mu.Lock()
		m.remaining = actual
		m.mu.Unlock()
	}

	return m.CurrentState()
}

// confirmPending resolves the previous tick's exit order. The next stage is
// never evaluated until the prior stage's order is confirmed filled.
func (m *Manager) confirmPending(ctx context.Context, p *pendingExit) TradeState {
	var status broker.OrderStatus
	err := broker.Retry(ctx, m.cfg.Retry, func() error {
		var e error
		status, e = m.broker.GetOrderStatus(ctx, m.cfg.Instrument, p.handle)
		return e
	})
	if err != nil {
		m.log.Warning("stage %d fill confirmation failed, retrying next tick: %v", p.stage, err)
		monitoring.RecordError("order_status")
		return m.CurrentState()
	}

	switch status.State {
	case broker.OrderFilled:
		m.mu.Lock()
		m.fills = append(m.fills, Fill{Stage: p.stage, Quantity: p.qty, Price: status.AvgFillPrice, Time: time.Now()})
		m.stagesDone = p.stage
		m.pending = nil
		remaining := m.remaining
		price := m.lastPrice
		m.mu.Unlock()

		m.log.LogStageFill(p.stage, string(p.handle), p.qty, status.AvgFillPrice, remaining)
		monitoring.RecordStageFill(m.cfg.Instrument, strconv.Itoa(p.stage))

		if p.stage == len(m.lad.Stages) {
			return m.finish(StateComplete, ExitReasonAllTargetsHit)
		}
		m.publish(price)
		return m.CurrentState()

	case broker.OrderRejected, broker.OrderCancelled:
		// The exit never happened: restore the shares and retry the stage
		m.log.Error("stage %d exit order %s ended %s, restoring %d shares", p.stage, p.handle, status.State, p.qty)
		monitoring.RecordError("exit_order_" + strings.ToLower(string(status.State)))
		m.mu.Lock()
		m.remaining += p.qty
		m.pending = nil
		remaining := m.remaining
		stagesDone := m.stagesDone
		oldStop := m.activeStop
		m.mu.Unlock()

		// The stop already ratcheted for a fill that never happened: put it
		// back to the pre-stage price covering the full restored size
		stopPrice := m.lad.InitialStop()
		if stagesDone > 0 {
			stopPrice = m.lad.Stages[stagesDone-1].StopAfterFill
		}
		m.replaceStop(ctx, oldStop, stopPrice, remaining)
		return m.CurrentState()

	default:
		// Still pending at the venue; check again next tick
		return m.CurrentState()
	}
}

// fireStage submits the market exit for stage idx (0-based), protects the
// remainder with a ratcheted stop, then cancels the old stop. The new stop
// goes in before the old one comes out so the position is never unprotected.
func (m *Manager) fireStage(ctx context.Context, idx int, price float64) {
	stage := m.lad.Stages[idx]

	m.mu.Lock()
	qty := stage.Quantity
	if qty > m.remaining {
		qty = m.remaining
	}
	remaining := m.remaining
	oldStop := m.activeStop
	m.mu.Unlock()

	if qty <= 0 {
		return
	}

	exitSide := m.lad.Direction.ExitSide()

	handle, err := m.broker.PlaceMarketOrder(ctx, m.cfg.Instrument, exitSide, qty)
	if err != nil {
		m.log.Error("stage %d exit order failed at $%.2f: %v", idx+1, price, err)
		monitoring.RecordError("exit_order_place")
		return
	}

	m.log.Trade("🎯 Stage %d target $%.2f reached at $%.2f, exiting %d shares", idx+1, stage.TargetPrice, price, qty)

	newRemaining := remaining - qty
	final := idx == len(m.lad.Stages)-1

	if !final && newRemaining > 0 {
		m.replaceStop(ctx, oldStop, stage.StopAfterFill, newRemaining)
	} else {
		m.cancelActiveStop(ctx)
	}

	m.mu.Lock()
	m.remaining = newRemaining
	m.pending = &pendingExit{stage: idx + 1, handle: handle, qty: qty}
	m.mu.Unlock()
}

// replaceStop places the ratcheted stop before cancelling the old one and
// keeps the old stop if the replacement cannot be confirmed working.
func (m *Manager) replaceStop(ctx context.Context, oldStop stopOrder, newPrice float64, qty int64) {
	exitSide := m.lad.Direction.ExitSide()

	newHandle, err := m.broker.PlaceStopOrder(ctx, m.cfg.Instrument, exitSide, qty, newPrice)
	if err != nil {
		m.log.Warning("stop replacement at $%.2f failed, keeping previous stop: %v", newPrice, err)
		monitoring.RecordError("stop_replace")
		return
	}

	if status, err := m.broker.GetOrderStatus(ctx, m.cfg.Instrument, newHandle); err == nil && status.State == broker.OrderRejected {
		m.log.Error("replacement stop %s rejected, keeping previous stop", newHandle)
		monitoring.RecordError("stop_rejected")
		return
	}

	if oldStop.handle != "" {
		if err := m.broker.CancelOrder(ctx, m.cfg.Instrument, oldStop.handle); err != nil {
			m.log.Warning("old stop %s cancel failed: %v", oldStop.handle, err)
		}
	}

	m.mu.Lock()
	m.activeStop = stopOrder{handle: newHandle, price: newPrice, qty: qty}
	m.mu.Unlock()

	m.log.LogStopMove(oldStop.price, newPrice, qty)
	monitoring.RecordStopMove(m.cfg.Instrument)
}

// resolveStopCross handles an adverse cross of the active stop. The stop
// order should have executed at the venue; the broker position is the only
// reliable way to tell, so wait briefly and ask.
func (m *Manager) resolveStopCross(ctx context.Context, price float64) TradeState {
	m.log.Warning("⚠️ Price $%.2f crossed stop $%.2f, confirming with broker", price, m.activeStopPrice())

	if m.cfg.StopConfirmDelay > 0 {
		select {
		case <-ctx.Done():
			return m.CurrentState()
		case <-time.After(m.cfg.StopConfirmDelay):
		}
	}

	var pos int64
	err := broker.Retry(ctx, m.cfg.Retry, func() error {
		var e error
		pos, e = m.broker.GetPositionSize(ctx, m.cfg.Instrument)
		return e
	})
	if err != nil {
		m.log.Error("position query after stop cross failed, re-evaluating next tick: %v", err)
		monitoring.RecordError("position_query")
		return m.CurrentState()
	}

	actual := m.directionalSize(pos)

	if actual == 0 {
		m.mu.Lock()
		stopPrice := m.activeStop.price
		qty := m.remaining
		m.fills = append(m.fills, Fill{Stage: 0, Quantity: qty, Price: stopPrice, Time: time.Now()})
		m.remaining = 0
		m.activeStop = stopOrder{}
		m.mu.Unlock()

		m.log.Trade("🛑 Stop loss executed at $%.2f for %d shares", stopPrice, qty)
		return m.finish(StateStoppedOut, ExitReasonStopConfirmed)
	}

	// Stop crossed but the position is still open: the stop order failed.
	// Force the exit with a market order.
	m.log.Error("🚨 Stop crossed but %d shares still open, forcing market close", actual)

	if _, err := m.broker.PlaceMarketOrder(ctx, m.cfg.Instrument, m.lad.Direction.ExitSide(), actual); err != nil {
		m.log.Error("emergency close failed, retrying next tick: %v", err)
		monitoring.RecordError("emergency_close")
		return m.CurrentState()
	}

	m.cancelActiveStop(ctx)

	m.mu.Lock()
	m.fills = append(m.fills, Fill{Stage: 0, Quantity: actual, Price: price, Time: time.Now()})
	m.remaining = 0
	m.mu.Unlock()

	m.log.Trade("🛑 Emergency close executed at $%.2f for %d shares", price, actual)
	monitoring.RecordEmergencyClose(m.cfg.Instrument)
	return m.finish(StateStoppedOut, ExitReasonStopForcedClose)
}

func (m *Manager) doAbort(ctx context.Context) TradeState {
	m.cancelActiveStop(ctx)

	m.mu.Lock()
	if m.pending != nil {
		// Best effort; a market exit is usually already filled
		_ = m.broker.CancelOrder(ctx, m.cfg.Instrument, m.pending.handle)
		m.pending = nil
	}
	m.mu.Unlock()

	m.log.Warning("trade aborted, open orders cancelled, position left as-is")
	return m.finish(StateAborted, ExitReasonAborted)
}

func (m *Manager) cancelActiveStop(ctx context.Context) {
	m.mu.Lock()
	stop := m.activeStop
	m.activeStop = stopOrder{}
	m.mu.Unlock()

	if stop.handle == "" {
		return
	}
	if err := m.broker.CancelOrder(ctx, m.cfg.Instrument, stop.handle); err != nil {
		m.log.Warning("stop cancel failed for %s: %v", stop.handle, err)
	}
}

// finish records the terminal state exactly once and closes the event
// stream. No orders are placed after this point.
func (m *Manager) finish(state TradeState, reason string) TradeState {
	m.mu.Lock()
	if m.terminal != "" {
		st := m.terminal
		m.mu.Unlock()
		return st
	}
	m.terminal = state
	m.exitReason = reason
	price := m.lastPrice
	remaining := m.remaining
	m.mu.Unlock()

	monitoring.RecordTradeComplete(m.cfg.Instrument, reason)
	monitoring.UpdateRemainingSize(m.cfg.Instrument, remaining)

	m.bus.Publish(StatusEvent{Timestamp: time.Now(), State: state, Price: price, RemainingSize: remaining})
	m.bus.Close()

	m.log.Info("trade reached terminal state %s (%s)", state, reason)
	return state
}

func (m *Manager) publish(price float64) {
	m.mu.RLock()
	ev := StatusEvent{
		Timestamp:     time.Now(),
		State:         m.stateLocked(),
		Price:         price,
		RemainingSize: m.remaining,
	}
	m.mu.RUnlock()
	m.bus.Publish(ev)
}

func (m *Manager) readPrice(ctx context.Context) (float64, error) {
	var price float64
	err := broker.Retry(ctx, m.cfg.Retry, func() error {
		var e error
		price, e = m.broker.GetLastPrice(ctx, m.cfg.Instrument)
		return e
	})
	return price, err
}

func (m *Manager) activeStopPrice() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeStop.price
}

// directionalSize converts the broker's signed position into shares held in
// the managed direction.
func (m *Manager) directionalSize(pos int64) int64 {
	if m.lad.Direction == broker.Short {
		if pos < 0 {
			return -pos
		}
		return 0
	}
	if pos > 0 {
		return pos
	}
	return 0
}
