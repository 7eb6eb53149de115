// Package session wraps one full trade: enter, hand the position to the
// staged-exit manager, and assemble the outcome when the manager finishes.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stefanopk/ladderbot/internal/broker"
	laderrors "github.com/stefanopk/ladderbot/internal/errors"
	"github.com/stefanopk/ladderbot/internal/ladder"
	"github.com/stefanopk/ladderbot/internal/manager"
	"github.com/stefanopk/ladderbot/internal/notifications"
	"github.com/stefanopk/ladderbot/internal/safety"
)

// ErrEntryNotFilled is returned when the entry order does not fill inside
// the entry timeout. No manager is started and no stop is placed.
var ErrEntryNotFilled = errors.New("entry order not filled before timeout")

// Logger is the manager's logger plus the session outcome block.
type Logger interface {
	manager.Logger
	LogSessionOutcome(exitReason string, realizedPnL, rMultiple float64)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})                                    {}
func (nopLogger) Warning(string, ...interface{})                                 {}
func (nopLogger) Error(string, ...interface{})                                   {}
func (nopLogger) Trade(string, ...interface{})                                   {}
func (nopLogger) LogStageFill(int, string, int64, float64, int64)                {}
func (nopLogger) LogStopMove(float64, float64, int64)                            {}
func (nopLogger) LogReconciliation(int64, int64)                                 {}
func (nopLogger) LogTradeStatus(float64, string, int64, int64, float64, float64) {}
func (nopLogger) LogSessionOutcome(string, float64, float64)                     {}

// Config describes the trade to run.
type Config struct {
	Symbol    string
	Direction broker.Direction
	Shares    int64
	RiskUnit  float64 // one R, in price terms
	Plans     []ladder.StagePlan

	EntryTimeout      time.Duration // default 30s
	EntryPollInterval time.Duration // default 500ms

	Manager manager.Config

	// OnEvent, when set, receives every manager state transition.
	OnEvent func(manager.StatusEvent)
}

func (c *Config) setDefaults() {
	if c.EntryTimeout <= 0 {
		c.EntryTimeout = 30 * time.Second
	}
	if c.EntryPollInterval <= 0 {
		c.EntryPollInterval = 500 * time.Millisecond
	}
	if len(c.Plans) == 0 {
		c.Plans = ladder.DefaultPlans
	}
	c.Manager.Instrument = c.Symbol
}

// Outcome is the final record of a completed trade session.
type Outcome struct {
	Symbol      string
	Direction   broker.Direction
	EntryPrice  float64
	Shares      int64
	RealizedPnL float64
	RMultiple   float64
	ExitReason  string
	FinalState  manager.TradeState
	Fills       []manager.Fill
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Session runs one trade end to end.
type Session struct {
	cfg      Config
	broker   broker.Broker
	log      Logger
	notifier notifications.Notifier
}

// New creates a session. A nil logger or notifier is replaced with a no-op.
func New(cfg Config, b broker.Broker, log Logger, notifier notifications.Notifier) *Session {
	cfg.setDefaults()
	if log == nil {
		log = nopLogger{}
	}
	if notifier == nil {
		notifier = notifications.Noop{}
	}
	return &Session{cfg: cfg, broker: b, log: log, notifier: notifier}
}

// Run enters the position, manages the staged exits until a terminal state,
// and returns the outcome. If the entry never fills, ErrEntryNotFilled is
// returned and nothing is left working at the broker.
func (s *Session) Run(ctx context.Context) (*Outcome, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	startedAt := time.Now()
	dir := s.cfg.Direction

	// A risk unit out of proportion to the quote is a config error; catch it
	// before committing capital
	if quote, err := s.broker.GetLastPrice(ctx, s.cfg.Symbol); err == nil {
		projectedStop := quote - s.cfg.RiskUnit*dir.Sign()
		if err := safety.NewValidator().ValidateStopDistance(quote, projectedStop, s.cfg.Symbol).Err(); err != nil {
			return nil, err
		}
	}

	s.log.Info("entering %s %d %s at market", dir, s.cfg.Shares, s.cfg.Symbol)

	entryHandle, err := s.broker.PlaceMarketOrder(ctx, s.cfg.Symbol, dir.EntrySide(), s.cfg.Shares)
	if err != nil {
		return nil, fmt.Errorf("entry order failed: %w", err)
	}

	entryPrice, err := s.awaitEntryFill(ctx, entryHandle)
	if err != nil {
		return nil, err
	}

	s.log.Trade("✅ Entry filled: %d %s at $%.2f", s.cfg.Shares, s.cfg.Symbol, entryPrice)

	// The ladder is built from the actual fill price, not the quote
	lad, err := ladder.Build(entryPrice, s.cfg.RiskUnit, dir, s.cfg.Shares, s.cfg.Plans)
	if err != nil {
		return nil, err
	}

	stopPrice := lad.InitialStop()
	stopHandle, err := s.broker.PlaceStopOrder(ctx, s.cfg.Symbol, dir.ExitSide(), s.cfg.Shares, stopPrice)
	if err != nil {
		// Entered but unprotected: the manager's first tick retries the stop
		s.log.Error("initial stop placement failed, manager will retry: %v", err)
	}

	mgr := manager.New(s.cfg.Manager, s.broker, lad, s.log)
	if stopHandle != "" {
		mgr.AttachStop(stopHandle, stopPrice, s.cfg.Shares)
	}

	events := mgr.Subscribe()
	go func() {
		for ev := range events {
			if s.cfg.OnEvent != nil {
				s.cfg.OnEvent(ev)
			}
			// Terminal states get their own close alert after Run returns
			if !manager.IsTerminal(ev.State) {
				s.notify("info", fmt.Sprintf("%s advanced to %s: %d shares remaining at $%.2f", s.cfg.Symbol, ev.State, ev.RemainingSize, ev.Price))
			}
		}
	}()

	s.notify("success", fmt.Sprintf("Opened %s %d %s at $%.2f, stop $%.2f", dir, s.cfg.Shares, s.cfg.Symbol, entryPrice, stopPrice))

	finalState := mgr.Run(ctx)

	outcome := s.buildOutcome(mgr, entryPrice, startedAt, finalState)

	s.log.LogSessionOutcome(outcome.ExitReason, outcome.RealizedPnL, outcome.RMultiple)
	s.notify(alertLevelFor(outcome.ExitReason), fmt.Sprintf("Closed %s: %s, PnL $%.2f (%.2fR)", s.cfg.Symbol, outcome.ExitReason, outcome.RealizedPnL, outcome.RMultiple))

	return outcome, nil
}

func (s *Session) validate() error {
	if err := safety.NewValidator().ValidateSymbol(s.cfg.Symbol).Err(); err != nil {
		return err
	}
	if s.cfg.Shares <= 0 {
		return laderrors.NewValidationError("session", "validate", fmt.Sprintf("share count %d must be positive", s.cfg.Shares))
	}
	if s.cfg.RiskUnit <= 0 {
		return laderrors.NewValidationError("session", "validate", fmt.Sprintf("risk unit %.4f must be positive", s.cfg.RiskUnit))
	}
	return ladder.ValidatePlans(s.cfg.Plans)
}

// awaitEntryFill polls the entry order until it fills or the timeout
// expires. On timeout the order is cancelled best-effort.
func (s *Session) awaitEntryFill(ctx context.Context, handle broker.OrderHandle) (float64, error) {
	deadline := time.Now().Add(s.cfg.EntryTimeout)

	for {
		status, err := s.broker.GetOrderStatus(ctx, s.cfg.Symbol, handle)
		if err == nil {
			switch status.State {
			case broker.OrderFilled:
				return status.AvgFillPrice, nil
			case broker.OrderRejected, broker.OrderCancelled:
				return 0, fmt.Errorf("entry order %s ended %s", handle, status.State)
			}
		} else {
			s.log.Warning("entry status check failed: %v", err)
		}

		if time.Now().After(deadline) {
			if cancelErr := s.broker.CancelOrder(ctx, s.cfg.Symbol, handle); cancelErr != nil {
				s.log.Warning("entry cancel after timeout failed: %v", cancelErr)
			}
			return 0, ErrEntryNotFilled
		}

		select {
		case <-ctx.Done():
			_ = s.broker.CancelOrder(context.Background(), s.cfg.Symbol, handle)
			return 0, ctx.Err()
		case <-time.After(s.cfg.EntryPollInterval):
		}
	}
}

func (s *Session) buildOutcome(mgr *manager.Manager, entryPrice float64, startedAt time.Time, finalState manager.TradeState) *Outcome {
	fills := mgr.Fills()
	sign := s.cfg.Direction.Sign()

	pnl := 0.0
	for _, f := range fills {
		pnl += float64(f.Quantity) * (f.Price - entryPrice) * sign
	}

	rMultiple := 0.0
	if dollarRisk := float64(s.cfg.Shares) * s.cfg.RiskUnit; dollarRisk > 0 {
		rMultiple = pnl / dollarRisk
	}

	return &Outcome{
		Symbol:      s.cfg.Symbol,
		Direction:   s.cfg.Direction,
		EntryPrice:  entryPrice,
		Shares:      s.cfg.Shares,
		RealizedPnL: pnl,
		RMultiple:   rMultiple,
		ExitReason:  mgr.ExitReason(),
		FinalState:  finalState,
		Fills:       fills,
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
	}
}

func (s *Session) notify(level, message string) {
	if err := s.notifier.SendAlert(level, message); err != nil {
		s.log.Warning("notification failed: %v", err)
	}
}

func alertLevelFor(exitReason string) string {
	switch exitReason {
	case manager.ExitReasonAllTargetsHit:
		return "success"
	case manager.ExitReasonStopForcedClose, manager.ExitReasonVanished:
		return "error"
	default:
		return "warning"
	}
}
