package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanopk/ladderbot/internal/broker"
	"github.com/stefanopk/ladderbot/internal/broker/sim"
	"github.com/stefanopk/ladderbot/internal/ladder"
	"github.com/stefanopk/ladderbot/internal/manager"
)

func testSessionConfig() Config {
	return Config{
		Symbol:            "TEST",
		Direction:         broker.Long,
		Shares:            99,
		RiskUnit:          1.0,
		Plans:             ladder.DefaultPlans,
		EntryTimeout:      time.Second,
		EntryPollInterval: time.Millisecond,
		Manager: manager.Config{
			TickInterval:     time.Millisecond,
			ReconcileEvery:   100,
			DisplayEvery:     100,
			StopConfirmDelay: time.Millisecond,
			Retry:            broker.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1},
		},
	}
}

// walkPrices steps the sim price along path with enough settling time for
// the manager to trigger and confirm each stage in between.
func walkPrices(b *sim.Broker, path []float64) {
	go func() {
		for _, p := range path {
			time.Sleep(25 * time.Millisecond)
			b.SetPrice(p)
		}
	}()
}

func TestSessionAllTargetsHit(t *testing.T) {
	b := sim.New(100.0)
	s := New(testSessionConfig(), b, nil, nil)

	walkPrices(b, []float64{101.5, 103.0, 105.0})

	outcome, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, manager.StateComplete, outcome.FinalState)
	assert.Equal(t, manager.ExitReasonAllTargetsHit, outcome.ExitReason)
	assert.InDelta(t, 100.0, outcome.EntryPrice, 1e-9)

	// 33 shares at each of +1.5R, +3R, +5R on a $1 risk unit
	assert.InDelta(t, 313.5, outcome.RealizedPnL, 1e-9)
	assert.InDelta(t, 3.17, outcome.RMultiple, 0.01)

	var total int64
	for _, f := range outcome.Fills {
		total += f.Quantity
	}
	assert.Equal(t, int64(99), total)
	assert.Equal(t, int64(0), b.Position())
}

func TestSessionStoppedOutAtFullRisk(t *testing.T) {
	b := sim.New(100.0)
	s := New(testSessionConfig(), b, nil, nil)

	walkPrices(b, []float64{99.0})

	outcome, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, manager.StateStoppedOut, outcome.FinalState)
	assert.Equal(t, manager.ExitReasonStopConfirmed, outcome.ExitReason)
	assert.InDelta(t, -99.0, outcome.RealizedPnL, 1e-9)
	assert.InDelta(t, -1.0, outcome.RMultiple, 1e-9)
}

func TestSessionForcedCloseBeyondStop(t *testing.T) {
	b := sim.New(100.0)
	s := New(testSessionConfig(), b, nil, nil)

	go func() {
		time.Sleep(25 * time.Millisecond)
		b.DisableStopExecution()
		b.SetPrice(98.0)
	}()

	outcome, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, manager.ExitReasonStopForcedClose, outcome.ExitReason)
	// Gapped to $2 below entry on the full position
	assert.InDelta(t, -198.0, outcome.RealizedPnL, 1e-9)
	assert.InDelta(t, -2.0, outcome.RMultiple, 1e-9)
	assert.Equal(t, int64(0), b.Position())
}

// neverFills wraps the sim broker so orders stay pending forever.
type neverFills struct {
	*sim.Broker
}

func (n *neverFills) GetOrderStatus(ctx context.Context, instrument string, handle broker.OrderHandle) (broker.OrderStatus, error) {
	return broker.OrderStatus{Handle: handle, State: broker.OrderPending}, nil
}

func TestSessionEntryNotFilled(t *testing.T) {
	cfg := testSessionConfig()
	cfg.EntryTimeout = 20 * time.Millisecond

	b := &neverFills{sim.New(100.0)}
	s := New(cfg, b, nil, nil)

	outcome, err := s.Run(context.Background())
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, ErrEntryNotFilled)

	// No stop may be left working when the entry never happened
	count, _ := b.OpenStops()
	assert.Equal(t, 0, count)
}

func TestSessionRejectsInvalidPlan(t *testing.T) {
	cfg := testSessionConfig()
	cfg.Plans = []ladder.StagePlan{{RMultiple: 1.5, Fraction: 0.5}}

	b := sim.New(100.0)
	s := New(cfg, b, nil, nil)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, b.PlacementCount(), "validation must fail before any order")
}

func TestSessionRejectsOversizedRiskUnit(t *testing.T) {
	cfg := testSessionConfig()
	cfg.RiskUnit = 60.0 // projected stop more than half the quote away

	b := sim.New(100.0)
	s := New(cfg, b, nil, nil)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STOP_TOO_FAR")
	assert.Equal(t, 0, b.PlacementCount(), "no order may be placed on a rejected risk unit")
}

// recordingNotifier captures alerts for assertion.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (r *recordingNotifier) SendAlert(level, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, level+": "+message)
	return nil
}

func (r *recordingNotifier) snapshot() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.alerts, "\n")
}

func TestSessionNotifiesStageAdvances(t *testing.T) {
	n := &recordingNotifier{}
	b := sim.New(100.0)
	s := New(testSessionConfig(), b, nil, n)

	walkPrices(b, []float64{101.5, 103.0, 105.0})

	outcome, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, manager.StateComplete, outcome.FinalState)

	// Let the event goroutine drain before reading the alerts
	time.Sleep(20 * time.Millisecond)
	alerts := n.snapshot()
	assert.Contains(t, alerts, "Opened")
	assert.Contains(t, alerts, "Stage1Filled")
	assert.Contains(t, alerts, "Stage2Filled")
	assert.Contains(t, alerts, "Closed")
}

func TestSessionEmitsEvents(t *testing.T) {
	cfg := testSessionConfig()
	events := make(chan manager.StatusEvent, 64)
	cfg.OnEvent = func(ev manager.StatusEvent) { events <- ev }

	b := sim.New(100.0)
	s := New(cfg, b, nil, nil)

	walkPrices(b, []float64{101.5, 103.0, 105.0})

	outcome, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, manager.StateComplete, outcome.FinalState)

	// Terminal event must arrive on the stream
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.State == manager.StateComplete {
				assert.Equal(t, int64(0), ev.RemainingSize)
				return
			}
		case <-deadline:
			t.Fatal("terminal event never observed")
		}
	}
}
