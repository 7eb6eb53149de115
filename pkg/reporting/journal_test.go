package reporting

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/stefanopk/ladderbot/internal/broker"
	"github.com/stefanopk/ladderbot/internal/manager"
	"github.com/stefanopk/ladderbot/internal/session"
)

func sampleOutcome(symbol string) *session.Outcome {
	start := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	return &session.Outcome{
		Symbol:      symbol,
		Direction:   broker.Long,
		EntryPrice:  100,
		Shares:      99,
		RealizedPnL: 313.5,
		RMultiple:   3.17,
		ExitReason:  manager.ExitReasonAllTargetsHit,
		FinalState:  manager.StateComplete,
		Fills: []manager.Fill{
			{Stage: 1, Quantity: 33, Price: 101.5, Time: start.Add(time.Minute)},
			{Stage: 2, Quantity: 33, Price: 103, Time: start.Add(2 * time.Minute)},
			{Stage: 3, Quantity: 33, Price: 105, Time: start.Add(3 * time.Minute)},
		},
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Minute),
	}
}

func TestAppendToJournalCreatesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "trades.xlsx")

	require.NoError(t, AppendToJournal(sampleOutcome("BTCUSDT"), path))

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	rows, err := fx.GetRows(tradesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Symbol", rows[0][1])
	assert.Equal(t, "BTCUSDT", rows[1][1])
	assert.Equal(t, manager.ExitReasonAllTargetsHit, rows[1][5])
}

func TestAppendToJournalAppendsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.xlsx")

	require.NoError(t, AppendToJournal(sampleOutcome("BTCUSDT"), path))
	require.NoError(t, AppendToJournal(sampleOutcome("ETHUSDT"), path))

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	rows, err := fx.GetRows(tradesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "BTCUSDT", rows[1][1])
	assert.Equal(t, "ETHUSDT", rows[2][1])
}

func TestPrintOutcomeDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { PrintOutcome(sampleOutcome("BTCUSDT")) })
}
