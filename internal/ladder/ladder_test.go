package ladder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanopk/ladderbot/internal/broker"
)

func TestBuildThreeStageLong(t *testing.T) {
	lad, err := Build(100.0, 1.0, broker.Long, 99, DefaultPlans)
	require.NoError(t, err)
	require.Len(t, lad.Stages, 3)

	assert.Equal(t, int64(33), lad.Stages[0].Quantity)
	assert.Equal(t, int64(33), lad.Stages[1].Quantity)
	assert.Equal(t, int64(33), lad.Stages[2].Quantity)

	assert.InDelta(t, 101.5, lad.Stages[0].TargetPrice, 1e-9)
	assert.InDelta(t, 103.0, lad.Stages[1].TargetPrice, 1e-9)
	assert.InDelta(t, 105.0, lad.Stages[2].TargetPrice, 1e-9)

	// Break-even after stage 1, +1R after stage 2
	assert.InDelta(t, 100.0, lad.Stages[0].StopAfterFill, 1e-9)
	assert.InDelta(t, 101.0, lad.Stages[1].StopAfterFill, 1e-9)

	assert.InDelta(t, 99.0, lad.InitialStop(), 1e-9)
}

func TestBuildFinalStageAbsorbsRemainder(t *testing.T) {
	totals := []int64{1, 2, 3, 7, 10, 99, 100, 101, 1000, 12345}

	for _, total := range totals {
		lad, err := Build(50.0, 0.5, broker.Long, total, DefaultPlans)
		if total < 3 {
			// A third of one or two shares rounds to zero
			require.Error(t, err, "total=%d", total)
			continue
		}
		require.NoError(t, err, "total=%d", total)

		var sum int64
		for _, s := range lad.Stages {
			require.GreaterOrEqual(t, s.Quantity, int64(1))
			sum += s.Quantity
		}
		assert.Equal(t, total, sum, "quantities must conserve the position for total=%d", total)
	}
}

func TestBuildShortDirection(t *testing.T) {
	lad, err := Build(200.0, 2.0, broker.Short, 30, DefaultPlans)
	require.NoError(t, err)

	// Targets below entry, stops ratchet downward
	assert.InDelta(t, 197.0, lad.Stages[0].TargetPrice, 1e-9)
	assert.InDelta(t, 194.0, lad.Stages[1].TargetPrice, 1e-9)
	assert.InDelta(t, 190.0, lad.Stages[2].TargetPrice, 1e-9)
	assert.InDelta(t, 200.0, lad.Stages[0].StopAfterFill, 1e-9)
	assert.InDelta(t, 198.0, lad.Stages[1].StopAfterFill, 1e-9)
	assert.InDelta(t, 202.0, lad.InitialStop(), 1e-9)
}

func TestBuildStopOverride(t *testing.T) {
	tight := 0.5
	plans := []StagePlan{
		{RMultiple: 1.0, Fraction: 0.5, StopRMultiple: &tight},
		{RMultiple: 2.0, Fraction: 0.5},
	}

	lad, err := Build(100.0, 1.0, broker.Long, 10, plans)
	require.NoError(t, err)
	assert.InDelta(t, 100.5, lad.Stages[0].StopAfterFill, 1e-9)
}

func TestValidatePlansRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		plans []StagePlan
	}{
		{"empty", nil},
		{"fractions under one", []StagePlan{{RMultiple: 1, Fraction: 0.5}}},
		{"fractions over one", []StagePlan{{RMultiple: 1, Fraction: 0.8}, {RMultiple: 2, Fraction: 0.8}}},
		{"non-increasing targets", []StagePlan{{RMultiple: 2, Fraction: 0.5}, {RMultiple: 2, Fraction: 0.5}}},
		{"negative fraction", []StagePlan{{RMultiple: 1, Fraction: -0.5}, {RMultiple: 2, Fraction: 1.5}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePlans(tc.plans)
			require.Error(t, err)
			var invalid *InvalidLadderError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestBuildRejectsBadRiskUnit(t *testing.T) {
	_, err := Build(100.0, 0, broker.Long, 99, DefaultPlans)
	require.Error(t, err)

	_, err = Build(100.0, -1.0, broker.Long, 99, DefaultPlans)
	require.Error(t, err)
}

func TestRemainingAfter(t *testing.T) {
	lad, err := Build(100.0, 1.0, broker.Long, 100, DefaultPlans)
	require.NoError(t, err)

	assert.Equal(t, int64(100), lad.RemainingAfter(0))
	assert.Equal(t, int64(67), lad.RemainingAfter(1))
	assert.Equal(t, int64(34), lad.RemainingAfter(2))
	assert.Equal(t, int64(0), lad.RemainingAfter(3))
}

func TestCrossed(t *testing.T) {
	assert.True(t, Crossed(101.5, 101.5, broker.Long))
	assert.True(t, Crossed(102.0, 101.5, broker.Long))
	assert.False(t, Crossed(101.49, 101.5, broker.Long))

	assert.True(t, Crossed(98.0, 98.5, broker.Short))
	assert.False(t, Crossed(99.0, 98.5, broker.Short))
}

func TestCrossedStop(t *testing.T) {
	assert.True(t, CrossedStop(99.0, 99.0, broker.Long))
	assert.True(t, CrossedStop(95.0, 99.0, broker.Long))
	assert.False(t, CrossedStop(99.01, 99.0, broker.Long))

	assert.True(t, CrossedStop(201.0, 201.0, broker.Short))
	assert.False(t, CrossedStop(200.0, 201.0, broker.Short))
}
