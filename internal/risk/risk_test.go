package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharesForRisk(t *testing.T) {
	// $50k account, 1% risk = $500, $2 stop distance = 250 shares
	shares, err := SharesForRisk(50000, 0.01, 40.0, 2.0)
	require.NoError(t, err)
	assert.Equal(t, int64(250), shares)
}

func TestSharesForRiskEquityCap(t *testing.T) {
	// Risk budget allows 500 shares but the account only affords 100
	shares, err := SharesForRisk(10000, 0.05, 100.0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), shares)
}

func TestSharesForRiskMinimumOneShare(t *testing.T) {
	shares, err := SharesForRisk(1000, 0.001, 5.0, 10.0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), shares)
}

func TestSharesForRiskRejectsBadInput(t *testing.T) {
	_, err := SharesForRisk(50000, 0.01, 40.0, 0)
	assert.ErrorIs(t, err, ErrInvalidRiskUnit)

	_, err = SharesForRisk(0, 0.01, 40.0, 2.0)
	assert.Error(t, err)

	_, err = SharesForRisk(50000, 1.5, 40.0, 2.0)
	assert.Error(t, err)

	_, err = SharesForRisk(50000, 0.01, -40.0, 2.0)
	assert.Error(t, err)
}

func TestRiskUnitFromATR(t *testing.T) {
	unit, err := RiskUnitFromATR(3.456, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 1.73, unit, 1e-9)

	_, err = RiskUnitFromATR(0, 0.5)
	assert.Error(t, err)

	_, err = RiskUnitFromATR(2.0, 0)
	assert.Error(t, err)
}

func TestParametersValidate(t *testing.T) {
	p := Parameters{RiskUnit: 1.0, EntryPrice: 100.0, StopPrice: 99.0, Shares: 99}
	assert.NoError(t, p.Validate())

	assert.ErrorIs(t, Parameters{RiskUnit: 0, EntryPrice: 100, StopPrice: 99, Shares: 1}.Validate(), ErrInvalidRiskUnit)
	assert.Error(t, Parameters{RiskUnit: 1, EntryPrice: 100, StopPrice: 100, Shares: 1}.Validate())
	assert.Error(t, Parameters{RiskUnit: 1, EntryPrice: 100, StopPrice: 99, Shares: 0}.Validate())
}

func TestDollarRisk(t *testing.T) {
	p := Parameters{RiskUnit: 2.0, EntryPrice: 40.0, StopPrice: 38.0, Shares: 250}
	assert.InDelta(t, 500.0, p.DollarRisk(), 1e-9)
}
