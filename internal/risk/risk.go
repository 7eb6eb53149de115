// Package risk holds the pure sizing math used before a trade is entered:
// the risk unit (one R, in price terms) and the share count that keeps the
// dollar risk inside the account budget.
package risk

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRiskUnit is returned when the risk unit is zero or negative,
// which would make stop distance and R-multiple math meaningless.
var ErrInvalidRiskUnit = errors.New("risk unit must be positive")

// Parameters captures the risk geometry of a planned trade.
type Parameters struct {
	RiskUnit   float64 // one R, in price terms
	EntryPrice float64
	StopPrice  float64
	Shares     int64
}

// Validate checks the parameters are internally consistent.
func (p Parameters) Validate() error {
	if p.RiskUnit <= 0 {
		return ErrInvalidRiskUnit
	}
	if p.EntryPrice <= 0 {
		return fmt.Errorf("entry price %.2f must be positive", p.EntryPrice)
	}
	if p.Shares <= 0 {
		return fmt.Errorf("share count %d must be positive", p.Shares)
	}
	if p.EntryPrice == p.StopPrice {
		return errors.New("stop distance is zero")
	}
	return nil
}

// DollarRisk is the loss in account currency if the initial stop fills
// exactly at the stop price.
func (p Parameters) DollarRisk() float64 {
	return float64(p.Shares) * p.RiskUnit
}

// SharesForRisk sizes a position so the dollar loss at the stop equals
// accountValue*riskPct, capped so the notional never exceeds the account,
// with a floor of one share. riskUnit is the per-share stop distance.
func SharesForRisk(accountValue, riskPct, entryPrice, riskUnit float64) (int64, error) {
	if riskUnit <= 0 {
		return 0, ErrInvalidRiskUnit
	}
	if accountValue <= 0 {
		return 0, fmt.Errorf("account value %.2f must be positive", accountValue)
	}
	if riskPct <= 0 || riskPct > 1 {
		return 0, fmt.Errorf("risk percentage %.4f must be in (0, 1]", riskPct)
	}
	if entryPrice <= 0 {
		return 0, fmt.Errorf("entry price %.2f must be positive", entryPrice)
	}

	dollarRisk := accountValue * riskPct
	shares := int64(math.Floor(dollarRisk / riskUnit))

	// Never buy more than the account can pay for
	maxAffordable := int64(math.Floor(accountValue / entryPrice))
	if shares > maxAffordable {
		shares = maxAffordable
	}
	if shares < 1 {
		shares = 1
	}

	return shares, nil
}

// RiskUnitFromATR derives the risk unit from an average true range reading,
// scaled by factor and rounded to cents.
func RiskUnitFromATR(atr, factor float64) (float64, error) {
	if atr <= 0 {
		return 0, fmt.Errorf("ATR %.4f must be positive", atr)
	}
	if factor <= 0 {
		return 0, fmt.Errorf("ATR factor %.4f must be positive", factor)
	}

	unit := math.Round(atr*factor*100) / 100
	if unit <= 0 {
		return 0, ErrInvalidRiskUnit
	}
	return unit, nil
}
