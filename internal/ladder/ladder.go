// Package ladder builds the staged exit plan for a position: a sequence of
// profit targets expressed in R multiples, each with a share quantity and
// the stop price that protects the remainder once that stage fills.
package ladder

import (
	"fmt"
	"math"

	"github.com/stefanopk/ladderbot/internal/broker"
)

// StagePlan describes one rung of the exit ladder before prices are known.
// Fraction is the share of the original position exited at this rung.
// StopRMultiple optionally overrides the default stop ratchet for the rung.
type StagePlan struct {
	RMultiple     float64  `json:"r_multiple"`
	Fraction      float64  `json:"fraction"`
	StopRMultiple *float64 `json:"stop_r_multiple,omitempty"`
}

// Stage is a rung with concrete prices and quantities.
type Stage struct {
	TargetPrice   float64
	Quantity      int64
	StopAfterFill float64
}

// Ladder is the full exit plan for one position.
type Ladder struct {
	EntryPrice  float64
	RiskUnit    float64
	Direction   broker.Direction
	TotalShares int64
	Stages      []Stage
}

// InvalidLadderError reports a plan that cannot be turned into a valid
// ladder. It is not retryable.
type InvalidLadderError struct {
	Reason string
}

func (e *InvalidLadderError) Error() string {
	return "invalid exit ladder: " + e.Reason
}

// DefaultPlans is the classic three-stage ladder: a third off at 1.5R,
// a third at 3R, the rest at 5R.
var DefaultPlans = []StagePlan{
	{RMultiple: 1.5, Fraction: 1.0 / 3.0},
	{RMultiple: 3.0, Fraction: 1.0 / 3.0},
	{RMultiple: 5.0, Fraction: 1.0 / 3.0},
}

const fractionTolerance = 1e-6

// ValidatePlans checks a stage plan without needing prices or share counts,
// so configuration can be rejected before any order is placed.
func ValidatePlans(plans []StagePlan) error {
	if len(plans) == 0 {
		return &InvalidLadderError{Reason: "no stages defined"}
	}

	sum := 0.0
	prevR := 0.0
	for i, p := range plans {
		if p.Fraction <= 0 {
			return &InvalidLadderError{Reason: fmt.Sprintf("stage %d fraction %.4f is not positive", i+1, p.Fraction)}
		}
		if p.RMultiple <= prevR {
			return &InvalidLadderError{Reason: fmt.Sprintf("stage %d target %.2fR does not exceed previous %.2fR", i+1, p.RMultiple, prevR)}
		}
		prevR = p.RMultiple
		sum += p.Fraction
	}

	if math.Abs(sum-1.0) > fractionTolerance {
		return &InvalidLadderError{Reason: fmt.Sprintf("fractions sum to %.6f, expected 1.0", sum)}
	}

	return nil
}

// Build turns a stage plan into a concrete ladder for an entry at entryPrice
// with the given risk unit (one R, in price terms).
//
// Quantities are floored per stage and the final stage absorbs the
// remainder, so the stage quantities always sum to exactly totalShares.
// The default stop after stage i is entry plus (i-1) R in the profit
// direction: break-even after the first stage, +1R after the second, and
// so on.
func Build(entryPrice, riskUnit float64, dir broker.Direction, totalShares int64, plans []StagePlan) (*Ladder, error) {
	if err := ValidatePlans(plans); err != nil {
		return nil, err
	}
	if entryPrice <= 0 {
		return nil, &InvalidLadderError{Reason: fmt.Sprintf("entry price %.2f is not positive", entryPrice)}
	}
	if riskUnit <= 0 {
		return nil, &InvalidLadderError{Reason: fmt.Sprintf("risk unit %.4f is not positive", riskUnit)}
	}
	if totalShares <= 0 {
		return nil, &InvalidLadderError{Reason: fmt.Sprintf("total shares %d is not positive", totalShares)}
	}

	sign := dir.Sign()
	stages := make([]Stage, len(plans))
	var allocated int64

	for i, p := range plans {
		var qty int64
		if i == len(plans)-1 {
			qty = totalShares - allocated
		} else {
			qty = int64(math.Floor(p.Fraction * float64(totalShares)))
		}
		if qty < 1 {
			return nil, &InvalidLadderError{Reason: fmt.Sprintf("stage %d quantity rounds to zero for %d shares", i+1, totalShares)}
		}
		allocated += qty

		stopR := float64(i) // i is zero-based, so stage i+1 ratchets to (i+1-1) R
		if p.StopRMultiple != nil {
			stopR = *p.StopRMultiple
		}

		stages[i] = Stage{
			TargetPrice:   entryPrice + sign*p.RMultiple*riskUnit,
			Quantity:      qty,
			StopAfterFill: entryPrice + sign*stopR*riskUnit,
		}
	}

	return &Ladder{
		EntryPrice:  entryPrice,
		RiskUnit:    riskUnit,
		Direction:   dir,
		TotalShares: totalShares,
		Stages:      stages,
	}, nil
}

// InitialStop is the protective stop one R away from entry, placed before
// any stage has filled.
func (l *Ladder) InitialStop() float64 {
	return l.EntryPrice - l.Direction.Sign()*l.RiskUnit
}

// RemainingAfter is the share count left once stages 1..stage have exited.
func (l *Ladder) RemainingAfter(stage int) int64 {
	remaining := l.TotalShares
	for i := 0; i < stage && i < len(l.Stages); i++ {
		remaining -= l.Stages[i].Quantity
	}
	return remaining
}

// Crossed reports whether price has reached target in the profit direction:
// at or above for longs, at or below for shorts.
func Crossed(price, target float64, dir broker.Direction) bool {
	if dir == broker.Short {
		return price <= target
	}
	return price >= target
}

// CrossedStop reports whether price has crossed stop adversely: at or below
// for longs, at or above for shorts.
func CrossedStop(price, stop float64, dir broker.Direction) bool {
	if dir == broker.Short {
		return price >= stop
	}
	return price <= stop
}
