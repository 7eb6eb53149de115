// Command paper runs one simulated trade session against the in-memory
// venue, walking the price through a chosen scenario. Useful for trying
// ladder plans without touching an exchange.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stefanopk/ladderbot/internal/broker"
	"github.com/stefanopk/ladderbot/internal/broker/sim"
	"github.com/stefanopk/ladderbot/internal/ladder"
	"github.com/stefanopk/ladderbot/internal/manager"
	"github.com/stefanopk/ladderbot/internal/risk"
	"github.com/stefanopk/ladderbot/internal/session"
	"github.com/stefanopk/ladderbot/pkg/reporting"
)

func main() {
	var (
		symbol       = flag.String("symbol", "SIMUSDT", "Instrument name for the simulated trade")
		directionArg = flag.String("direction", "long", "Trade direction: long or short")
		startPrice   = flag.Float64("price", 100, "Starting price of the simulated feed")
		riskUnit     = flag.Float64("risk-unit", 0, "One R in price terms (overrides -atr)")
		atr          = flag.Float64("atr", 2.0, "ATR used to derive the risk unit when -risk-unit is not set")
		atrFactor    = flag.Float64("atr-factor", 0.5, "Multiplier applied to the ATR")
		accountValue = flag.Float64("account", 100000, "Simulated account value for position sizing")
		riskPct      = flag.Float64("risk-pct", 0.005, "Fraction of the account risked on the trade")
		scenario     = flag.String("scenario", "targets", "Price scenario: targets, stop, or gap")
		journal      = flag.String("journal", "", "Optional Excel trade journal path")
	)
	flag.Parse()

	direction, err := broker.ParseDirection(*directionArg)
	if err != nil {
		log.Fatalf("Invalid direction: %v", err)
	}

	r := *riskUnit
	if r <= 0 {
		if r, err = risk.RiskUnitFromATR(*atr, *atrFactor); err != nil {
			log.Fatalf("Failed to derive risk unit: %v", err)
		}
	}

	shares, err := risk.SharesForRisk(*accountValue, *riskPct, *startPrice, r)
	if err != nil {
		log.Fatalf("Failed to size position: %v", err)
	}

	fmt.Printf("🧪 Paper trade: %s %d %s from $%.2f, risk unit $%.2f, scenario %q\n\n",
		direction, shares, *symbol, *startPrice, r, *scenario)

	venue := sim.New(*startPrice)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go walkPrice(ctx, venue, *scenario, *startPrice, r, direction)

	sess := session.New(session.Config{
		Symbol:    *symbol,
		Direction: direction,
		Shares:    shares,
		RiskUnit:  r,
		Manager: manager.Config{
			TickInterval:     20 * time.Millisecond,
			StopConfirmDelay: 50 * time.Millisecond,
			DisplayEvery:     25,
		},
		OnEvent: func(ev manager.StatusEvent) {
			fmt.Printf("  ▸ %s at $%.2f, %d shares remaining\n", ev.State, ev.Price, ev.RemainingSize)
		},
	}, venue, nil, nil)

	outcome, err := sess.Run(ctx)
	if err != nil {
		log.Fatalf("Session failed: %v", err)
	}

	fmt.Println()
	reporting.PrintOutcome(outcome)

	if *journal != "" {
		if err := reporting.AppendToJournal(outcome, *journal); err != nil {
			log.Printf("Warning: failed to update trade journal: %v", err)
		} else {
			fmt.Printf("📗 Journal updated: %s\n", *journal)
		}
	}

	if outcome.ExitReason != manager.ExitReasonAllTargetsHit && *scenario == "targets" {
		os.Exit(1)
	}
}

// walkPrice drives the simulated feed through the requested scenario.
// Steps are slow relative to the tick interval so every stage gets a
// trigger tick and a confirm tick.
func walkPrice(ctx context.Context, venue *sim.Broker, scenario string, entry, riskUnit float64, dir broker.Direction) {
	sign := dir.Sign()
	step := func(rMultiple float64) {
		select {
		case <-ctx.Done():
		case <-time.After(120 * time.Millisecond):
			venue.SetPrice(entry + rMultiple*riskUnit*sign)
		}
	}

	final := ladder.DefaultPlans[len(ladder.DefaultPlans)-1].RMultiple

	switch scenario {
	case "stop":
		// Tag the first target, then reverse through the ratcheted stop
		step(ladder.DefaultPlans[0].RMultiple + 0.1)
		step(0.5)
		step(-0.1)
	case "gap":
		// Gap straight through the stop without ever printing at it
		venue.DisableStopExecution()
		step(-1.8)
	default:
		for m := 0.5; m <= final+0.5; m += 0.5 {
			step(m)
		}
	}
}
