// Package reporting renders completed trade sessions for humans: a console
// summary table and an Excel trade journal.
package reporting

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/stefanopk/ladderbot/internal/session"
)

// PrintOutcome renders the session outcome as a console table.
func PrintOutcome(outcome *session.Outcome) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("TRADE SUMMARY")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📊 Symbol", outcome.Symbol},
		{"🧭 Direction", outcome.Direction.String()},
		{"💵 Entry Price", fmt.Sprintf("$%.2f", outcome.EntryPrice)},
		{"📦 Shares", outcome.Shares},
		{"🏁 Exit Reason", outcome.ExitReason},
		{"💰 Realized PnL", fmt.Sprintf("$%.2f", outcome.RealizedPnL)},
		{"🎯 R Multiple", fmt.Sprintf("%.2fR", outcome.RMultiple)},
		{"⏱️ Duration", outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Second).String()},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()

	if len(outcome.Fills) > 0 {
		printFills(outcome)
	}
}

func printFills(outcome *session.Outcome) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("EXIT FILLS")
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Stage", "Qty", "Price", "PnL", "Time"})

	sign := outcome.Direction.Sign()
	for _, f := range outcome.Fills {
		stageLabel := fmt.Sprintf("Stage %d", f.Stage)
		if f.Stage == 0 {
			stageLabel = "Stop"
		}
		pnl := float64(f.Quantity) * (f.Price - outcome.EntryPrice) * sign
		t.AppendRow(table.Row{
			stageLabel,
			f.Quantity,
			fmt.Sprintf("$%.2f", f.Price),
			fmt.Sprintf("$%.2f", pnl),
			f.Time.Format("15:04:05"),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})

	t.Render()
	fmt.Println()
}
