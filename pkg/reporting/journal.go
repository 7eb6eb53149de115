package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/stefanopk/ladderbot/internal/session"
)

const tradesSheet = "Trades"

var journalHeader = []interface{}{
	"Date", "Symbol", "Direction", "Entry Price", "Shares",
	"Exit Reason", "Realized PnL", "R Multiple", "Exit Fills", "Duration",
}

// AppendToJournal appends one completed trade to the Excel journal at path,
// creating the workbook with a styled header row if it does not exist yet.
func AppendToJournal(outcome *session.Outcome, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx, created, err := openOrCreateJournal(path)
	if err != nil {
		return err
	}
	defer fx.Close()

	rows, err := fx.GetRows(tradesSheet)
	if err != nil {
		return fmt.Errorf("failed to read journal sheet: %w", err)
	}
	nextRow := len(rows) + 1

	cell, _ := excelize.CoordinatesToCellName(1, nextRow)
	row := []interface{}{
		outcome.FinishedAt.Format("2006-01-02 15:04:05"),
		outcome.Symbol,
		outcome.Direction.String(),
		outcome.EntryPrice,
		outcome.Shares,
		outcome.ExitReason,
		outcome.RealizedPnL,
		outcome.RMultiple,
		len(outcome.Fills),
		outcome.FinishedAt.Sub(outcome.StartedAt).String(),
	}
	if err := fx.SetSheetRow(tradesSheet, cell, &row); err != nil {
		return fmt.Errorf("failed to write journal row: %w", err)
	}

	if created {
		return fx.SaveAs(path)
	}
	return fx.Save()
}

// openOrCreateJournal opens the workbook at path, or creates a fresh one
// with the header row when the file does not exist.
func openOrCreateJournal(path string) (*excelize.File, bool, error) {
	if _, err := os.Stat(path); err == nil {
		fx, err := excelize.OpenFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("failed to open journal %s: %w", path, err)
		}
		return fx, false, nil
	}

	fx := excelize.NewFile()
	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		fx.Close()
		return nil, false, err
	}

	if err := fx.SetSheetRow(tradesSheet, "A1", &journalHeader); err != nil {
		fx.Close()
		return nil, false, err
	}
	endCell, _ := excelize.CoordinatesToCellName(len(journalHeader), 1)
	if err := fx.SetCellStyle(tradesSheet, "A1", endCell, headerStyle); err != nil {
		fx.Close()
		return nil, false, err
	}
	if err := fx.SetColWidth(tradesSheet, "A", "J", 16); err != nil {
		fx.Close()
		return nil, false, err
	}

	return fx, true, nil
}
