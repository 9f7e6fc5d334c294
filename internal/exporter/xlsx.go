package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"sitepulse/internal/operations"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

// WriteXLSX writes state as a workbook with a results sheet and a summary
// sheet
func WriteXLSX(w io.Writer, state *operations.OrchestratorState) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSheetRows(f, resultsSheet, Headers, Rows(state)); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(Headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(resultsSheet, "A1", last, header); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetColWidth(resultsSheet, "A", "B", 18); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}
	if err := f.SetColWidth(resultsSheet, "H", "H", 80); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	stats := state.Stats()
	summary := [][]string{
		{"URL", state.URL},
		{"Run ID", state.RunID},
		{"Started", formatTime(state.StartTime)},
		{"Finished", formatTime(state.EndTime)},
		{"Total", fmt.Sprint(stats.Total)},
		{"Completed", fmt.Sprint(stats.Completed)},
		{"Success", fmt.Sprint(stats.Success)},
		{"Failed", fmt.Sprint(stats.Failed)},
		{"Duration (ms)", formatDuration(stats.TotalDuration)},
	}
	if err := writeSheetRows(f, summarySheet, nil, summary); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), header); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheetRows(f *excelize.File, sheet string, headers []string, rows [][]string) error {
	row := 1
	if len(headers) > 0 {
		if err := setRow(f, sheet, row, headers); err != nil {
			return err
		}
		row++
	}
	for _, record := range rows {
		if err := setRow(f, sheet, row, record); err != nil {
			return err
		}
		row++
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
