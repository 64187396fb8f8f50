package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/Qubut/ops-harvester/internal/normalize"
)

const sheetName = "Patents"

// WriteXLSXFile writes the records as a single-sheet spreadsheet with the
// same layout as the CSV artifact.
func WriteXLSXFile(path string, records []normalize.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	header := make([]interface{}, len(normalize.Columns))
	for i, col := range normalize.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, rec := range records {
		row := make([]interface{}, len(normalize.Columns))
		for j, col := range normalize.Columns {
			row[j] = rec[col]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save spreadsheet: %w", err)
	}
	return nil
}
