package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/Qubut/ops-harvester/internal/normalize"
)

// WriteCSV writes the header row followed by one row per record in the
// fixed column order. Absent fields are written as empty strings.
func WriteCSV(w io.Writer, records []normalize.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(normalize.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	row := make([]string, len(normalize.Columns))
	for _, rec := range records {
		for i, col := range normalize.Columns {
			row[i] = rec[col]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteCSVFile(path string, records []normalize.Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV: %w", err)
	}
	defer file.Close()

	bw := bufio.NewWriter(file)
	if err := WriteCSV(bw, records); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadCSV reads a file produced by WriteCSV back into records. Columns not
// present in the header are left absent.
func ReadCSV(r io.Reader) ([]normalize.Record, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var records []normalize.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		rec := normalize.Record{}
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
