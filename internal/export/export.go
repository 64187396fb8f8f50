// Package export writes result sets to delimited and spreadsheet files.
package export

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Qubut/ops-harvester/internal/normalize"
)

// WriteAll writes the records to every non-empty target path, formats in
// parallel. Paths left empty are skipped.
func WriteAll(ctx context.Context, records []normalize.Record, csvPath, xlsxPath string) error {
	g, _ := errgroup.WithContext(ctx)
	if csvPath != "" {
		g.Go(func() error { return WriteCSVFile(csvPath, records) })
	}
	if xlsxPath != "" {
		g.Go(func() error { return WriteXLSXFile(xlsxPath, records) })
	}
	return g.Wait()
}
