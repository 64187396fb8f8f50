package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Qubut/ops-harvester/internal/export"
	"github.com/Qubut/ops-harvester/internal/search"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Search OPS and export the flattened records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest()
	},
}

func runHarvest() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	query := search.Query{
		Year:               cfg.Search.Year,
		DateFrom:           cfg.Search.DateFrom,
		DateTo:             cfg.Search.DateTo,
		PageSize:           cfg.Search.PageSize,
		MaxRecords:         cfg.Search.MaxRecords,
		WithBiblio:         cfg.Search.WithBiblio,
		WithClassification: cfg.Search.WithClassification,
		IncludeRegister:    cfg.Search.IncludeRegister,
	}

	progress := progressbar.NewOptions(query.MaxRecords,
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionSetWidth(60),
		progressbar.OptionSetDescription("[page 0] Searching..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionUseANSICodes(true),
	)
	services.Harvester.SetProgress(func(page, count int) {
		progress.Describe(fmt.Sprintf("[page %d] %d records", page, count))
		_ = progress.Set(count)
	})

	res := services.Harvester.Run(ctx, query)
	progress.Describe("Search complete")
	_ = progress.Finish()
	fmt.Fprintln(os.Stdout)

	if res.Status == search.StatusAuthFailed {
		return fmt.Errorf("harvest failed: %w", res.Err)
	}

	csvPath := cfg.Export.CSVPath
	if csvPath == "" {
		csvPath = fmt.Sprintf("epo_patents_%d.csv", cfg.Search.Year)
	}
	if err := export.WriteAll(ctx, res.Records, csvPath, cfg.Export.XLSXPath); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	logger.Infow("Harvest completed",
		"status", res.Status, "records", len(res.Records), "pages", res.Pages, "csv", csvPath)
	fmt.Printf("%d records (%s) written to %s\n", len(res.Records), res.Status, csvPath)
	if res.Status == search.StatusPartial && res.Err != nil {
		fmt.Fprintf(os.Stderr, "warning: some pages failed: %v\n", res.Err)
	}
	return nil
}
