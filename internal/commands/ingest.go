package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tick-archive/internal/api"
	"github.com/tick-archive/internal/app"
	"github.com/tick-archive/pkg/config"
)

var (
	ingestStart   string
	ingestEnd     string
	ingestSymbols []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest historical ticks for the configured date range",
	Long: `Run the ingestion driver once over every (date, symbol) unit from the
checkpoint to the end date.

A unit whose fetch fails is logged as degraded-empty and still advances the
checkpoint. A unit whose table creation or write fails holds the checkpoint,
so the next run starts again at that unit. Use "checkpoint set" to rewind
over days that need to be fetched again.

Examples:
  tick-archive ingest --start 2024-01-01 --end 2024-01-31
  tick-archive ingest --symbols eurusd,xauusd
  tick-archive ingest                       # INGEST_START_DATE through yesterday

Only days that have fully ended (UTC) are ingested. An end date of today or
later stops at yesterday.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestStart, "start", "", "first date (YYYY-MM-DD), overrides INGEST_START_DATE")
	ingestCmd.Flags().StringVar(&ingestEnd, "end", "", "last date inclusive (YYYY-MM-DD), overrides INGEST_END_DATE")
	ingestCmd.Flags().StringSliceVar(&ingestSymbols, "symbols", nil, "catalog in iteration order, overrides INGEST_SYMBOLS")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap(api.IngestRun)
	if err != nil {
		return err
	}
	defer log.Close()

	if ingestStart != "" {
		cfg.Ingest.StartDate = ingestStart
	}
	if ingestEnd != "" {
		cfg.Ingest.EndDate = ingestEnd
	}
	if len(ingestSymbols) > 0 {
		cfg.Ingest.Symbols = config.NormalizeSymbols(ingestSymbols)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	start, err := cfg.Ingest.Start()
	if err != nil {
		return err
	}
	end, err := cfg.Ingest.End(time.Now())
	if err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}
	if end.Before(start) {
		log.WithFields(logrus.Fields{
			"start": start.Format(config.DateLayout),
			"end":   end.Format(config.DateLayout),
		}).Info("No complete day to ingest yet")
		return nil
	}

	application, err := app.New(cfg, log.Logger)
	if err != nil {
		return err
	}
	if err := application.Initialize(); err != nil {
		log.WithError(err).Error("Failed to initialize application")
		return err
	}
	defer application.Close()

	driver, err := application.NewDriver(start, end)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := driver.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.WithField("checkpoint", application.Checkpoints().Path()).Warn("Interrupted, the next run resumes from the checkpoint")
		return nil
	}
	if err != nil {
		return err
	}

	fields := logrus.Fields{
		"units":          summary.Units,
		"succeeded":      summary.Succeeded,
		"degraded_empty": summary.DegradedEmpty,
		"failed":         summary.Failed,
		"records":        summary.Records,
	}
	if summary.Checkpoint != nil {
		fields["checkpoint_date"] = summary.Checkpoint.Date.Format("2006-01-02")
		fields["checkpoint_symbol"] = summary.Checkpoint.LastSymbol
	}
	log.WithFields(fields).Info("Done")

	if summary.Failed > 0 {
		return fmt.Errorf("%d unit(s) failed, rerun to retry from the first failure", summary.Failed)
	}
	return nil
}
