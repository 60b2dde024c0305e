package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tick-archive/internal/checkpoint"
	"github.com/tick-archive/internal/symbols"
	"github.com/tick-archive/pkg/config"
)

var (
	checkpointDate   string
	checkpointSymbol string
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or rewind the ingestion resume point",
}

var showCheckpointCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store := checkpoint.NewFileStore(cfg.Ingest.CheckpointPath, logrus.StandardLogger())
		cp, err := store.Load(context.Background())
		if errors.Is(err, checkpoint.ErrNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "no checkpoint at %s\n", store.Path())
			return nil
		}
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var setCheckpointCmd = &cobra.Command{
	Use:   "set",
	Short: "Overwrite the checkpoint",
	Long: `Overwrite the checkpoint so the next ingest run resumes after the given
unit. An empty --symbol restarts the whole date.

Examples:
  tick-archive checkpoint set --date 2024-01-01 --symbol gbpusd
  tick-archive checkpoint set --date 2024-03-10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		date, err := config.ParseDate(checkpointDate)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}

		if checkpointSymbol != "" {
			catalog, err := symbols.NewCatalog(cfg.Ingest.Symbols)
			if err != nil {
				return err
			}
			if _, ok := catalog.Index(checkpointSymbol); !ok {
				return fmt.Errorf("%w: %q is not in the catalog", symbols.ErrInvalidSymbol, checkpointSymbol)
			}
		}

		store := checkpoint.NewFileStore(cfg.Ingest.CheckpointPath, logrus.StandardLogger())
		if err := store.Save(context.Background(), date, checkpointSymbol); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "checkpoint set to %s %s\n", date.Format(config.DateLayout), checkpointSymbol)
		return nil
	},
}

func init() {
	setCheckpointCmd.Flags().StringVar(&checkpointDate, "date", "", "checkpoint date (YYYY-MM-DD)")
	setCheckpointCmd.Flags().StringVar(&checkpointSymbol, "symbol", "", "last finished symbol on that date")
	setCheckpointCmd.MarkFlagRequired("date")

	checkpointCmd.AddCommand(showCheckpointCmd)
	checkpointCmd.AddCommand(setCheckpointCmd)
	rootCmd.AddCommand(checkpointCmd)
}
