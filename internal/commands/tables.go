package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tick-archive/internal/app"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Manage per-symbol tick tables",
	Long: `Commands for the per-symbol MySQL tables.

Tables are created on demand during ingestion; "tables ensure" creates every
catalog table up front. Tables are never dropped.`,
}

var ensureTablesCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create every missing catalog table",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, closeFn, err := storageApp("tables")
		if err != nil {
			return err
		}
		defer closeFn()

		ctx := context.Background()
		for _, info := range application.Catalog().Symbols() {
			if err := application.Tables().Ensure(ctx, info.Symbol); err != nil {
				return fmt.Errorf("failed to ensure table %s: %w", info.Symbol, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok  %s\n", info.Symbol)
		}

		return nil
	},
}

var statsTablesCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts and time bounds per table",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, closeFn, err := storageApp("tables")
		if err != nil {
			return err
		}
		defer closeFn()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-12s %-7s %-12s %-20s %-20s\n", "Symbol", "Exists", "Rows", "First", "Last")
		fmt.Fprintln(out, strings.Repeat("-", 75))

		ctx := context.Background()
		var total int64
		for _, info := range application.Catalog().Symbols() {
			stats, err := application.MySQL().TableStats(ctx, info.Symbol)
			if err != nil {
				fmt.Fprintf(out, "%-12s error: %v\n", info.Symbol, err)
				continue
			}

			first, last := "-", "-"
			if stats.Rows > 0 {
				first = time.UnixMilli(stats.FirstTimestamp).UTC().Format("2006-01-02 15:04:05")
				last = time.UnixMilli(stats.LastTimestamp).UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(out, "%-12s %-7t %-12d %-20s %-20s\n", info.Symbol, stats.Exists, stats.Rows, first, last)
			total += stats.Rows
		}
		fmt.Fprintf(out, "\nTotal rows: %d\n", total)

		return nil
	},
}

func init() {
	tablesCmd.AddCommand(ensureTablesCmd)
	tablesCmd.AddCommand(statsTablesCmd)
	rootCmd.AddCommand(tablesCmd)
}

// storageApp builds an application with MySQL connected
func storageApp(run string) (*app.App, func(), error) {
	cfg, log, err := bootstrap(run)
	if err != nil {
		return nil, nil, err
	}

	application, err := app.New(cfg, log.Logger)
	if err != nil {
		log.Close()
		return nil, nil, err
	}
	if err := application.Initialize(); err != nil {
		log.Close()
		return nil, nil, err
	}

	return application, func() {
		application.Close()
		log.Close()
	}, nil
}
