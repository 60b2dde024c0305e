package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tick-archive/internal/symbols"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Inspect the symbol catalog",
	Long:  "Commands for viewing the ordered symbol catalog ingestion iterates over",
}

var listSymbolsCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog symbols in iteration order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		catalog, err := symbols.NewCatalog(cfg.Ingest.Symbols)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-6s %-12s %-8s %-12s\n", "Index", "Symbol", "Class", "PointValue")
		fmt.Fprintln(out, strings.Repeat("-", 42))
		for _, info := range catalog.Symbols() {
			fmt.Fprintf(out, "%-6d %-12s %-8s %-12g\n", info.Index, info.Symbol, info.AssetClass, info.PointValue)
		}
		fmt.Fprintf(out, "\nTotal: %d symbols\n", catalog.Len())

		return nil
	},
}

func init() {
	symbolsCmd.AddCommand(listSymbolsCmd)
	rootCmd.AddCommand(symbolsCmd)
}
