package database

import (
	"context"
	"fmt"

	"github.com/tick-archive/internal/symbols"
	"github.com/tick-archive/pkg/models"
)

// TableStats returns row statistics for a symbol table. A missing table is
// reported with Exists=false rather than an error.
func (mc *MySQLClient) TableStats(ctx context.Context, symbol string) (models.TableStats, error) {
	return QueryTableStats(ctx, mc.db, symbol)
}

// QueryTableStats reads row count and timestamp bounds of a symbol table
func QueryTableStats(ctx context.Context, db DBTX, symbol string) (models.TableStats, error) {
	var stats models.TableStats

	if !symbols.ValidIdentifier(symbol) {
		return stats, fmt.Errorf("%w: %q", symbols.ErrInvalidSymbol, symbol)
	}

	var tables int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		symbol,
	).Scan(&tables)
	if err != nil {
		return stats, fmt.Errorf("failed to check table %s: %w", symbol, err)
	}
	if tables == 0 {
		return stats, nil
	}

	stats.Exists = true
	query := fmt.Sprintf("SELECT COUNT(*), COALESCE(MIN(`Timestamp`), 0), COALESCE(MAX(`Timestamp`), 0) FROM `%s`", symbol)
	if err := db.QueryRowContext(ctx, query).Scan(&stats.Rows, &stats.FirstTimestamp, &stats.LastTimestamp); err != nil {
		return stats, fmt.Errorf("failed to read stats for %s: %w", symbol, err)
	}

	return stats, nil
}
