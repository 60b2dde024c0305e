package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tick-archive/internal/symbols"
	"github.com/tick-archive/pkg/models"
)

// DefaultChunkSize bounds the number of rows in a single upsert statement
const DefaultChunkSize = 1000

// Ensurer makes sure a symbol's table exists
type Ensurer interface {
	Ensure(ctx context.Context, symbol string) error
}

// TickWriter upserts tick records into per-symbol tables
type TickWriter struct {
	db        DBTX
	tables    Ensurer
	chunkSize int
	logger    *logrus.Entry
}

// NewTickWriter creates a new tick writer. A non-positive chunkSize falls back to DefaultChunkSize.
func NewTickWriter(db DBTX, tables Ensurer, chunkSize int, logger *logrus.Logger) *TickWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &TickWriter{
		db:        db,
		tables:    tables,
		chunkSize: chunkSize,
		logger:    logger.WithField("component", "tick-writer"),
	}
}

// ChunkSize returns the configured chunk size
func (w *TickWriter) ChunkSize() int {
	return w.chunkSize
}

// Write upserts ticks into the symbol's table in chunks. An empty slice is a
// no-op. On a timestamp collision the four numeric columns are overwritten.
// Chunks are committed independently: if a later chunk fails, earlier ones stay.
func (w *TickWriter) Write(ctx context.Context, symbol string, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	if !symbols.ValidIdentifier(symbol) {
		return fmt.Errorf("%w: %q", symbols.ErrInvalidSymbol, symbol)
	}

	if err := w.tables.Ensure(ctx, symbol); err != nil {
		return err
	}

	chunks := (len(ticks) + w.chunkSize - 1) / w.chunkSize
	for c := 0; c < chunks; c++ {
		start := c * w.chunkSize
		end := start + w.chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}

		query, args := buildUpsert(symbol, ticks[start:end])
		if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to upsert chunk %d/%d (%d rows committed) into %s: %w",
				c+1, chunks, start, symbol, err)
		}
	}

	w.logger.WithFields(logrus.Fields{
		"symbol":  symbol,
		"records": len(ticks),
		"chunks":  chunks,
	}).Debug("Ticks upserted")

	return nil
}

// buildUpsert renders one multi-row INSERT ... ON DUPLICATE KEY UPDATE statement
func buildUpsert(symbol string, ticks []models.Tick) (string, []interface{}) {
	var sb strings.Builder
	sb.Grow(128 + len(ticks)*14)

	sb.WriteString("INSERT INTO `")
	sb.WriteString(symbol)
	sb.WriteString("` (`Timestamp`, `BidPrice`, `AskPrice`, `BidVolume`, `AskVolume`) VALUES ")

	args := make([]interface{}, 0, len(ticks)*5)
	for i, t := range ticks {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, t.Timestamp, t.BidPrice, t.AskPrice, t.BidVolume, t.AskVolume)
	}

	sb.WriteString(" ON DUPLICATE KEY UPDATE " +
		"`BidPrice` = VALUES(`BidPrice`), " +
		"`AskPrice` = VALUES(`AskPrice`), " +
		"`BidVolume` = VALUES(`BidVolume`), " +
		"`AskVolume` = VALUES(`AskVolume`)")

	return sb.String(), args
}
