package ingest

import (
	"time"

	"github.com/tick-archive/internal/symbols"
	"github.com/tick-archive/pkg/models"
)

// Position is a (date, catalog index) point in the iteration order
type Position struct {
	Date  time.Time
	Index int
}

// Before reports whether p sorts strictly before o
func (p Position) Before(o Position) bool {
	if !p.Date.Equal(o.Date) {
		return p.Date.Before(o.Date)
	}
	return p.Index < o.Index
}

// Resume computes the first unit to process. A nil checkpoint starts at
// (start, 0). Otherwise the successor of the checkpointed symbol is
// returned, rolling over to the next date after the last symbol. known is
// false when the checkpointed symbol is not in the catalog, in which case
// the checkpointed date restarts at index 0.
func Resume(cp *models.Checkpoint, start time.Time, catalog *symbols.Catalog) (pos Position, known bool) {
	if cp == nil {
		return Position{Date: day(start), Index: 0}, true
	}

	date := day(cp.Date)
	if cp.LastSymbol == "" {
		return Position{Date: date, Index: 0}, true
	}

	idx, ok := catalog.Index(cp.LastSymbol)
	if !ok {
		return Position{Date: date, Index: 0}, false
	}

	next := idx + 1
	if next >= catalog.Len() {
		return Position{Date: date.AddDate(0, 0, 1), Index: 0}, true
	}
	return Position{Date: date, Index: next}, true
}

// checkpointPosition maps a persisted checkpoint onto the current catalog.
// An empty or unknown symbol sorts before every symbol of its date.
func checkpointPosition(cp *models.Checkpoint, catalog *symbols.Catalog) Position {
	idx, ok := catalog.Index(cp.LastSymbol)
	if !ok {
		idx = -1
	}
	return Position{Date: day(cp.Date), Index: idx}
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
