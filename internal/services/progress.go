package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tick-archive/internal/checkpoint"
	"github.com/tick-archive/internal/symbols"
	"github.com/tick-archive/pkg/config"
	"github.com/tick-archive/pkg/models"
)

// StatsSource reports per-symbol table statistics
type StatsSource interface {
	TableStats(ctx context.Context, symbol string) (models.TableStats, error)
}

// CheckpointReader loads the persisted checkpoint
type CheckpointReader interface {
	Load(ctx context.Context) (*models.Checkpoint, error)
}

// ProgressCache stores computed progress between requests
type ProgressCache interface {
	GetProgress(ctx context.Context) (*models.Progress, error)
	SetProgress(ctx context.Context, progress *models.Progress) error
}

// ProgressService computes the dashboard's aggregate ingestion statistics
type ProgressService struct {
	catalog *symbols.Catalog
	ingest  *config.IngestConfig
	stats   StatsSource
	store   CheckpointReader
	cache   ProgressCache
	logger  *logrus.Entry
	now     func() time.Time
}

// NewProgressService creates a progress service. cache may be nil.
func NewProgressService(catalog *symbols.Catalog, ingest *config.IngestConfig, stats StatsSource, store CheckpointReader, cache ProgressCache, logger *logrus.Logger) *ProgressService {
	return &ProgressService{
		catalog: catalog,
		ingest:  ingest,
		stats:   stats,
		store:   store,
		cache:   cache,
		logger:  logger.WithField("component", "progress"),
		now:     time.Now,
	}
}

// Progress returns the current progress, from cache when available
func (s *ProgressService) Progress(ctx context.Context) (*models.Progress, error) {
	if s.cache != nil {
		cached, err := s.cache.GetProgress(ctx)
		if err != nil {
			s.logger.WithError(err).Debug("Progress cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	progress, err := s.Compute(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetProgress(ctx, progress); err != nil {
			s.logger.WithError(err).Debug("Progress cache write failed")
		}
	}

	return progress, nil
}

// Compute reads the checkpoint and every symbol table. A symbol whose
// statistics cannot be read is reported with an error instead of failing
// the whole view.
func (s *ProgressService) Compute(ctx context.Context) (*models.Progress, error) {
	now := s.now().UTC()
	progress := &models.Progress{
		Symbols:     make([]models.SymbolProgress, 0, s.catalog.Len()),
		GeneratedAt: now,
	}

	cp, err := s.store.Load(ctx)
	switch {
	case err == nil:
		progress.Checkpoint = cp
	case errors.Is(err, checkpoint.ErrNotFound):
	case errors.Is(err, checkpoint.ErrCorrupt):
		s.logger.WithError(err).Warn("Checkpoint unreadable, reporting no progress")
	default:
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if start, err := s.ingest.Start(); err == nil {
		end, err := s.ingest.End(now)
		if err == nil && !end.Before(start) {
			progress.StartDate = start
			progress.EndDate = end
			progress.TotalUnits = TotalUnits(start, end, s.catalog.Len())
			progress.CompletedUnits = CompletedUnits(cp, start, end, s.catalog)
			if progress.TotalUnits > 0 {
				progress.CompletionPercent = float64(progress.CompletedUnits) / float64(progress.TotalUnits) * 100
			}
		}
	}

	for _, info := range s.catalog.Symbols() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sp := models.SymbolProgress{
			Symbol:     info.Symbol,
			AssetClass: info.AssetClass,
		}

		stats, err := s.stats.TableStats(ctx, info.Symbol)
		if err != nil {
			s.logger.WithError(err).WithField("symbol", info.Symbol).Warn("Failed to read table stats")
			sp.Error = err.Error()
		} else {
			sp.TableStats = stats
			if stats.Rows > 0 {
				first := time.UnixMilli(stats.FirstTimestamp).UTC()
				last := time.UnixMilli(stats.LastTimestamp).UTC()
				sp.FirstTime = &first
				sp.LastTime = &last
			}
			progress.TotalRows += stats.Rows
		}

		progress.Symbols = append(progress.Symbols, sp)
	}

	return progress, nil
}

// TotalUnits is the number of (date, symbol) units in [start, end]
func TotalUnits(start, end time.Time, symbolCount int) int {
	days := daysBetween(start, end) + 1
	if days <= 0 || symbolCount <= 0 {
		return 0
	}
	return days * symbolCount
}

// CompletedUnits counts units up to and including the checkpoint, clamped
// to [0, total]. An empty or unknown checkpoint symbol counts none of its date.
func CompletedUnits(cp *models.Checkpoint, start, end time.Time, catalog *symbols.Catalog) int {
	if cp == nil {
		return 0
	}

	idx := -1
	if i, ok := catalog.Index(cp.LastSymbol); ok {
		idx = i
	}

	completed := daysBetween(start, cp.Date)*catalog.Len() + idx + 1
	total := TotalUnits(start, end, catalog.Len())

	switch {
	case completed < 0:
		return 0
	case completed > total:
		return total
	default:
		return completed
	}
}

func daysBetween(from, to time.Time) int {
	return int(config.Day(to).Sub(config.Day(from)).Hours() / 24)
}
