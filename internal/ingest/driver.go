package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tick-archive/internal/checkpoint"
	"github.com/tick-archive/internal/symbols"
	"github.com/tick-archive/pkg/models"
)

// ErrInvalidOptions is returned when the driver cannot be set up
var ErrInvalidOptions = errors.New("invalid ingest options")

// DefaultObserverTimeout bounds a single observer notification
const DefaultObserverTimeout = 5 * time.Second

// State is the driver's position in its state machine
type State string

const (
	StateIdle             State = "idle"
	StateResuming         State = "resuming"
	StateProcessingSymbol State = "processing-symbol"
	StateAdvancingSymbol  State = "advancing-symbol"
	StateAdvancingDate    State = "advancing-date"
	StateDone             State = "done"
	StateAborted          State = "aborted"
)

// Fetcher returns the ticks of symbol in [from, to)
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error)
}

// Writer upserts ticks into a symbol's table
type Writer interface {
	Write(ctx context.Context, symbol string, ticks []models.Tick) error
}

// Provisioner makes sure a symbol's table exists
type Provisioner interface {
	Ensure(ctx context.Context, symbol string) error
}

// CheckpointStore persists the resume point
type CheckpointStore interface {
	Load(ctx context.Context) (*models.Checkpoint, error)
	Save(ctx context.Context, date time.Time, symbol string) error
}

// Observer is notified after every unit of work
type Observer interface {
	UnitCompleted(ctx context.Context, event models.UnitEvent)
}

// Options configures a run
type Options struct {
	Start     time.Time
	End       time.Time
	Catalog   *symbols.Catalog
	UnitPause time.Duration
}

// Driver walks dates × symbols, fetching and writing one unit at a time
// and persisting a checkpoint after every unit that may be skipped on resume.
type Driver struct {
	opts      Options
	store     CheckpointStore
	tables    Provisioner
	fetcher   Fetcher
	writer    Writer
	observers []Observer
	logger    *logrus.Entry
	now       func() time.Time

	observerTimeout time.Duration

	mu        sync.RWMutex
	state     State
	lastSaved *Position
	held      bool
}

// NewDriver validates the options and collaborators and returns an idle driver
func NewDriver(opts Options, store CheckpointStore, tables Provisioner, fetcher Fetcher, writer Writer, logger *logrus.Logger, observers ...Observer) (*Driver, error) {
	var problems []string
	if opts.Start.IsZero() {
		problems = append(problems, "start date is required")
	}
	if opts.Catalog == nil || opts.Catalog.Len() == 0 {
		problems = append(problems, "catalog is empty")
	}
	if opts.End.IsZero() {
		problems = append(problems, "end date is required")
	} else if !opts.Start.IsZero() && day(opts.End).Before(day(opts.Start)) {
		problems = append(problems, "end date is before start date")
	}
	if store == nil || tables == nil || fetcher == nil || writer == nil {
		problems = append(problems, "missing collaborator")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, problems)
	}

	opts.Start = day(opts.Start)
	opts.End = day(opts.End)

	return &Driver{
		opts:      opts,
		store:     store,
		tables:    tables,
		fetcher:   fetcher,
		writer:    writer,
		observers: observers,
		logger:    logger.WithField("component", "ingest"),
		now:       time.Now,
		state:     StateIdle,

		observerTimeout: DefaultObserverTimeout,
	}, nil
}

// State returns the current state
func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run processes every unit from the resume position to the end date.
// Per-unit failures never abort the run; cancellation stops between units.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	summary := Summary{}
	runStart := d.now()

	d.setState(StateResuming)
	pos, err := d.resume(ctx)
	if err != nil {
		d.setState(StateAborted)
		summary.State = StateAborted
		return summary, err
	}

	end := d.lastDay()

	d.logger.WithFields(logrus.Fields{
		"start":   d.opts.Start.Format("2006-01-02"),
		"end":     end.Format("2006-01-02"),
		"resume":  pos.Date.Format("2006-01-02"),
		"symbol":  d.opts.Catalog.At(pos.Index).Symbol,
		"symbols": d.opts.Catalog.Len(),
	}).Info("Starting ingestion run")

	first := true
	for date := pos.Date; !date.After(end); date = date.AddDate(0, 0, 1) {
		startIdx := 0
		if date.Equal(pos.Date) {
			startIdx = pos.Index
		}

		for idx := startIdx; idx < d.opts.Catalog.Len(); idx++ {
			if err := ctx.Err(); err != nil {
				return d.interrupted(summary, err)
			}

			if !first && d.opts.UnitPause > 0 {
				select {
				case <-ctx.Done():
					return d.interrupted(summary, ctx.Err())
				case <-time.After(d.opts.UnitPause):
				}
			}
			first = false

			d.setState(StateProcessingSymbol)
			result := d.processUnit(ctx, date, idx)

			// a unit cut short by cancellation is not a visit
			if ctx.Err() != nil && result.Outcome != models.UnitSucceeded {
				return d.interrupted(summary, ctx.Err())
			}

			summary.record(result)
			d.logUnit(result)

			if result.Advances() {
				if err := d.saveCheckpoint(ctx, Position{Date: date, Index: idx}, result.Symbol); err != nil {
					summary.SaveFailures++
				}
			} else {
				d.holdCheckpoint(result)
			}

			d.notify(ctx, result)
			d.setState(StateAdvancingSymbol)
		}

		d.setState(StateAdvancingDate)
	}

	d.setState(StateDone)
	summary.State = StateDone
	summary.Checkpoint = d.checkpoint()
	summary.HeldCheckpoint = d.isHeld()

	d.logger.WithFields(logrus.Fields{
		"units":          summary.Units,
		"succeeded":      summary.Succeeded,
		"degraded_empty": summary.DegradedEmpty,
		"failed":         summary.Failed,
		"records":        summary.Records,
		"save_failures":  summary.SaveFailures,
		"duration":       d.now().Sub(runStart).Round(time.Millisecond),
	}).Info("Ingestion run complete")

	return summary, nil
}

// lastDay is the configured end date, moved back to the last day that has
// fully ended. A day still in progress would be checkpointed half-fetched.
func (d *Driver) lastDay() time.Time {
	last := day(d.now()).AddDate(0, 0, -1)
	if d.opts.End.After(last) {
		d.logger.WithFields(logrus.Fields{
			"end":  d.opts.End.Format("2006-01-02"),
			"last": last.Format("2006-01-02"),
		}).Warn("End date has not finished yet, stopping at the last complete day")
		return last
	}
	return d.opts.End
}

func (d *Driver) interrupted(summary Summary, err error) (Summary, error) {
	d.setState(StateIdle)
	summary.State = StateIdle
	summary.Checkpoint = d.checkpoint()
	summary.HeldCheckpoint = d.isHeld()
	d.logger.WithField("units", summary.Units).Warn("Ingestion run interrupted")
	return summary, err
}

// resume loads the checkpoint and computes the first unit to process
func (d *Driver) resume(ctx context.Context) (Position, error) {
	cp, err := d.store.Load(ctx)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		d.logger.Info("No checkpoint found, starting from the beginning")
		cp = nil
	case errors.Is(err, checkpoint.ErrCorrupt):
		d.logger.WithError(err).Warn("Checkpoint unusable, starting from the beginning")
		cp = nil
	case err != nil:
		return Position{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	pos, known := Resume(cp, d.opts.Start, d.opts.Catalog)
	if cp != nil {
		saved := checkpointPosition(cp, d.opts.Catalog)
		d.lastSaved = &saved

		if !known {
			d.logger.WithFields(logrus.Fields{
				"date":   cp.Date.Format("2006-01-02"),
				"symbol": cp.LastSymbol,
			}).Warn("Checkpointed symbol is not in the catalog, restarting its date")
		}
	}

	if pos.Date.Before(d.opts.Start) {
		pos = Position{Date: d.opts.Start, Index: 0}
	}

	return pos, nil
}

// processUnit fetches and writes one (date, symbol) window
func (d *Driver) processUnit(ctx context.Context, date time.Time, idx int) UnitResult {
	info := d.opts.Catalog.At(idx)
	started := d.now()
	result := UnitResult{Date: date, Symbol: info.Symbol, Index: idx}

	finish := func(outcome models.UnitOutcome, records int, err error) UnitResult {
		result.Outcome = outcome
		result.Records = records
		result.Err = err
		result.Duration = d.now().Sub(started)
		return result
	}

	if err := d.tables.Ensure(ctx, info.Symbol); err != nil {
		return finish(models.UnitFailed, 0, fmt.Errorf("failed to ensure table: %w", err))
	}

	ticks, err := d.fetcher.Fetch(ctx, info.Symbol, date, date.AddDate(0, 0, 1))
	if err != nil {
		return finish(models.UnitDegradedEmpty, 0, fmt.Errorf("fetch failed: %w", err))
	}
	if len(ticks) == 0 {
		return finish(models.UnitDegradedEmpty, 0, nil)
	}

	if err := d.writer.Write(ctx, info.Symbol, ticks); err != nil {
		return finish(models.UnitFailed, 0, fmt.Errorf("write failed: %w", err))
	}

	return finish(models.UnitSucceeded, len(ticks), nil)
}

// saveCheckpoint persists pos, retrying once. Regressions and saves after a
// failed unit are refused.
func (d *Driver) saveCheckpoint(ctx context.Context, pos Position, symbol string) error {
	log := d.logger.WithFields(logrus.Fields{
		"date":   pos.Date.Format("2006-01-02"),
		"symbol": symbol,
	})

	if d.isHeld() {
		log.Debug("Checkpoint held at earlier failed unit")
		return nil
	}

	d.mu.RLock()
	regress := d.lastSaved != nil && pos.Before(*d.lastSaved)
	d.mu.RUnlock()
	if regress {
		log.Warn("Refusing to move checkpoint backwards")
		return nil
	}

	// a unit that finished must be recorded even if cancellation just arrived
	saveCtx := context.WithoutCancel(ctx)

	err := d.store.Save(saveCtx, pos.Date, symbol)
	if err != nil {
		log.WithError(err).Warn("Checkpoint save failed, retrying")
		err = d.store.Save(saveCtx, pos.Date, symbol)
	}
	if err != nil {
		log.WithError(err).Error("Checkpoint save failed twice, units may be reprocessed on resume")
		return err
	}

	d.mu.Lock()
	d.lastSaved = &pos
	d.mu.Unlock()
	return nil
}

// holdCheckpoint freezes the checkpoint so the next run resumes at the failed unit
func (d *Driver) holdCheckpoint(result UnitResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.held {
		d.held = true
		d.logger.WithFields(logrus.Fields{
			"date":   result.Date.Format("2006-01-02"),
			"symbol": result.Symbol,
		}).Warn("Checkpoint held until next run")
	}
}

func (d *Driver) isHeld() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.held
}

func (d *Driver) checkpoint() *models.Checkpoint {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.lastSaved == nil {
		return nil
	}
	cp := &models.Checkpoint{Date: d.lastSaved.Date}
	if d.lastSaved.Index >= 0 && d.lastSaved.Index < d.opts.Catalog.Len() {
		cp.LastSymbol = d.opts.Catalog.At(d.lastSaved.Index).Symbol
	}
	return cp
}

func (d *Driver) logUnit(r UnitResult) {
	entry := d.logger.WithFields(logrus.Fields{
		"date":     r.Date.Format("2006-01-02"),
		"symbol":   r.Symbol,
		"outcome":  r.Outcome,
		"records":  r.Records,
		"duration": r.Duration.Round(time.Millisecond),
	})

	switch {
	case r.Outcome == models.UnitFailed:
		entry.WithError(r.Err).Error("Unit failed")
	case r.Err != nil:
		entry.WithError(r.Err).Warn("Unit degraded to empty")
	default:
		entry.Info("Unit complete")
	}
}

func (d *Driver) notify(ctx context.Context, r UnitResult) {
	if len(d.observers) == 0 {
		return
	}
	event := r.Event(d.now().UTC())
	for _, o := range d.observers {
		octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.observerTimeout)
		o.UnitCompleted(octx, event)
		cancel()
	}
}
