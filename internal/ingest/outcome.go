package ingest

import (
	"time"

	"github.com/tick-archive/pkg/models"
)

// UnitResult is the outcome of one (date, symbol) unit of work
type UnitResult struct {
	Date     time.Time
	Symbol   string
	Index    int
	Outcome  models.UnitOutcome
	Records  int
	Duration time.Duration
	Err      error
}

// Advances reports whether the unit moves the checkpoint forward
func (r UnitResult) Advances() bool {
	return r.Outcome == models.UnitSucceeded || r.Outcome == models.UnitDegradedEmpty
}

// Event converts the result into an observer event
func (r UnitResult) Event(finishedAt time.Time) models.UnitEvent {
	event := models.UnitEvent{
		Date:       r.Date,
		Symbol:     r.Symbol,
		Outcome:    r.Outcome,
		Records:    r.Records,
		Duration:   r.Duration,
		FinishedAt: finishedAt,
	}
	if r.Err != nil {
		event.Error = r.Err.Error()
	}
	return event
}

// Summary describes a finished run
type Summary struct {
	Units          int
	Succeeded      int
	DegradedEmpty  int
	Failed         int
	Records        int
	SaveFailures   int
	HeldCheckpoint bool
	Checkpoint     *models.Checkpoint
	State          State
}

func (s *Summary) record(r UnitResult) {
	s.Units++
	s.Records += r.Records
	switch r.Outcome {
	case models.UnitSucceeded:
		s.Succeeded++
	case models.UnitDegradedEmpty:
		s.DegradedEmpty++
	case models.UnitFailed:
		s.Failed++
	}
}
