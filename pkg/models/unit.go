package models

import "time"

// UnitOutcome classifies how a (date, symbol) unit of work finished
type UnitOutcome string

const (
	// UnitSucceeded means a non-empty fetch was fully written
	UnitSucceeded UnitOutcome = "success"
	// UnitDegradedEmpty means the fetch returned nothing or failed; the unit still counts as visited
	UnitDegradedEmpty UnitOutcome = "degraded-empty"
	// UnitFailed means storage failed; the checkpoint is not advanced
	UnitFailed UnitOutcome = "failed"
)

// UnitEvent is emitted after every unit of work
type UnitEvent struct {
	Date       time.Time     `json:"date"`
	Symbol     string        `json:"symbol"`
	Outcome    UnitOutcome   `json:"outcome"`
	Records    int           `json:"records"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}
