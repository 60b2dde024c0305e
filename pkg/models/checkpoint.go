package models

import "time"

// Checkpoint is the durable resume point of the ingestion run.
// LastSymbol is empty when no symbol has been processed yet for Date.
type Checkpoint struct {
	Date       time.Time `json:"date"`
	LastSymbol string    `json:"lastSymbol,omitempty"`
}
