package models

import "time"

// TableStats holds row statistics of one symbol table
type TableStats struct {
	Exists         bool  `json:"exists"`
	Rows           int64 `json:"rows"`
	FirstTimestamp int64 `json:"first_timestamp,omitempty"`
	LastTimestamp  int64 `json:"last_timestamp,omitempty"`
}

// SymbolProgress represents the ingestion state of a single symbol
type SymbolProgress struct {
	Symbol     string     `json:"symbol"`
	AssetClass AssetClass `json:"asset_class"`
	TableStats
	FirstTime *time.Time `json:"first_time,omitempty"`
	LastTime  *time.Time `json:"last_time,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Progress is the aggregate view served by the dashboard
type Progress struct {
	Checkpoint        *Checkpoint      `json:"checkpoint,omitempty"`
	StartDate         time.Time        `json:"start_date"`
	EndDate           time.Time        `json:"end_date"`
	TotalUnits        int              `json:"total_units"`
	CompletedUnits    int              `json:"completed_units"`
	CompletionPercent float64          `json:"completion_percent"`
	TotalRows         int64            `json:"total_rows"`
	Symbols           []SymbolProgress `json:"symbols"`
	GeneratedAt       time.Time        `json:"generated_at"`
}
