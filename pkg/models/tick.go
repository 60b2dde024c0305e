package models

// Tick is a single timestamped quote. Timestamp (ms since epoch) is the
// natural key within a symbol's table.
type Tick struct {
	Timestamp int64   `json:"timestamp"`
	BidPrice  float64 `json:"bid_price"`
	AskPrice  float64 `json:"ask_price"`
	BidVolume float64 `json:"bid_volume"`
	AskVolume float64 `json:"ask_volume"`
}
