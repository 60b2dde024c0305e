package models

// SymbolInfo describes one entry of the ingestion catalog
type SymbolInfo struct {
	Symbol     string     `json:"symbol"`
	Index      int        `json:"index"`
	AssetClass AssetClass `json:"asset_class"`
	// PointValue is the integer scale of upstream prices (price = raw / PointValue)
	PointValue float64 `json:"point_value"`
}
