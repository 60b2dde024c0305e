package models

// AssetClass represents the type of instrument a catalog symbol belongs to
type AssetClass string

const (
	AssetClassForex  AssetClass = "forex"
	AssetClassMetal  AssetClass = "metal"
	AssetClassCrypto AssetClass = "crypto"
)
