package symbols

import (
	"strings"

	"github.com/tick-archive/pkg/models"
)

var metalPrefixes = []string{"xau", "xag", "xpt", "xpd"}

var cryptoBases = []string{
	"btc", "eth", "ltc", "xrp", "bch", "eos", "xlm", "ada", "dot", "lnk",
	"uni", "sol", "doge", "trx", "bat", "mkr", "cmp", "aav", "yfi",
}

// knownPointValues holds the datafeed price scale of common instruments
var knownPointValues = map[string]float64{
	"eurusd": 1e5, "gbpusd": 1e5, "audusd": 1e5, "nzdusd": 1e5,
	"usdchf": 1e5, "usdcad": 1e5, "eurgbp": 1e5, "eurchf": 1e5,
	"usdjpy": 1e3, "eurjpy": 1e3, "gbpjpy": 1e3, "audjpy": 1e3,
	"chfjpy": 1e3, "cadjpy": 1e3, "nzdjpy": 1e3,
	"xauusd": 1e3, "xagusd": 1e3, "xptusd": 1e3, "xpdusd": 1e3,
	"btcusd": 1e1, "ethusd": 1e1, "ltcusd": 1e2, "xrpusd": 1e4,
}

// Classify determines the asset class of a lowercase symbol
func Classify(symbol string) models.AssetClass {
	for _, p := range metalPrefixes {
		if strings.HasPrefix(symbol, p) {
			return models.AssetClassMetal
		}
	}

	for _, base := range cryptoBases {
		if strings.HasPrefix(symbol, base) {
			return models.AssetClassCrypto
		}
	}

	if strings.HasSuffix(symbol, "usdt") {
		return models.AssetClassCrypto
	}

	return models.AssetClassForex
}

// PointValue returns the integer scale the datafeed uses for symbol prices
func PointValue(symbol string, class models.AssetClass) float64 {
	if v, ok := knownPointValues[symbol]; ok {
		return v
	}

	switch class {
	case models.AssetClassMetal:
		return 1e3
	case models.AssetClassCrypto:
		return 1e1
	}

	// JPY-quoted pairs carry three decimals
	if strings.HasSuffix(symbol, "jpy") {
		return 1e3
	}
	return 1e5
}
