// Package pairconverter builds and queries the per-exchange time-indexed
// market graphs that answer "what was this asset worth in that asset, on
// that exchange, at that time".
package pairconverter

import (
	"time"

	"github.com/rawblock/dali-resolver/internal/bar"
)

// AliasRecord is a fixed-rate conversion edge installed at graph
// construction time, e.g. a wrapped token that always trades 1:1 against its
// underlying. Exchange "UNIVERSAL" applies the alias to every exchange's
// graph rather than just one.
type AliasRecord struct {
	Exchange string
	From     string
	To       string
	Factor   float64
}

// Config parameterizes a PairConverter instance.
type Config struct {
	DefaultExchange     string
	ExchangeLocked      bool
	UntradeableAssets   map[string]struct{}
	Aliases             []AliasRecord
	CacheModifier       string
	FiatPriority        []string
	HistoricalPriceType bar.PriceType
	ForceRoutingPairs   map[[2]string]struct{}
	AlternativeMarkets  map[[2]string]string
}

// Manifest describes the universe of assets a pair converter must be able to
// price, computed once from the full transaction set before resolution.
type Manifest struct {
	FirstTransactionTime time.Time
	Assets                map[string]struct{}
	NativeFiat            string
}

// quotePriority ranks a quote asset for edge-weight purposes: fiats first
// (by configured priority order), then known stablecoins, then everything
// else. Lower is better (preferred quote).
func quotePriority(asset string, fiatPriority []string) (int, bool) {
	for i, f := range fiatPriority {
		if f == asset {
			return i + 1, true
		}
	}
	if _, ok := stablecoins[asset]; ok {
		return len(fiatPriority) + 100, true
	}
	return 0, false
}

var stablecoins = map[string]struct{}{
	"USDT": {},
	"USDC": {},
	"DAI":  {},
	"BUSD": {},
	"TUSD": {},
}

const (
	// altMarketWeightBonus nudges an alternative-market edge to a slightly
	// worse (higher) weight than its quote's priority rank, so native
	// pairs win ties against alternative-exchange routing per §4.6.1 step 4.
	altMarketWeightBonus = 0.5
	// otherQuoteWeight is the weight assigned to a quote asset that is
	// neither a priority fiat nor a known stablecoin.
	otherQuoteWeight = 1000.0
)
