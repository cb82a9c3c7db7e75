// Package exchange wraps a raw exchange API client with the retry,
// backoff, and throttling policy every historical-bar fetch must obey.
package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketType identifies the kind of market a Market describes. Only spot
// markets are in scope.
type MarketType string

// MarketTypeSpot is the only supported market type.
const MarketTypeSpot MarketType = "spot"

// Market describes one tradeable pair on an exchange.
type Market struct {
	ID    string
	Base  string
	Quote string
	Type  MarketType
}

// OHLCVRow is a single candle as returned by an exchange's OHLCV endpoint.
type OHLCVRow struct {
	TimestampMs int64
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
}

// Granularity is a supported OHLCV candle width, named the way exchange APIs
// conventionally name them ("1m", "1h", "1d", ...).
type Granularity struct {
	Name     string
	Duration time.Duration
}
