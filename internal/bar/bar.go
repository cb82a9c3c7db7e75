// Package bar defines the decimal-precision OHLCV bar primitive that every
// other resolver package ultimately produces or consumes.
package bar

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PriceType selects which field of a HistoricalBar represents "the" price for
// conversion-rate purposes.
type PriceType int

const (
	PriceOpen PriceType = iota
	PriceHigh
	PriceLow
	PriceClose
	PriceNearest
)

// HistoricalBar is an immutable OHLCV candlestick.
type HistoricalBar struct {
	Duration  time.Duration
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// NewUnitBar returns the bar used whenever a conversion is requested between
// an asset and itself: flat 1.0 OHLC, no volume.
func NewUnitBar(ts time.Time) HistoricalBar {
	one := decimal.NewFromInt(1)
	return HistoricalBar{
		Duration:  time.Minute,
		Timestamp: ts,
		Open:      one,
		High:      one,
		Low:       one,
		Close:     one,
		Volume:    decimal.Zero,
	}
}

// NewConstantBar returns a bar whose OHLC are all equal to price, used for
// alias edges and fiat rates.
func NewConstantBar(ts time.Time, duration time.Duration, price, volume decimal.Decimal) HistoricalBar {
	return HistoricalBar{
		Duration:  duration,
		Timestamp: ts,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    volume,
	}
}

// Validate enforces the §3 data-model invariants for a HistoricalBar.
func (b HistoricalBar) Validate() error {
	if b.Duration <= 0 {
		return errors.New("bar: duration must be positive")
	}
	if b.Volume.IsNegative() {
		return errors.New("bar: volume must be non-negative")
	}
	minOC := decimal.Min(b.Open, b.Close)
	maxOC := decimal.Max(b.Open, b.Close)
	if b.Low.GreaterThan(minOC) {
		return errors.New("bar: low must be <= min(open, close)")
	}
	if maxOC.GreaterThan(b.High) {
		return errors.New("bar: max(open, close) must be <= high")
	}
	return nil
}

// Price selects the price field named by pt. PriceNearest picks whichever of
// the bar's open/close edge is temporally closer to target.
func (b HistoricalBar) Price(pt PriceType, target time.Time) decimal.Decimal {
	switch pt {
	case PriceOpen:
		return b.Open
	case PriceHigh:
		return b.High
	case PriceLow:
		return b.Low
	case PriceClose:
		return b.Close
	case PriceNearest:
		mid := b.Timestamp.Add(b.Duration / 2)
		if target.Before(mid) {
			return b.Open
		}
		return b.Close
	default:
		return b.Close
	}
}

// MultiplyBars composes the bars of a multi-hop route (§4.6.3 step 9) into a
// single synthetic bar: OHLC fields multiply, volume sums, duration takes the
// max hop duration, and the timestamp is pinned to the original query time.
// It returns false if hops is empty.
func MultiplyBars(hops []HistoricalBar, queryTimestamp time.Time) (HistoricalBar, bool) {
	if len(hops) == 0 {
		return HistoricalBar{}, false
	}

	result := HistoricalBar{
		Timestamp: queryTimestamp,
		Open:      decimal.NewFromInt(1),
		High:      decimal.NewFromInt(1),
		Low:       decimal.NewFromInt(1),
		Close:     decimal.NewFromInt(1),
		Volume:    decimal.Zero,
	}

	for _, hop := range hops {
		result.Open = result.Open.Mul(hop.Open)
		result.High = result.High.Mul(hop.High)
		result.Low = result.Low.Mul(hop.Low)
		result.Close = result.Close.Mul(hop.Close)
		result.Volume = result.Volume.Add(hop.Volume)
		if hop.Duration > result.Duration {
			result.Duration = hop.Duration
		}
	}

	return result, true
}
