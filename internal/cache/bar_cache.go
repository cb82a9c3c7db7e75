package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rawblock/dali-resolver/internal/bar"
	"github.com/shopspring/decimal"
)

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// BarCache is a typed wrapper around Store for single HistoricalBar lookups,
// keyed by an asset pair, exchange, and minute-floored timestamp.
type BarCache struct {
	store    Store
	modifier string
}

// NewBarCache wraps store. modifier is appended to every key, letting callers
// namespace a cache per configuration (e.g. "-locked" for exchange-locked
// pair converters).
func NewBarCache(store Store, modifier string) *BarCache {
	return &BarCache{store: store, modifier: modifier}
}

type cachedBar struct {
	DurationNS int64  `json:"duration_ns"`
	TimestampU int64  `json:"timestamp_unix"`
	Open       string `json:"open"`
	High       string `json:"high"`
	Low        string `json:"low"`
	Close      string `json:"close"`
	Volume     string `json:"volume"`
}

func (c *BarCache) key(k bar.AssetPairAndTimestamp) string {
	floored := k.FloorToMinute()
	return fmt.Sprintf("bar|%s|%s|%s|%d%s", floored.Exchange, floored.FromAsset, floored.ToAsset, floored.Timestamp.Unix(), c.modifier)
}

// Get returns the bar stored for k, if any.
func (c *BarCache) Get(k bar.AssetPairAndTimestamp) (bar.HistoricalBar, bool, error) {
	raw, err := c.store.Load(c.key(k))
	if err != nil {
		if err == ErrNotFound {
			return bar.HistoricalBar{}, false, nil
		}
		return bar.HistoricalBar{}, false, fmt.Errorf("bar cache: get: %w", err)
	}

	var cb cachedBar
	if err := json.Unmarshal(raw, &cb); err != nil {
		return bar.HistoricalBar{}, false, fmt.Errorf("bar cache: decode: %w", err)
	}
	decoded, err := decodeBar(cb)
	if err != nil {
		return bar.HistoricalBar{}, false, fmt.Errorf("bar cache: decode: %w", err)
	}
	return decoded, true, nil
}

// Put stores b under k.
func (c *BarCache) Put(k bar.AssetPairAndTimestamp, b bar.HistoricalBar) error {
	cb := encodeBar(b)
	raw, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("bar cache: encode: %w", err)
	}
	if err := c.store.Save(c.key(k), raw); err != nil {
		return fmt.Errorf("bar cache: put: %w", err)
	}
	return nil
}

func encodeBar(b bar.HistoricalBar) cachedBar {
	return cachedBar{
		DurationNS: int64(b.Duration),
		TimestampU: b.Timestamp.Unix(),
		Open:       b.Open.String(),
		High:       b.High.String(),
		Low:        b.Low.String(),
		Close:      b.Close.String(),
		Volume:     b.Volume.String(),
	}
}

func decodeBar(cb cachedBar) (bar.HistoricalBar, error) {
	open, err := parseDecimal(cb.Open)
	if err != nil {
		return bar.HistoricalBar{}, err
	}
	high, err := parseDecimal(cb.High)
	if err != nil {
		return bar.HistoricalBar{}, err
	}
	low, err := parseDecimal(cb.Low)
	if err != nil {
		return bar.HistoricalBar{}, err
	}
	closeP, err := parseDecimal(cb.Close)
	if err != nil {
		return bar.HistoricalBar{}, err
	}
	volume, err := parseDecimal(cb.Volume)
	if err != nil {
		return bar.HistoricalBar{}, err
	}
	return bar.HistoricalBar{
		Duration:  time.Duration(cb.DurationNS),
		Timestamp: time.Unix(cb.TimestampU, 0).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
	}, nil
}
