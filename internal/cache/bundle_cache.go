package cache

import (
	"encoding/json"
	"fmt"

	"github.com/rawblock/dali-resolver/internal/bar"
)

// BundleCache stores a set of historical bars resolved together for one
// asset pair (e.g. a whole week pulled from a CSV archive in one shot). Its
// keys carry a "bundle|" prefix and the key's Unix milliseconds plus 1, where
// BarCache keys carry "bar|" and Unix seconds, so that a single bar and a
// bundle covering the same instant never collide in the same underlying Store.
type BundleCache struct {
	store    Store
	modifier string
}

// NewBundleCache wraps store with the given key modifier.
func NewBundleCache(store Store, modifier string) *BundleCache {
	return &BundleCache{store: store, modifier: modifier}
}

func (c *BundleCache) key(k bar.AssetPairAndTimestamp) string {
	floored := k.FloorToMinute()
	return fmt.Sprintf("bundle|%s|%s|%s|%d%s", floored.Exchange, floored.FromAsset, floored.ToAsset, floored.Timestamp.UnixMilli()+1, c.modifier)
}

// Get returns the bundle of bars stored for k, if any.
func (c *BundleCache) Get(k bar.AssetPairAndTimestamp) ([]bar.HistoricalBar, bool, error) {
	raw, err := c.store.Load(c.key(k))
	if err != nil {
		if err == ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("bundle cache: get: %w", err)
	}

	var cbs []cachedBar
	if err := json.Unmarshal(raw, &cbs); err != nil {
		return nil, false, fmt.Errorf("bundle cache: decode: %w", err)
	}
	out := make([]bar.HistoricalBar, 0, len(cbs))
	for _, cb := range cbs {
		decoded, err := decodeBar(cb)
		if err != nil {
			return nil, false, fmt.Errorf("bundle cache: decode: %w", err)
		}
		out = append(out, decoded)
	}
	return out, true, nil
}

// Put stores bars as a single bundle under k.
func (c *BundleCache) Put(k bar.AssetPairAndTimestamp, bars []bar.HistoricalBar) error {
	cbs := make([]cachedBar, 0, len(bars))
	for _, b := range bars {
		cbs = append(cbs, encodeBar(b))
	}
	raw, err := json.Marshal(cbs)
	if err != nil {
		return fmt.Errorf("bundle cache: encode: %w", err)
	}
	if err := c.store.Save(c.key(k), raw); err != nil {
		return fmt.Errorf("bundle cache: put: %w", err)
	}
	return nil
}

// LoadFrom replays every bar of the bundles previously saved to store under
// the given keys into a BarCache, each bar keyed at its own timestamp, used
// when warming a fresh cache instance from persisted bundle data at startup.
func LoadFrom(store Store, keys []bar.AssetPairAndTimestamp, modifier string) (*BarCache, error) {
	bc := NewBarCache(store, modifier)
	bundleCache := NewBundleCache(store, modifier)
	for _, k := range keys {
		bars, ok, err := bundleCache.Get(k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, b := range bars {
			barKey := k
			barKey.Timestamp = b.Timestamp
			if err := bc.Put(barKey, b); err != nil {
				return nil, err
			}
		}
	}
	return bc, nil
}

// SaveTo persists every (key, bar) pair to store as individual bar cache
// entries, used when flushing an in-memory working set at shutdown.
func SaveTo(store Store, entries map[bar.AssetPairAndTimestamp]bar.HistoricalBar, modifier string) error {
	bc := NewBarCache(store, modifier)
	for k, b := range entries {
		if err := bc.Put(k, b); err != nil {
			return err
		}
	}
	return nil
}
