package cache

import (
	"testing"
	"time"

	"github.com/rawblock/dali-resolver/internal/bar"
	"github.com/shopspring/decimal"
)

func TestBarCachePutAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	bc := NewBarCache(store, "")

	ts := time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)
	key := bar.AssetPairAndTimestamp{Timestamp: ts, FromAsset: "BTC", ToAsset: "USD", Exchange: "Kraken"}
	want := bar.HistoricalBar{
		Duration:  time.Minute,
		Timestamp: ts,
		Open:      decimal.NewFromInt(30000),
		High:      decimal.NewFromInt(30500),
		Low:       decimal.NewFromInt(29500),
		Close:     decimal.NewFromInt(30200),
		Volume:    decimal.NewFromInt(12),
	}

	if err := bc.Put(key, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := bc.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Close.Equal(want.Close) || !got.Open.Equal(want.Open) {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestBarCacheMiss(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	bc := NewBarCache(store, "")

	_, ok, err := bc.Get(bar.AssetPairAndTimestamp{FromAsset: "ETH", ToAsset: "USD", Exchange: "Kraken"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected cache miss")
	}
}

func TestBarCacheModifierNamespacesKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	locked := NewBarCache(store, "-locked")
	unlocked := NewBarCache(store, "")

	ts := time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)
	key := bar.AssetPairAndTimestamp{Timestamp: ts, FromAsset: "BTC", ToAsset: "USD", Exchange: "Kraken"}

	if err := locked.Put(key, bar.NewUnitBar(ts)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, ok, err := unlocked.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected unlocked cache to miss a key only written under the locked modifier")
	}
}

func TestBundleCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	bundleCache := NewBundleCache(store, "")

	ts := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	key := bar.AssetPairAndTimestamp{Timestamp: ts, FromAsset: "BTC", ToAsset: "USD", Exchange: "Kraken"}
	bars := []bar.HistoricalBar{bar.NewUnitBar(ts), bar.NewUnitBar(ts.Add(time.Minute))}

	if err := bundleCache.Put(key, bars); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := bundleCache.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected bundle cache hit")
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
}

func TestBundleCacheKeyDoesNotCollideWithBarCache(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	bc := NewBarCache(store, "")
	bundleCache := NewBundleCache(store, "")

	ts := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	key := bar.AssetPairAndTimestamp{Timestamp: ts, FromAsset: "BTC", ToAsset: "USD", Exchange: "Kraken"}

	if err := bc.Put(key, bar.NewUnitBar(ts)); err != nil {
		t.Fatalf("bar cache Put: %v", err)
	}
	if err := bundleCache.Put(key, []bar.HistoricalBar{bar.NewUnitBar(ts), bar.NewUnitBar(ts)}); err != nil {
		t.Fatalf("bundle cache Put: %v", err)
	}

	singleGot, ok, err := bc.Get(key)
	if err != nil || !ok {
		t.Fatalf("bar cache Get: ok=%v err=%v", ok, err)
	}
	if !singleGot.Close.Equal(bar.NewUnitBar(ts).Close) {
		t.Errorf("single bar got corrupted by bundle write")
	}

	bundleGot, ok, err := bundleCache.Get(key)
	if err != nil || !ok {
		t.Fatalf("bundle cache Get: ok=%v err=%v", ok, err)
	}
	if len(bundleGot) != 2 {
		t.Errorf("len(bundleGot) = %d, want 2", len(bundleGot))
	}
}
