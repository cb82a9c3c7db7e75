package csvbulk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rawblock/dali-resolver/internal/cache"
	"github.com/shopspring/decimal"
)

func newTestSubsystem(t *testing.T) (*Subsystem, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := cache.NewFileStore(filepath.Join(dir, "index"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	idx, err := NewChunkIndex(store)
	if err != nil {
		t.Fatalf("NewChunkIndex: %v", err)
	}

	chunkDir := filepath.Join(dir, "chunks")
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	srcPath := filepath.Join(dir, "src.csv")
	if err := os.WriteFile(srcPath, []byte("0,10,12,9,11,100,5\n60,11,13,10,12,110,6\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sub := NewSubsystem(chunkDir, idx, []AliasRecord{{From: "XBT", To: "BTC"}})
	if err := sub.ChunkAll(map[string]string{"BTCUSD,1": srcPath}, "BTC", "USD", 1); err != nil {
		t.Fatalf("ChunkAll: %v", err)
	}
	return sub, chunkDir
}

func TestFindHistoricalBarsSingle(t *testing.T) {
	sub, _ := newTestSubsystem(t)

	bars, ok, err := sub.FindHistoricalBars("BTC", "USD", time.Unix(60, 0).UTC(), false, 1)
	if err != nil {
		t.Fatalf("FindHistoricalBars: %v", err)
	}
	if !ok {
		t.Fatal("expected a bar to be found")
	}
	if len(bars) != 1 {
		t.Fatalf("len(bars) = %d, want 1", len(bars))
	}
	if !bars[0].Close.Equal(decimal.NewFromInt(12)) {
		t.Errorf("Close = %s, want 12", bars[0].Close)
	}
}

func TestFindHistoricalBarsAlias(t *testing.T) {
	sub, _ := newTestSubsystem(t)

	bars, ok, err := sub.FindHistoricalBars("XBT", "USD", time.Unix(0, 0).UTC(), false, 1)
	if err != nil {
		t.Fatalf("FindHistoricalBars: %v", err)
	}
	if !ok || len(bars) != 1 {
		t.Fatalf("expected alias lookup to resolve to the BTC chunk, got ok=%v bars=%v", ok, bars)
	}
}

func TestFindHistoricalBarsBundle(t *testing.T) {
	sub, _ := newTestSubsystem(t)

	bars, ok, err := sub.FindHistoricalBars("BTC", "USD", time.Unix(0, 0).UTC(), true, 1)
	if err != nil {
		t.Fatalf("FindHistoricalBars: %v", err)
	}
	if !ok {
		t.Fatal("expected bundle to be found")
	}
	if len(bars) != 2 {
		t.Fatalf("len(bars) = %d, want 2 (whole chunk)", len(bars))
	}
}

func TestFindHistoricalBarsMiss(t *testing.T) {
	sub, _ := newTestSubsystem(t)

	_, ok, err := sub.FindHistoricalBars("ETH", "USD", time.Unix(0, 0).UTC(), false, 1)
	if err != nil {
		t.Fatalf("FindHistoricalBars: %v", err)
	}
	if ok {
		t.Fatal("expected no data for an uncharged pair")
	}
}
