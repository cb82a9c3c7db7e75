package csvbulk

import (
	"fmt"
	"time"

	"github.com/rawblock/dali-resolver/internal/bar"
	"github.com/shopspring/decimal"
)

// AliasRecord maps an alternate ticker to its canonical archive pair name,
// e.g. an exchange that renames a token after a rebrand.
type AliasRecord struct {
	From string
	To   string
}

// Subsystem is the bulk-pricing entry point a pair converter queries: given
// an asset pair and timestamp, find the historical bar(s) from whatever
// chunked CSV data is locally available.
type Subsystem struct {
	baseDir string
	index   *ChunkIndex
	aliases map[string]string
}

// NewSubsystem wires baseDir (where chunk files live) and index (the
// persisted chunk coverage map) into a queryable subsystem. aliases rewrites
// a from-ticker to the canonical ticker the archive actually uses.
func NewSubsystem(baseDir string, index *ChunkIndex, aliases []AliasRecord) *Subsystem {
	aliasMap := make(map[string]string, len(aliases))
	for _, a := range aliases {
		aliasMap[a.From] = a.To
	}
	return &Subsystem{baseDir: baseDir, index: index, aliases: aliasMap}
}

func (s *Subsystem) canonical(asset string) string {
	if to, ok := s.aliases[asset]; ok {
		return to
	}
	return asset
}

// ChunkAll chunks every source CSV path among sourceFiles' values (the map
// keys are not read) into this subsystem's chunk directory as base/quote
// candles of the given width, saving the index once all files are chunked.
func (s *Subsystem) ChunkAll(sourceFiles map[string]string, base, quote string, minutes int64) error {
	chunker := NewChunker(s.baseDir, s.index)
	for _, srcPath := range sourceFiles {
		if err := chunker.ChunkFile(srcPath, base, quote, minutes); err != nil {
			return err
		}
	}
	return s.index.Save()
}

// FindHistoricalBars looks up the historical bar(s) covering ts for the
// base/quote pair. If allBars is true, it returns every bar stored in the
// chunk covering ts (a "bundle" lookup); otherwise it returns the single bar
// whose window contains ts. timespan selects the candle granularity in
// minutes to look for (e.g. 1 for minute bars, 10080 for a week).
func (s *Subsystem) FindHistoricalBars(base, quote string, ts time.Time, allBars bool, timespan int64) ([]bar.HistoricalBar, bool, error) {
	pair := s.canonical(base) + s.canonical(quote)
	epoch := ts.Unix()
	fe := fileEpoch(epoch, timespan)

	if !s.index.Covers(pair, timespan, epoch) {
		return nil, false, nil
	}

	rows, err := readChunk(s.baseDir, pair, fe, timespan)
	if err != nil {
		return nil, false, fmt.Errorf("csvbulk: find historical bars: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}

	duration := time.Duration(timespan) * time.Minute

	if allBars {
		bars := make([]bar.HistoricalBar, 0, len(rows))
		for _, row := range rows {
			b, err := rowToBar(row, duration)
			if err != nil {
				return nil, false, fmt.Errorf("csvbulk: decode row: %w", err)
			}
			bars = append(bars, b)
		}
		return bars, true, nil
	}

	windowSeconds := int64(duration / time.Second)
	for _, row := range rows {
		if epoch >= row.Epoch && epoch < row.Epoch+windowSeconds {
			b, err := rowToBar(row, duration)
			if err != nil {
				return nil, false, fmt.Errorf("csvbulk: decode row: %w", err)
			}
			return []bar.HistoricalBar{b}, true, nil
		}
	}
	return nil, false, nil
}

func rowToBar(row DailyRow, duration time.Duration) (bar.HistoricalBar, error) {
	open, err := decimal.NewFromString(row.Open)
	if err != nil {
		return bar.HistoricalBar{}, err
	}
	high, err := decimal.NewFromString(row.High)
	if err != nil {
		return bar.HistoricalBar{}, err
	}
	low, err := decimal.NewFromString(row.Low)
	if err != nil {
		return bar.HistoricalBar{}, err
	}
	closeP, err := decimal.NewFromString(row.Close)
	if err != nil {
		return bar.HistoricalBar{}, err
	}
	volume, err := decimal.NewFromString(row.Volume)
	if err != nil {
		return bar.HistoricalBar{}, err
	}
	return bar.HistoricalBar{
		Duration:  duration,
		Timestamp: time.Unix(row.Epoch, 0).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
	}, nil
}

// weekMonday floors ts down to the start (UTC midnight Monday) of its
// ISO week, used as the canonical epoch for an emulated weekly row.
func weekMonday(ts time.Time) time.Time {
	ts = ts.UTC().Truncate(24 * time.Hour)
	offset := (int(ts.Weekday()) + 6) % 7
	return ts.AddDate(0, 0, -offset)
}
