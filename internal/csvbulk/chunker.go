package csvbulk

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"github.com/rawblock/dali-resolver/internal/cache"
)

// DailyRow is one row of a daily (or finer) OHLCV archive.
type DailyRow struct {
	Epoch  int64
	Open   string
	High   string
	Low    string
	Close  string
	Volume string
	Trades int64
}

// chunkSpanDays is the number of days each chunk file covers at a 1-minute
// granularity; coarser granularities widen the span proportionally, capped at
// 500x (15,000 days), so a chunk file never holds more than 43,200 candles.
const chunkSpanDays = 30

// chunkSize returns the epoch-seconds span of a chunk file for a given
// candle width in minutes.
func chunkSize(minutes int64) int64 {
	factor := minutes
	if factor > 500 {
		factor = 500
	}
	if factor < 1 {
		factor = 1
	}
	return chunkSpanDays * 86400 * factor
}

// fileEpoch returns the chunk-aligned start epoch containing rowEpoch.
func fileEpoch(rowEpoch, minutes int64) int64 {
	size := chunkSize(minutes)
	return (rowEpoch / size) * size
}

// ChunkIndex maps a (pair, granularity-minutes) key to the epoch range its
// chunk files collectively cover, persisted via a cache.Store so repeated
// runs don't re-scan already-chunked archives.
type ChunkIndex struct {
	store Store
	spans map[string]chunkSpan
}

// Store is the subset of cache.Store the chunk index needs, named locally so
// csvbulk doesn't otherwise depend on the cache package's cache-key
// conventions.
type Store = cache.Store

type chunkSpan struct {
	StartEpoch int64 `json:"start_epoch"`
	EndEpoch   int64 `json:"end_epoch"`
}

// NewChunkIndex loads any previously persisted span data from store.
func NewChunkIndex(store Store) (*ChunkIndex, error) {
	idx := &ChunkIndex{store: store, spans: make(map[string]chunkSpan)}
	raw, err := store.Load(chunkIndexKey)
	if err != nil {
		if err == cache.ErrNotFound {
			return idx, nil
		}
		return nil, fmt.Errorf("csvbulk: load chunk index: %w", err)
	}
	if err := json.Unmarshal(raw, &idx.spans); err != nil {
		return nil, fmt.Errorf("csvbulk: decode chunk index: %w", err)
	}
	return idx, nil
}

const chunkIndexKey = "csvbulk_chunk_index"

func indexKey(pair string, minutes int64) string {
	return fmt.Sprintf("%s|%d", pair, minutes)
}

// Covers reports whether the index already has a recorded span for
// (pair, minutes) that covers epoch.
func (idx *ChunkIndex) Covers(pair string, minutes, epoch int64) bool {
	span, ok := idx.spans[indexKey(pair, minutes)]
	if !ok {
		return false
	}
	return epoch >= span.StartEpoch && epoch <= span.EndEpoch
}

// Extend widens the recorded span for (pair, minutes) to include epoch.
func (idx *ChunkIndex) Extend(pair string, minutes, epoch int64) {
	key := indexKey(pair, minutes)
	span, ok := idx.spans[key]
	if !ok {
		idx.spans[key] = chunkSpan{StartEpoch: epoch, EndEpoch: epoch}
		return
	}
	if epoch < span.StartEpoch {
		span.StartEpoch = epoch
	}
	if epoch > span.EndEpoch {
		span.EndEpoch = epoch
	}
	idx.spans[key] = span
}

// Save persists the index to its backing store.
func (idx *ChunkIndex) Save() error {
	raw, err := json.Marshal(idx.spans)
	if err != nil {
		return fmt.Errorf("csvbulk: encode chunk index: %w", err)
	}
	if err := idx.store.Save(chunkIndexKey, raw); err != nil {
		return fmt.Errorf("csvbulk: save chunk index: %w", err)
	}
	return nil
}

// Chunker splits a bulk CSV archive into gzip-compressed shard files under
// baseDir, one per (pair, epoch window).
type Chunker struct {
	baseDir      string
	index        *ChunkIndex
	rowsChunked  atomic.Int64
	filesWritten atomic.Int64
}

// NewChunker returns a Chunker writing shards under baseDir and recording
// progress in index.
func NewChunker(baseDir string, index *ChunkIndex) *Chunker {
	return &Chunker{baseDir: baseDir, index: index}
}

// Progress reports how many rows and chunk files this chunker has written so
// far, safe for concurrent reads while ChunkFile runs in the background.
func (c *Chunker) Progress() (rows, files int64) {
	return c.rowsChunked.Load(), c.filesWritten.Load()
}

// ChunkFile reads a raw "epoch,open,high,low,close,volume,trades" CSV file
// and writes it out as gzip chunk shards named
// "<BASE><QUOTE>_<fileEpoch>_<minutes>.csv.gz".
func (c *Chunker) ChunkFile(srcPath, base, quote string, minutes int64) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("csvbulk: open source %s: %w", srcPath, err)
	}
	defer src.Close()

	pair := base + quote
	writers := make(map[int64]*gzip.Writer)
	files := make(map[int64]*os.File)
	defer func() {
		for epoch, w := range writers {
			w.Close()
			files[epoch].Close()
		}
	}()

	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		row, err := parseDailyRow(line)
		if err != nil {
			return fmt.Errorf("csvbulk: parse row in %s: %w", srcPath, err)
		}

		fe := fileEpoch(row.Epoch, minutes)
		w, ok := writers[fe]
		if !ok {
			path := filepath.Join(c.baseDir, fmt.Sprintf("%s_%d_%d.csv.gz", pair, fe, minutes))
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("csvbulk: create chunk file %s: %w", path, err)
			}
			gw := gzip.NewWriter(f)
			writers[fe] = gw
			files[fe] = f
			w = gw
			c.filesWritten.Add(1)
		}

		if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
			return fmt.Errorf("csvbulk: write chunk row: %w", err)
		}
		c.rowsChunked.Add(1)
		c.index.Extend(pair, minutes, row.Epoch)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("csvbulk: scan source %s: %w", srcPath, err)
	}
	return nil
}

func parseDailyRow(line string) (DailyRow, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 6 {
		return DailyRow{}, fmt.Errorf("expected at least 6 comma-separated fields, got %d", len(fields))
	}
	epoch, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return DailyRow{}, fmt.Errorf("parse epoch: %w", err)
	}
	row := DailyRow{
		Epoch:  epoch,
		Open:   fields[1],
		High:   fields[2],
		Low:    fields[3],
		Close:  fields[4],
		Volume: fields[5],
	}
	if len(fields) >= 7 {
		trades, err := strconv.ParseInt(fields[6], 10, 64)
		if err == nil {
			row.Trades = trades
		}
	}
	return row, nil
}

// readChunk decompresses and parses the chunk file covering epoch for
// (pair, minutes), returning nil rows without error if no such file exists.
func readChunk(baseDir, pair string, fe, minutes int64) ([]DailyRow, error) {
	path := filepath.Join(baseDir, fmt.Sprintf("%s_%d_%d.csv.gz", pair, fe, minutes))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("csvbulk: open chunk %s: %w", path, err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("csvbulk: gzip reader for %s: %w", path, err)
	}
	defer gr.Close()

	var rows []DailyRow
	scanner := bufio.NewScanner(gr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		row, err := parseDailyRow(line)
		if err != nil {
			return nil, fmt.Errorf("csvbulk: parse chunk row in %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("csvbulk: scan chunk %s: %w", path, err)
	}
	return rows, nil
}
