package pairconverter

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/rawblock/dali-resolver/internal/exchange"
	"github.com/rawblock/dali-resolver/internal/graph"
	"github.com/shopspring/decimal"
)

const marketPaddingWeeks = 4

// Optimize builds the weekly-boundary snapshot time-series for the
// manifest's asset universe on the configured DefaultExchange, per §4.6.2.
// Other configured exchanges get no snapshot tree from it.
func (p *PairConverter) Optimize(ctx context.Context, manifest Manifest) error {
	exchangeName := p.cfg.DefaultExchange
	unoptimized, err := p.generateUnoptimizedGraph(ctx, exchangeName)
	if err != nil {
		return fmt.Errorf("pairconverter: optimize: %w", err)
	}

	p.mu.Lock()
	p.unoptimizedGraphs[exchangeName] = unoptimized
	p.mu.Unlock()

	candidates := p.enumerateCandidates(unoptimized, manifest)

	client, ok := p.exchanges[exchangeName]
	if !ok {
		return fmt.Errorf("pairconverter: optimize: unknown exchange %q", exchangeName)
	}

	marketStarts := make(map[string]map[string]time.Time)
	// weeklyWeights[t][c][n] = weight (volume or rank, -1 sentinel for "not yet live")
	weeklyWeights := make(map[int64]map[string]map[string]float64)

	for _, c := range candidates {
		if unoptimized.IsOptimized(c) {
			// Fiat and alias assets are marked optimized at construction time
			// and never need a real volume-based OHLCV fetch.
			continue
		}
		for _, n := range unoptimized.ChildrenOf(c) {
			if !isCandidate(n, candidates) {
				continue
			}
			rows, _, err := client.FetchBarAtGranularityLadder(ctx, exchange.Market{ID: c + n, Base: c, Quote: n}, manifest.FirstTransactionTime.Unix()*1000)
			if err != nil || len(rows) == 0 {
				log.Printf("[pairconverter] market %s->%s unavailable, pruning from optimization: %v", c, n, err)
				setMarketStart(marketStarts, c, n, farFuture())
				continue
			}

			padded := padWithMarketPadding(rows, manifest.FirstTransactionTime)
			startTime := marketStartTime(padded, manifest.FirstTransactionTime)
			setMarketStart(marketStarts, c, n, startTime)

			for _, row := range padded {
				weekTS := mondayOf(time.UnixMilli(row.TimestampMs).UTC()).Unix()
				if weeklyWeights[weekTS] == nil {
					weeklyWeights[weekTS] = make(map[string]map[string]float64)
				}
				if weeklyWeights[weekTS][c] == nil {
					weeklyWeights[weekTS][c] = make(map[string]float64)
				}
				volume, _ := row.Volume.Float64()
				weeklyWeights[weekTS][c][n] = volume
			}
		}
	}

	// Step 3: apply the not-yet-live sentinel.
	for weekTS, byFrom := range weeklyWeights {
		weekTime := time.Unix(weekTS, 0).UTC()
		for c, byTo := range byFrom {
			for n := range byTo {
				if start, ok := marketStarts[c][n]; ok && weekTime.Before(start) {
					weeklyWeights[weekTS][c][n] = -1.0
				}
			}
		}
	}

	timestamps := sortedKeys(weeklyWeights)
	if len(timestamps) == 0 {
		return nil
	}

	// Step 4: carry forward composite state.
	composite := make(map[int64]map[string]map[string]float64, len(timestamps))
	var prev map[string]map[string]float64
	for _, ts := range timestamps {
		merged := copyWeights(prev)
		mergeWeights(merged, weeklyWeights[ts])
		composite[ts] = merged
		prev = merged
	}

	// Step 5: replace volumes with rank weights within each timestamp.
	rankWeights := make(map[int64]map[string]map[string]decimal.Decimal, len(timestamps))
	for _, ts := range timestamps {
		rankWeights[ts] = toRankWeights(composite[ts])
	}

	// Step 6: collapse runs of identical successive snapshots.
	dedupTimestamps := collapseIdentical(timestamps, rankWeights)

	// Step 7: build the snapshot tree.
	tree := graph.NewSnapshotTree()
	var priorGraph *graph.MappedGraph
	for i, ts := range dedupTimestamps {
		weekTime := time.Unix(ts, 0).UTC()
		if i == 0 {
			priorGraph = unoptimized.Prune(rankWeights[ts])
		} else {
			priorGraph = priorGraph.CloneWithOptimization(rankWeights[ts])
		}
		tree.Insert(weekTime, priorGraph)
	}

	p.mu.Lock()
	p.trees[exchangeName] = tree
	p.mu.Unlock()

	return nil
}

func isCandidate(name string, candidates []string) bool {
	for _, c := range candidates {
		if c == name {
			return true
		}
	}
	return false
}

// enumerateCandidates returns the manifest's asset set plus every transitive
// child of those vertices in the unoptimized graph (§4.6.2 step 1).
func (p *PairConverter) enumerateCandidates(g *graph.MappedGraph, manifest Manifest) []string {
	seen := make(map[string]struct{})
	var queue []string
	for asset := range manifest.Assets {
		if _, ok := seen[asset]; !ok {
			seen[asset] = struct{}{}
			queue = append(queue, asset)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range g.ChildrenOf(current) {
			if _, ok := seen[child]; !ok {
				seen[child] = struct{}{}
				queue = append(queue, child)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func setMarketStart(marketStarts map[string]map[string]time.Time, from, to string, ts time.Time) {
	if marketStarts[from] == nil {
		marketStarts[from] = make(map[string]time.Time)
	}
	marketStarts[from][to] = ts
}

func farFuture() time.Time {
	return time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
}

func padWithMarketPadding(rows []exchange.OHLCVRow, manifestStart time.Time) []exchange.OHLCVRow {
	if len(rows) == 0 {
		return rows
	}
	firstTS := time.UnixMilli(rows[0].TimestampMs).UTC()
	padStart := firstTS.AddDate(0, 0, -7*marketPaddingWeeks)
	var padding []exchange.OHLCVRow
	for t := padStart; t.Before(firstTS); t = t.AddDate(0, 0, 7) {
		padding = append(padding, exchange.OHLCVRow{
			TimestampMs: t.UnixMilli(),
			Open:        rows[0].Open,
			High:        rows[0].Open,
			Low:         rows[0].Open,
			Close:       rows[0].Open,
			Volume:      decimal.Zero,
		})
	}
	return append(padding, rows...)
}

func marketStartTime(paddedRows []exchange.OHLCVRow, manifestStart time.Time) time.Time {
	if len(paddedRows) == 0 {
		return mondayOf(manifestStart)
	}
	firstBar := time.UnixMilli(paddedRows[0].TimestampMs).UTC()
	if firstBar.After(manifestStart) {
		return firstBar
	}
	return mondayOf(manifestStart)
}

func mondayOf(ts time.Time) time.Time {
	ts = ts.UTC().Truncate(24 * time.Hour)
	offset := (int(ts.Weekday()) + 6) % 7
	return ts.AddDate(0, 0, -offset)
}

func sortedKeys(m map[int64]map[string]map[string]float64) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func copyWeights(src map[string]map[string]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(src))
	for from, tos := range src {
		out[from] = make(map[string]float64, len(tos))
		for to, w := range tos {
			out[from][to] = w
		}
	}
	return out
}

func mergeWeights(dst, src map[string]map[string]float64) {
	for from, tos := range src {
		if dst[from] == nil {
			dst[from] = make(map[string]float64)
		}
		for to, w := range tos {
			dst[from][to] = w
		}
	}
}

// toRankWeights replaces raw volumes with descending-rank weights
// (1.0, 2.0, 3.0, ...) per neighbor set, keeping negative sentinels as-is.
func toRankWeights(weights map[string]map[string]float64) map[string]map[string]decimal.Decimal {
	out := make(map[string]map[string]decimal.Decimal, len(weights))
	for from, tos := range weights {
		type entry struct {
			to     string
			volume float64
		}
		entries := make([]entry, 0, len(tos))
		for to, v := range tos {
			entries = append(entries, entry{to: to, volume: v})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].volume > entries[j].volume })

		out[from] = make(map[string]decimal.Decimal, len(entries))
		rank := 1
		for _, e := range entries {
			if e.volume < 0 {
				out[from][e.to] = decimal.NewFromFloat(-1)
				continue
			}
			out[from][e.to] = decimal.NewFromInt(int64(rank))
			rank++
		}
	}
	return out
}

// collapseIdentical drops timestamps whose snapshot weight table is
// identical to the immediately preceding one (§4.6.2 step 6).
func collapseIdentical(timestamps []int64, weights map[int64]map[string]map[string]decimal.Decimal) []int64 {
	if len(timestamps) == 0 {
		return nil
	}
	out := []int64{timestamps[0]}
	for i := 1; i < len(timestamps); i++ {
		if !weightsEqual(weights[timestamps[i-1]], weights[timestamps[i]]) {
			out = append(out, timestamps[i])
		}
	}
	return out
}

func weightsEqual(a, b map[string]map[string]decimal.Decimal) bool {
	if len(a) != len(b) {
		return false
	}
	for from, tos := range a {
		otherTos, ok := b[from]
		if !ok || len(tos) != len(otherTos) {
			return false
		}
		for to, w := range tos {
			ow, ok := otherTos[to]
			if !ok || !w.Equal(ow) {
				return false
			}
		}
	}
	return true
}
