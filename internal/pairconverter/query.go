package pairconverter

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rawblock/dali-resolver/internal/bar"
	"github.com/rawblock/dali-resolver/internal/exchange"
	"github.com/rawblock/dali-resolver/internal/graph"
	"github.com/shopspring/decimal"
)

// granularityLadderMinutes is the fallback ladder a bundle lookup walks
// through when the finest granularity has no data at the requested window.
var granularityLadderMinutes = []int64{1, 5, 15, 60, 720, 1440, 10080}

// GetHistoricBarFromNativeSource is the public entry point: given a
// timestamp and asset pair on a given exchange, return the historical bar
// used to derive a conversion rate (§4.6.3).
func (p *PairConverter) GetHistoricBarFromNativeSource(ctx context.Context, ts time.Time, from, to, exch string) (bar.HistoricalBar, bool, error) {
	return p.getHistoricBar(ctx, ts, from, to, exch)
}

// GetConversionRate returns the scalar from->to rate at ts, taken from the bar
// field selected by the configured HistoricalPriceType.
func (p *PairConverter) GetConversionRate(ctx context.Context, ts time.Time, from, to, exch string) (decimal.Decimal, bool, error) {
	b, ok, err := p.getHistoricBar(ctx, ts, from, to, exch)
	if err != nil || !ok {
		return decimal.Decimal{}, ok, err
	}
	return b.Price(p.cfg.HistoricalPriceType, ts), true, nil
}

func (p *PairConverter) getHistoricBar(ctx context.Context, ts time.Time, from, to, exch string) (bar.HistoricalBar, bool, error) {
	// Step 1: identity.
	if from == to {
		return bar.NewUnitBar(ts), true, nil
	}

	resolved := p.resolveExchange(exch)

	// Step 2: both fiat -> delegate.
	fromFiat, err := p.fiat.IsFiat(ctx, from)
	if err != nil {
		return bar.HistoricalBar{}, false, fmt.Errorf("pairconverter: check fiat: %w", err)
	}
	toFiat, err := p.fiat.IsFiat(ctx, to)
	if err != nil {
		return bar.HistoricalBar{}, false, fmt.Errorf("pairconverter: check fiat: %w", err)
	}
	if fromFiat && toFiat {
		return p.fiat.GetFiatExchangeRate(ctx, ts, from, to)
	}

	// Step 3: ensure we have a graph-tree for this exchange.
	p.mu.RLock()
	tree, ok := p.trees[resolved]
	p.mu.RUnlock()
	if !ok {
		if err := p.Optimize(ctx, Manifest{FirstTransactionTime: ts, Assets: map[string]struct{}{from: {}, to: {}}}); err != nil {
			return bar.HistoricalBar{}, false, fmt.Errorf("pairconverter: optimize on demand: %w", err)
		}
		p.mu.RLock()
		tree, ok = p.trees[resolved]
		p.mu.RUnlock()
		if !ok {
			return bar.HistoricalBar{}, false, fmt.Errorf("pairconverter: no graph snapshot available for %s", resolved)
		}
	}

	// Step 4: select the active snapshot.
	g, ok := tree.FindMaxValueLessThan(ts)
	if !ok {
		return bar.HistoricalBar{}, false, nil
	}

	// Step 5: direct market shortcut.
	_, forceRouted := p.cfg.ForceRoutingPairs[[2]string{from, to}]
	p.mu.RLock()
	_, isDirectMarket := p.marketIDs[resolved][from+to]
	p.mu.RUnlock()
	if isDirectMarket && !forceRouted {
		return p.findHistoricalBar(ctx, resolved, from, to, ts)
	}

	// Step 6: missing vertex handling.
	if !g.HasVertex(from) || !g.HasVertex(to) {
		if p.isUntradeable(from) {
			return bar.HistoricalBar{Duration: time.Minute, Timestamp: ts}, true, nil
		}
		return bar.HistoricalBar{}, false, fmt.Errorf("pairconverter: %s or %s missing from graph and not untradeable", from, to)
	}

	// Step 7: route.
	path, ok := g.Dijkstra(from, to)
	if !ok {
		return bar.HistoricalBar{}, false, nil
	}

	// Step 8: walk hops.
	hops := make([]bar.HistoricalBar, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		u, v := path[i], path[i+1]
		hopBar, ok, err := p.resolveHop(ctx, g, resolved, u, v, ts)
		if err != nil {
			return bar.HistoricalBar{}, false, fmt.Errorf("pairconverter: resolve hop %s->%s: %w", u, v, err)
		}
		if !ok {
			log.Printf("[pairconverter] hop %s->%s absent at %s, route undefined", u, v, ts)
			return bar.HistoricalBar{}, false, nil
		}
		hops = append(hops, hopBar)
	}

	// Step 9: multiply hops.
	result, ok := bar.MultiplyBars(hops, ts)
	if !ok {
		return bar.HistoricalBar{}, false, nil
	}
	return result, true, nil
}

func (p *PairConverter) resolveHop(ctx context.Context, g *graph.MappedGraph, exchangeName, u, v string, ts time.Time) (bar.HistoricalBar, bool, error) {
	uFiat, err := p.fiat.IsFiat(ctx, u)
	if err != nil {
		return bar.HistoricalBar{}, false, err
	}
	vFiat, err := p.fiat.IsFiat(ctx, v)
	if err != nil {
		return bar.HistoricalBar{}, false, err
	}
	if uFiat && vFiat {
		return p.fiat.GetFiatExchangeRate(ctx, ts, u, v)
	}
	if g.IsAlias(u, v) {
		rate, asOf, duration, ok := g.AliasBar(u, v)
		if !ok {
			return bar.HistoricalBar{}, false, nil
		}
		if duration == 0 {
			duration = time.Minute
		}
		if asOf.IsZero() {
			asOf = ts
		}
		return bar.NewConstantBar(asOf, duration, rate, decimal.Zero), true, nil
	}
	return p.findHistoricalBar(ctx, exchangeName, u, v, ts)
}

// findHistoricalBar is the single-bar lookup of §4.6.4.
func (p *PairConverter) findHistoricalBar(ctx context.Context, exchangeName, from, to string, ts time.Time) (bar.HistoricalBar, bool, error) {
	key := bar.AssetPairAndTimestamp{Timestamp: ts, FromAsset: from, ToAsset: to, Exchange: exchangeName}

	if cached, ok, err := p.barCache.Get(key); err == nil && ok {
		return cached, true, nil
	}

	bars, ok, err := p.findHistoricalBars(ctx, exchangeName, from, to, ts, false, 1)
	if err != nil {
		return bar.HistoricalBar{}, false, fmt.Errorf("pairconverter: find historical bar: %w", err)
	}
	if !ok || len(bars) == 0 {
		return bar.HistoricalBar{}, false, nil
	}

	first := bars[0]
	if absDuration(first.Timestamp.Sub(ts)) > 24*time.Hour {
		return bar.HistoricalBar{}, false, fmt.Errorf("pairconverter: returned bar at %s is more than one day from requested %s", first.Timestamp, ts)
	}

	if err := p.barCache.Put(key, first); err != nil {
		return bar.HistoricalBar{}, false, fmt.Errorf("pairconverter: cache single bar: %w", err)
	}
	p.checkpointCache()
	p.notifyBarCached(key, first)

	return first, true, nil
}

// findHistoricalBars is the bundle lookup of §4.6.5: bundle cache, then CSV
// subsystem, then exchange client across the granularity ladder.
func (p *PairConverter) findHistoricalBars(ctx context.Context, exchangeName, from, to string, ts time.Time, allBars bool, timespanMinutes int64) ([]bar.HistoricalBar, bool, error) {
	key := bar.AssetPairAndTimestamp{Timestamp: ts, FromAsset: from, ToAsset: to, Exchange: exchangeName}

	if cached, ok, err := p.bundleCache.Get(key); err == nil && ok {
		return cached, true, nil
	}

	since := ts.UnixMilli()

	if sub, ok := p.csvSubsystems[exchangeName]; ok {
		for _, minutes := range granularityLadderMinutes {
			if minutes < timespanMinutes {
				continue
			}
			bars, ok, err := sub.FindHistoricalBars(from, to, ts, allBars, minutes)
			if err != nil {
				return nil, false, fmt.Errorf("pairconverter: csv bulk lookup: %w", err)
			}
			if ok && len(bars) > 0 {
				if err := p.bundleCache.Put(key, bars); err != nil {
					return nil, false, fmt.Errorf("pairconverter: cache bundle: %w", err)
				}
				p.checkpointCache()
				last := bars[len(bars)-1]
				since = last.Timestamp.UnixMilli() + last.Duration.Milliseconds()
				return bars, true, nil
			}
		}
	}

	client, ok := p.exchanges[exchangeName]
	if !ok {
		return nil, false, fmt.Errorf("pairconverter: unknown exchange %q", exchangeName)
	}

	rows, _, err := client.FetchBarAtGranularityLadder(ctx, exchange.Market{ID: from + to, Base: from, Quote: to}, since)
	if err != nil {
		return nil, false, fmt.Errorf("pairconverter: exchange client lookup: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}

	bars := make([]bar.HistoricalBar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, bar.HistoricalBar{
			Duration:  time.Minute,
			Timestamp: time.UnixMilli(row.TimestampMs).UTC(),
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}

	if err := p.bundleCache.Put(key, bars); err != nil {
		return nil, false, fmt.Errorf("pairconverter: cache bundle: %w", err)
	}
	p.checkpointCache()

	return bars, true, nil
}

func (p *PairConverter) checkpointCache() {
	p.lookupMu.Lock()
	p.lookupCount++
	shouldPersist := p.lookupCount%cachePersistInterval == 0
	p.lookupMu.Unlock()

	if shouldPersist {
		if err := p.SaveHistoricalPriceCache(); err != nil {
			log.Printf("[pairconverter] periodic cache checkpoint failed: %v", err)
		}
	}
}

func (p *PairConverter) notifyBarCached(key bar.AssetPairAndTimestamp, b bar.HistoricalBar) {
	p.mu.RLock()
	fn := p.onBarCached
	p.mu.RUnlock()
	if fn != nil {
		fn(key, b)
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
