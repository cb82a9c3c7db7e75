package pairconverter

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/dali-resolver/internal/exchange"
	"github.com/rawblock/dali-resolver/internal/graph"
	"github.com/shopspring/decimal"
)

// generateUnoptimizedGraph builds the seed market graph for exchangeName per
// §4.6.1: alias edges first, then spot markets weighted by quote priority,
// then alternative-market overlays, then fiat-to-fiat edges.
func (p *PairConverter) generateUnoptimizedGraph(ctx context.Context, exchangeName string) (*graph.MappedGraph, error) {
	resolved := p.resolveExchange(exchangeName)
	if resolved == "" {
		return nil, fmt.Errorf("pairconverter: no exchange resolved for %q", exchangeName)
	}

	if _, ok := p.csvSubsystems[resolved]; ok {
		p.csvPricingExchange[resolved] = true
	}

	client, ok := p.exchanges[resolved]
	if !ok {
		return nil, fmt.Errorf("pairconverter: unknown exchange %q", resolved)
	}

	markets, err := client.FetchMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("pairconverter: fetch markets for %s: %w", resolved, err)
	}

	g := graph.NewMappedGraph()
	marketIndex := make(map[string]exchange.Market, len(markets))

	// Step 3: alias edges first.
	for _, a := range p.cfg.Aliases {
		if a.Exchange != "UNIVERSAL" && a.Exchange != resolved {
			continue
		}
		g.AddAlias(a.From, a.To, decimal.NewFromFloat(a.Factor), time.Time{}, 0)
	}

	// Step 3: spot markets weighted by quote priority; a quote that is neither
	// a priority fiat nor a known stablecoin gets otherQuoteWeight, so no spot
	// market is filtered out here.
	for _, m := range markets {
		if m.Type != exchange.MarketTypeSpot {
			continue
		}
		rank, ok := quotePriority(m.Quote, p.cfg.FiatPriority)
		weight := otherQuoteWeight
		if ok {
			weight = float64(rank)
		}
		g.AddNeighbor(m.Base, m.Quote, decimal.NewFromFloat(weight), false)
		marketIndex[m.Base+m.Quote] = m
	}

	// Step 4: alternative markets, only when not exchange-locked.
	if !p.cfg.ExchangeLocked {
		for pair, altExchange := range p.cfg.AlternativeMarkets {
			base, quote := pair[0], pair[1]
			rank, ok := quotePriority(quote, p.cfg.FiatPriority)
			weight := otherQuoteWeight
			if ok {
				weight = float64(rank)
			}
			g.AddNeighbor(base, quote, decimal.NewFromFloat(weight+altMarketWeightBonus), false)
			if _, already := p.exchanges[altExchange]; already {
				marketIndex[base+quote] = exchange.Market{ID: base + quote, Base: base, Quote: quote, Type: exchange.MarketTypeSpot}
			}
		}
	}

	// Step 5: fiat-to-fiat edges, routed through the configured fiat
	// pseudo-market. No double-hop through fiat: every FiatPriority fiat
	// already present in the graph gets a direct edge to every other one.
	var fiatsInGraph []string
	for _, f := range p.cfg.FiatPriority {
		if g.HasVertex(f) {
			fiatsInGraph = append(fiatsInGraph, f)
		}
	}
	for i, from := range fiatsInGraph {
		rank, _ := quotePriority(from, p.cfg.FiatPriority)
		for j, to := range fiatsInGraph {
			if i == j {
				continue
			}
			g.AddFiatNeighbor(from, to, decimal.NewFromFloat(float64(rank)), true)
		}
	}

	p.mu.Lock()
	p.marketIDs[resolved] = marketIndex
	p.mu.Unlock()

	return g, nil
}
