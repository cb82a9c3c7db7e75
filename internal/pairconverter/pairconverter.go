package pairconverter

import (
	"fmt"
	"sync"

	"github.com/rawblock/dali-resolver/internal/bar"
	"github.com/rawblock/dali-resolver/internal/cache"
	"github.com/rawblock/dali-resolver/internal/csvbulk"
	"github.com/rawblock/dali-resolver/internal/exchange"
	"github.com/rawblock/dali-resolver/internal/fiat"
	"github.com/rawblock/dali-resolver/internal/graph"
)

// cachePersistInterval is how often (in lookups) checkpointCache calls
// SaveHistoricalPriceCache.
const cachePersistInterval = 200

// PairConverter builds and queries per-exchange time-indexed market graphs.
type PairConverter struct {
	cfg           Config
	exchanges     map[string]*exchange.Client
	csvSubsystems map[string]*csvbulk.Subsystem
	fiat          *fiat.Converter
	store         cache.Store

	barCache    *cache.BarCache
	bundleCache *cache.BundleCache

	mu                 sync.RWMutex
	unoptimizedGraphs  map[string]*graph.MappedGraph
	csvPricingExchange map[string]bool
	trees              map[string]*graph.SnapshotTree
	marketIDs          map[string]map[string]exchange.Market

	lookupMu    sync.Mutex
	lookupCount int

	onBarCached func(bar.AssetPairAndTimestamp, bar.HistoricalBar)
}

// SetOnBarCached installs a callback invoked every time a freshly fetched bar
// is written to the single-bar cache, letting a caller (the websocket hub)
// observe price resolution as it happens.
func (p *PairConverter) SetOnBarCached(fn func(bar.AssetPairAndTimestamp, bar.HistoricalBar)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onBarCached = fn
}

// New wires up a PairConverter over the given exchange clients, CSV
// subsystems, fiat converter, and persistent store.
func New(cfg Config, exchanges map[string]*exchange.Client, csvSubsystems map[string]*csvbulk.Subsystem, fiatConverter *fiat.Converter, store cache.Store) *PairConverter {
	modifier := cfg.CacheModifier
	if cfg.ExchangeLocked {
		modifier += "-locked"
	}
	return &PairConverter{
		cfg:                cfg,
		exchanges:          exchanges,
		csvSubsystems:      csvSubsystems,
		fiat:               fiatConverter,
		store:              store,
		barCache:           cache.NewBarCache(store, modifier),
		bundleCache:        cache.NewBundleCache(store, modifier),
		unoptimizedGraphs:  make(map[string]*graph.MappedGraph),
		csvPricingExchange: make(map[string]bool),
		trees:              make(map[string]*graph.SnapshotTree),
		marketIDs:          make(map[string]map[string]exchange.Market),
	}
}

// Name identifies this converter instance, used in logging and as part of
// its cache namespace.
func (p *PairConverter) Name() string {
	if p.cfg.DefaultExchange == "" {
		return "pairconverter"
	}
	return p.cfg.DefaultExchange
}

// CacheKey returns an identifier built from the converter's name and cache
// modifier. The bar and bundle caches do not use it: their entries are keyed
// by exchange, pair and timestamp plus the same modifier.
func (p *PairConverter) CacheKey() string {
	modifier := p.cfg.CacheModifier
	if p.cfg.ExchangeLocked {
		modifier += "-locked"
	}
	return fmt.Sprintf("pairconverter|%s%s", p.Name(), modifier)
}

// SaveHistoricalPriceCache flushes the in-memory caches to the backing
// store, used on graceful shutdown and at periodic checkpoints.
func (p *PairConverter) SaveHistoricalPriceCache() error {
	// BarCache and BundleCache write straight through to Store on every Put,
	// so there is nothing buffered here beyond closing the store cleanly.
	if err := p.store.Close(); err != nil {
		return fmt.Errorf("pairconverter: save cache: %w", err)
	}
	return nil
}

func (p *PairConverter) resolveExchange(requested string) string {
	if p.cfg.ExchangeLocked || requested == "" {
		return p.cfg.DefaultExchange
	}
	if _, ok := p.exchanges[requested]; !ok {
		return p.cfg.DefaultExchange
	}
	return requested
}

func (p *PairConverter) isUntradeable(asset string) bool {
	_, ok := p.cfg.UntradeableAssets[asset]
	return ok
}
