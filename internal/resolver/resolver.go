package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/rawblock/dali-resolver/internal/pairconverter"
	"github.com/shopspring/decimal"
)

// Resolver normalizes transaction fiat amounts onto a single native currency
// and merges the two halves of a cross-exchange transfer.
type Resolver struct {
	cfg          GlobalConfig
	converters   []*pairconverter.PairConverter
	hints        map[string]Hint
	priceFromWeb bool
}

// NewResolver wires a Resolver over the given pair converters (rates come
// from the first one only; SaveCaches covers all of them), per-transaction
// hints keyed by
// UniqueID, and whether a missing spot price should be backfilled from a
// converter rather than left UNKNOWN.
func NewResolver(cfg GlobalConfig, converters []*pairconverter.PairConverter, hints map[string]Hint, priceFromWeb bool) *Resolver {
	return &Resolver{cfg: cfg, converters: converters, hints: hints, priceFromWeb: priceFromWeb}
}

// SaveCaches flushes every wired pair converter's historical price cache,
// called on a clean shutdown and from a cancellation handler.
func (r *Resolver) SaveCaches() error {
	for _, c := range r.converters {
		if err := c.SaveHistoricalPriceCache(); err != nil {
			return fmt.Errorf("resolver: save caches: %w", err)
		}
	}
	return nil
}

func (r *Resolver) firstConverter() *pairconverter.PairConverter {
	if len(r.converters) == 0 {
		return nil
	}
	return r.converters[0]
}

// Resolve normalizes every transaction's fiat amounts onto the configured
// native fiat, groups by (asset, unique_id), and merges or hint-resolves
// each group, per §4.7.
func (r *Resolver) Resolve(ctx context.Context, txns []Transaction) ([]Transaction, error) {
	normalized := make([]Transaction, len(txns))
	for i, tx := range txns {
		norm, err := r.normalizeFiat(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("resolver: normalize fiat: %w", err)
		}
		normalized[i] = norm
	}

	groups, order, err := groupByAssetAndUniqueID(normalized)
	if err != nil {
		return nil, err
	}

	results := make([]Transaction, 0, len(normalized))
	for _, key := range order {
		if err := ctx.Err(); err != nil {
			_ = r.SaveCaches()
			return results, err
		}

		group := groups[key]
		switch len(group) {
		case 1:
			resolved, err := r.resolveSingleton(ctx, group[0])
			if err != nil {
				return nil, err
			}
			results = append(results, resolved)
		case 2:
			resolved, err := r.resolvePair(group[0], group[1])
			if err != nil {
				return nil, err
			}
			results = append(results, resolved)
		}
	}

	return results, nil
}

// normalizeFiat rewrites tx's fiat-denominated fields into the native fiat
// currency, if its recorded fiat_ticker differs.
func (r *Resolver) normalizeFiat(ctx context.Context, tx Transaction) (Transaction, error) {
	if !tx.FiatTicker.Known || tx.FiatTicker.Value == r.cfg.NativeFiat || tx.FiatTicker.Value == "" {
		return tx, nil
	}

	converter := r.firstConverter()
	if converter == nil {
		return tx, fmt.Errorf("resolver: no pair converter configured to normalize %s -> %s", tx.FiatTicker.Value, r.cfg.NativeFiat)
	}

	rate, ok, err := converter.GetConversionRate(ctx, tx.Timestamp, tx.FiatTicker.Value, r.cfg.NativeFiat, "")
	if err != nil {
		return Transaction{}, err
	}
	if !ok {
		return tx, fmt.Errorf("resolver: no conversion rate %s -> %s at %s", tx.FiatTicker.Value, r.cfg.NativeFiat, tx.Timestamp)
	}

	scale := func(u Unknown[decimal.Decimal]) Unknown[decimal.Decimal] {
		if !u.Known {
			return u
		}
		return Known(u.Value.Mul(rate))
	}

	tx.SpotPrice = scale(tx.SpotPrice)
	tx.FiatInNoFee = scale(tx.FiatInNoFee)
	tx.FiatInWithFee = scale(tx.FiatInWithFee)
	tx.FiatFee = scale(tx.FiatFee)
	tx.FiatOutNoFee = scale(tx.FiatOutNoFee)
	tx.FiatOutWithFee = scale(tx.FiatOutWithFee)
	tx.FiatTicker = Known(r.cfg.NativeFiat)

	return tx, nil
}

// resolveSingleton applies any configured hint to a transaction that has no
// matching other half, and optionally backfills a missing spot price from
// the web.
func (r *Resolver) resolveSingleton(ctx context.Context, tx Transaction) (Transaction, error) {
	if hint, ok := r.hints[tx.UniqueID]; ok {
		if hint.Direction != nil {
			newDir, err := transmuteDirection(tx.Direction, *hint.Direction)
			if err != nil {
				return Transaction{}, err
			}
			tx.Direction = newDir
		}
		if hint.Notes != nil {
			tx.Notes = Known(*hint.Notes)
		}
	}

	if r.priceFromWeb && (!tx.SpotPrice.Known || tx.SpotPrice.Value.IsZero()) {
		converter := r.firstConverter()
		if converter != nil {
			rate, ok, err := converter.GetConversionRate(ctx, tx.Timestamp, tx.Asset, r.cfg.NativeFiat, "")
			if err != nil {
				return Transaction{}, err
			}
			if ok {
				tx.SpotPrice = Known(rate)
				tx.IsSpotPriceFromWeb = true
			}
		}
	}

	return tx, nil
}

// resolvePair merges the two halves of a transfer sharing (asset,
// unique_id).
func (r *Resolver) resolvePair(a, b Transaction) (Transaction, error) {
	if a.UniqueID != b.UniqueID || a.Asset != b.Asset {
		return Transaction{}, fmt.Errorf("resolver: pair mismatch: %s/%s vs %s/%s", a.Asset, a.UniqueID, b.Asset, b.UniqueID)
	}

	switch {
	case a.Direction == DirIn && b.Direction == DirOut:
		return mergeInOut(a, b)
	case a.Direction == DirOut && b.Direction == DirIn:
		return mergeInOut(b, a)
	case a.Direction == DirIntra && b.Direction == DirIntra:
		return mergeIntraIntra(a, b)
	default:
		return Transaction{}, fmt.Errorf("resolver: invalid pairing %s/%s for %s", a.Direction, b.Direction, a.UniqueID)
	}
}

// groupByAssetAndUniqueID buckets transactions by (asset, unique_id),
// raising if more than two share a key, and returns a deterministic key
// order for stable output.
func groupByAssetAndUniqueID(txns []Transaction) (map[string][]Transaction, []string, error) {
	groups := make(map[string][]Transaction)
	var order []string
	for _, tx := range txns {
		key := tx.Asset + "|" + tx.UniqueID
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], tx)
		if len(groups[key]) > 2 {
			return nil, nil, fmt.Errorf("resolver: more than two transactions share asset %s unique_id %s", tx.Asset, tx.UniqueID)
		}
	}
	sort.Strings(order)
	return groups, order, nil
}
