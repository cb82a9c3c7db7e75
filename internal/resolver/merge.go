package resolver

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// transmuteDirection validates and applies a hint-driven direction change.
// IN and OUT may each transmute to/from INTRA; IN and OUT may never
// transmute directly into one another.
func transmuteDirection(current, target Direction) (Direction, error) {
	if current == target {
		return target, nil
	}
	switch {
	case current == DirIn && target == DirIntra, current == DirIntra && target == DirIn:
		return target, nil
	case current == DirOut && target == DirIntra, current == DirIntra && target == DirOut:
		return target, nil
	default:
		return current, fmt.Errorf("resolver: cannot transmute direction %s -> %s", current, target)
	}
}

// mergeDecimal combines two Unknown decimal fields from the halves of a
// pair: a known value wins over an unknown one; two known values must agree;
// two unknowns stay unknown.
func mergeDecimal(a, b Unknown[decimal.Decimal]) (Unknown[decimal.Decimal], error) {
	switch {
	case a.Known && b.Known:
		if !a.Value.Equal(b.Value) {
			return Unknown[decimal.Decimal]{}, fmt.Errorf("resolver: conflicting known values %s and %s", a.Value, b.Value)
		}
		return a, nil
	case a.Known:
		return a, nil
	case b.Known:
		return b, nil
	default:
		return Unknown[decimal.Decimal]{}, nil
	}
}

// mergeString is mergeDecimal's counterpart for Unknown[string] fields.
func mergeString(a, b Unknown[string]) (Unknown[string], error) {
	switch {
	case a.Known && b.Known:
		if a.Value != b.Value {
			return Unknown[string]{}, fmt.Errorf("resolver: conflicting known values %q and %q", a.Value, b.Value)
		}
		return a, nil
	case a.Known:
		return a, nil
	case b.Known:
		return b, nil
	default:
		return Unknown[string]{}, nil
	}
}

// mergeSpotPrice merges the SpotPrice field of two halves of a pair. Unlike
// mergeDecimal, a conflict between two known values is not fatal when exactly
// one side's price was fetched from the web: the other side wins the tie.
// When both or neither came from the web, the conflict is an error.
func mergeSpotPrice(left, right Transaction) (Unknown[decimal.Decimal], bool, error) {
	a, b := left.SpotPrice, right.SpotPrice
	switch {
	case a.Known && b.Known:
		if a.Value.Equal(b.Value) {
			return a, left.IsSpotPriceFromWeb && right.IsSpotPriceFromWeb, nil
		}
		if !left.IsSpotPriceFromWeb && right.IsSpotPriceFromWeb {
			return a, false, nil
		}
		if !right.IsSpotPriceFromWeb && left.IsSpotPriceFromWeb {
			return b, false, nil
		}
		return Unknown[decimal.Decimal]{}, false, fmt.Errorf("resolver: conflicting spot prices %s and %s, neither preferred", a.Value, b.Value)
	case a.Known:
		return a, left.IsSpotPriceFromWeb, nil
	case b.Known:
		return b, right.IsSpotPriceFromWeb, nil
	default:
		return Unknown[decimal.Decimal]{}, false, nil
	}
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// mergeInOut combines the In half and the Out half of a transfer recorded on
// two different exchanges into a single Intra-direction transaction.
func mergeInOut(in, out Transaction) (Transaction, error) {
	if !in.CryptoIn.Known {
		return Transaction{}, fmt.Errorf("resolver: in-half missing crypto_in, cannot compute crypto_received")
	}
	if !out.CryptoOutNoFee.Known || !out.CryptoFee.Known {
		return Transaction{}, fmt.Errorf("resolver: out-half missing crypto_out_no_fee or crypto_fee, cannot compute crypto_sent")
	}

	spotPrice, fromWeb, err := mergeSpotPrice(in, out)
	if err != nil {
		return Transaction{}, err
	}
	notes, err := mergeString(in.Notes, out.Notes)
	if err != nil {
		return Transaction{}, err
	}
	fiatTicker, err := mergeString(in.FiatTicker, out.FiatTicker)
	if err != nil {
		return Transaction{}, err
	}

	merged := Transaction{
		Plugin:             preferNonEmpty(out.Plugin, in.Plugin),
		UniqueID:           in.UniqueID,
		Asset:              in.Asset,
		Direction:          DirIntra,
		Timestamp:          laterOf(in.Timestamp, out.Timestamp),
		SpotPrice:          spotPrice,
		IsSpotPriceFromWeb: fromWeb,
		FiatTicker:         fiatTicker,
		Notes:              notes,
		CryptoSent:         Known(out.CryptoOutNoFee.Value.Add(out.CryptoFee.Value)),
		CryptoReceived:     Known(in.CryptoIn.Value),
		FromExchange:       Known(out.Exchange),
		ToExchange:         Known(in.Exchange),
	}
	return merged, nil
}

// mergeIntraIntra combines two Intra-direction halves of the same transfer
// recorded independently by the sending and receiving side.
func mergeIntraIntra(left, right Transaction) (Transaction, error) {
	spotPrice, fromWeb, err := mergeSpotPrice(left, right)
	if err != nil {
		return Transaction{}, err
	}
	notes, err := mergeString(left.Notes, right.Notes)
	if err != nil {
		return Transaction{}, err
	}
	fiatTicker, err := mergeString(left.FiatTicker, right.FiatTicker)
	if err != nil {
		return Transaction{}, err
	}
	cryptoSent, err := mergeDecimal(left.CryptoSent, right.CryptoSent)
	if err != nil {
		return Transaction{}, err
	}
	cryptoReceived, err := mergeDecimal(left.CryptoReceived, right.CryptoReceived)
	if err != nil {
		return Transaction{}, err
	}
	fromExchange, err := mergeString(left.FromExchange, right.FromExchange)
	if err != nil {
		return Transaction{}, err
	}
	toExchange, err := mergeString(left.ToExchange, right.ToExchange)
	if err != nil {
		return Transaction{}, err
	}

	merged := Transaction{
		Plugin:             preferNonEmpty(left.Plugin, right.Plugin),
		UniqueID:           left.UniqueID,
		Asset:              left.Asset,
		Direction:          DirIntra,
		Timestamp:          laterOf(left.Timestamp, right.Timestamp),
		SpotPrice:          spotPrice,
		IsSpotPriceFromWeb: fromWeb,
		FiatTicker:         fiatTicker,
		Notes:              notes,
		CryptoSent:         cryptoSent,
		CryptoReceived:     cryptoReceived,
		FromExchange:       fromExchange,
		ToExchange:         toExchange,
	}
	return merged, nil
}

func preferNonEmpty(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}
