// Package resolver merges the two halves of a cross-exchange transaction
// (or applies a user hint to a standalone one) and normalizes every
// transaction onto a single native fiat currency before handoff downstream.
package resolver

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction classifies which side of a transfer a transaction record
// represents.
type Direction int

const (
	DirIn Direction = iota
	DirOut
	DirIntra
)

func (d Direction) String() string {
	switch d {
	case DirIn:
		return "in"
	case DirOut:
		return "out"
	case DirIntra:
		return "intra"
	default:
		return "unknown"
	}
}

// Unknown distinguishes a field that is genuinely missing from one that is
// known to be its zero value.
type Unknown[T any] struct {
	Value T
	Known bool
}

// Known wraps v as a known value.
func Known[T any](v T) Unknown[T] {
	return Unknown[T]{Value: v, Known: true}
}

// Transaction is the merged view of a single economic event: either a
// standalone in/out transfer, or the still-unpaired half of one.
type Transaction struct {
	Plugin   string
	UniqueID string
	RawData  map[string]any

	Timestamp time.Time
	Asset     string
	Direction Direction
	Exchange  string

	SpotPrice          Unknown[decimal.Decimal]
	FiatTicker         Unknown[string]
	Notes              Unknown[string]
	IsSpotPriceFromWeb bool

	// In-direction fields.
	CryptoIn      Unknown[decimal.Decimal]
	FiatInNoFee   Unknown[decimal.Decimal]
	FiatInWithFee Unknown[decimal.Decimal]
	FiatFee       Unknown[decimal.Decimal]

	// Out-direction fields.
	CryptoOutNoFee  Unknown[decimal.Decimal]
	CryptoFee       Unknown[decimal.Decimal]
	FiatOutNoFee    Unknown[decimal.Decimal]
	FiatOutWithFee  Unknown[decimal.Decimal]

	// Intra-direction fields.
	CryptoSent     Unknown[decimal.Decimal]
	CryptoReceived Unknown[decimal.Decimal]
	FromExchange   Unknown[string]
	ToExchange     Unknown[string]
}

// Hint lets a caller override a singleton transaction's direction or notes
// before resolution runs. TransactionType is carried but not applied:
// Transaction has no transaction-type field.
type Hint struct {
	Direction       *Direction
	TransactionType *string
	Notes           *string
}

// GlobalConfig carries the resolution-wide settings that apply to every
// transaction, independent of any one pair converter.
type GlobalConfig struct {
	NativeFiat string
}
