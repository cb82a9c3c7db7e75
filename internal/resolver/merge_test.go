package resolver

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransmuteDirection(t *testing.T) {
	cases := []struct {
		current, target Direction
		wantErr         bool
	}{
		{DirIn, DirIn, false},
		{DirIn, DirIntra, false},
		{DirIntra, DirIn, false},
		{DirOut, DirIntra, false},
		{DirIntra, DirOut, false},
		{DirIn, DirOut, true},
		{DirOut, DirIn, true},
	}
	for _, c := range cases {
		_, err := transmuteDirection(c.current, c.target)
		if (err != nil) != c.wantErr {
			t.Errorf("transmuteDirection(%s, %s) err = %v, wantErr %v", c.current, c.target, err, c.wantErr)
		}
	}
}

func TestMergeDecimalAgreementAndConflict(t *testing.T) {
	a := Known(decimal.NewFromInt(10))
	b := Known(decimal.NewFromInt(10))
	merged, err := mergeDecimal(a, b)
	if err != nil {
		t.Fatalf("mergeDecimal agreeing values: %v", err)
	}
	if !merged.Value.Equal(decimal.NewFromInt(10)) {
		t.Errorf("merged = %s, want 10", merged.Value)
	}

	c := Known(decimal.NewFromInt(20))
	if _, err := mergeDecimal(a, c); err == nil {
		t.Error("expected conflict error for differing known values")
	}

	unknown := Unknown[decimal.Decimal]{}
	merged, err = mergeDecimal(unknown, a)
	if err != nil || !merged.Value.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected known side to win over unknown, got %+v err %v", merged, err)
	}

	merged, err = mergeDecimal(unknown, unknown)
	if err != nil || merged.Known {
		t.Errorf("expected both-unknown to stay unknown, got %+v err %v", merged, err)
	}
}

func TestMergeSpotPricePrefersNonWebSide(t *testing.T) {
	left := Transaction{SpotPrice: Known(decimal.NewFromInt(100)), IsSpotPriceFromWeb: true}
	right := Transaction{SpotPrice: Known(decimal.NewFromInt(200)), IsSpotPriceFromWeb: false}

	merged, fromWeb, err := mergeSpotPrice(left, right)
	if err != nil {
		t.Fatalf("mergeSpotPrice: %v", err)
	}
	if fromWeb {
		t.Error("expected the non-web side to win, so fromWeb should be false")
	}
	if !merged.Value.Equal(decimal.NewFromInt(200)) {
		t.Errorf("merged = %s, want 200 (the non-web value)", merged.Value)
	}
}

func TestMergeSpotPriceConflictWithNoTieBreakErrors(t *testing.T) {
	left := Transaction{SpotPrice: Known(decimal.NewFromInt(100)), IsSpotPriceFromWeb: true}
	right := Transaction{SpotPrice: Known(decimal.NewFromInt(200)), IsSpotPriceFromWeb: true}

	if _, _, err := mergeSpotPrice(left, right); err == nil {
		t.Error("expected an error when both sides are web prices and disagree")
	}
}

func TestMergeInOutComputesSentAndReceived(t *testing.T) {
	ts1 := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	ts2 := time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC)

	in := Transaction{
		UniqueID:  "tx1",
		Asset:     "BTC",
		Direction: DirIn,
		Timestamp: ts1,
		Exchange:  "kraken",
		CryptoIn:  Known(decimal.NewFromFloat(0.98)),
	}
	out := Transaction{
		UniqueID:       "tx1",
		Asset:          "BTC",
		Direction:      DirOut,
		Timestamp:      ts2,
		Exchange:       "coinbase",
		CryptoOutNoFee: Known(decimal.NewFromFloat(0.99)),
		CryptoFee:      Known(decimal.NewFromFloat(0.01)),
	}

	merged, err := mergeInOut(in, out)
	if err != nil {
		t.Fatalf("mergeInOut: %v", err)
	}
	if merged.Direction != DirIntra {
		t.Errorf("Direction = %s, want intra", merged.Direction)
	}
	if !merged.CryptoSent.Value.Equal(decimal.NewFromFloat(1.0)) {
		t.Errorf("CryptoSent = %s, want 1.0", merged.CryptoSent.Value)
	}
	if !merged.CryptoReceived.Value.Equal(decimal.NewFromFloat(0.98)) {
		t.Errorf("CryptoReceived = %s, want 0.98", merged.CryptoReceived.Value)
	}
	if merged.FromExchange.Value != "coinbase" || merged.ToExchange.Value != "kraken" {
		t.Errorf("FromExchange/ToExchange = %s/%s, want coinbase/kraken", merged.FromExchange.Value, merged.ToExchange.Value)
	}
	if !merged.Timestamp.Equal(ts2) {
		t.Errorf("Timestamp = %s, want the later of the two (%s)", merged.Timestamp, ts2)
	}
}

func TestMergeInOutMissingRequiredFieldErrors(t *testing.T) {
	in := Transaction{UniqueID: "tx1", Asset: "BTC", Direction: DirIn}
	out := Transaction{
		UniqueID:       "tx1",
		Asset:          "BTC",
		Direction:      DirOut,
		CryptoOutNoFee: Known(decimal.NewFromFloat(1)),
		CryptoFee:      Known(decimal.NewFromFloat(0)),
	}
	if _, err := mergeInOut(in, out); err == nil {
		t.Error("expected an error when the in-half is missing crypto_in")
	}
}

func TestMergeIntraIntraMergesUnknownFields(t *testing.T) {
	left := Transaction{
		UniqueID:     "tx2",
		Asset:        "ETH",
		Direction:    DirIntra,
		Timestamp:    time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC),
		CryptoSent:   Known(decimal.NewFromInt(5)),
		FromExchange: Known("kraken"),
	}
	right := Transaction{
		UniqueID:       "tx2",
		Asset:          "ETH",
		Direction:      DirIntra,
		Timestamp:      time.Date(2022, 2, 2, 0, 0, 0, 0, time.UTC),
		CryptoReceived: Known(decimal.NewFromInt(5)),
		ToExchange:     Known("coinbase"),
	}

	merged, err := mergeIntraIntra(left, right)
	if err != nil {
		t.Fatalf("mergeIntraIntra: %v", err)
	}
	if !merged.CryptoSent.Value.Equal(decimal.NewFromInt(5)) {
		t.Errorf("CryptoSent = %s, want 5", merged.CryptoSent.Value)
	}
	if !merged.CryptoReceived.Value.Equal(decimal.NewFromInt(5)) {
		t.Errorf("CryptoReceived = %s, want 5", merged.CryptoReceived.Value)
	}
	if merged.FromExchange.Value != "kraken" || merged.ToExchange.Value != "coinbase" {
		t.Errorf("FromExchange/ToExchange = %s/%s, want kraken/coinbase", merged.FromExchange.Value, merged.ToExchange.Value)
	}
	if !merged.Timestamp.Equal(right.Timestamp) {
		t.Errorf("Timestamp = %s, want the later of the two", merged.Timestamp)
	}
}
