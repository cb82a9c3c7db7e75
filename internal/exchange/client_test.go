package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeExchange struct {
	name          string
	marketsErr    error
	markets       []Market
	ohlcvSequence []struct {
		rows []OHLCVRow
		err  error
	}
	calls int
}

func (f *fakeExchange) Name() string { return f.name }

func (f *fakeExchange) FetchMarkets(ctx context.Context) ([]Market, error) {
	return f.markets, f.marketsErr
}

func (f *fakeExchange) FetchOHLCV(ctx context.Context, market Market, granularity Granularity, since int64) ([]OHLCVRow, error) {
	if f.calls >= len(f.ohlcvSequence) {
		return nil, errors.New("fake exchange: sequence exhausted")
	}
	step := f.ohlcvSequence[f.calls]
	f.calls++
	return step.rows, step.err
}

func TestClientFetchMarkets(t *testing.T) {
	raw := &fakeExchange{name: "kraken", markets: []Market{{ID: "BTC/USD", Base: "BTC", Quote: "USD", Type: MarketTypeSpot}}}
	client := NewClient(raw, time.Millisecond, nil)

	markets, err := client.FetchMarkets(context.Background())
	if err != nil {
		t.Fatalf("FetchMarkets: %v", err)
	}
	if len(markets) != 1 || markets[0].ID != "BTC/USD" {
		t.Errorf("markets = %+v, want one BTC/USD market", markets)
	}
}

func TestClientGenericErrorAbortsImmediately(t *testing.T) {
	raw := &fakeExchange{
		name: "kraken",
		ohlcvSequence: []struct {
			rows []OHLCVRow
			err  error
		}{
			{err: ErrGeneric},
		},
	}
	client := NewClient(raw, time.Millisecond, []Granularity{{Name: "1m", Duration: time.Minute}})

	_, err := client.FetchOHLCV(context.Background(), Market{ID: "BTC/USD"}, Granularity{Name: "1m"}, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if raw.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on generic error)", raw.calls)
	}
}

func TestClientRateLimitRetriesThenSucceeds(t *testing.T) {
	row := OHLCVRow{Close: decimal.NewFromInt(100)}
	raw := &fakeExchange{
		name: "kraken",
		ohlcvSequence: []struct {
			rows []OHLCVRow
			err  error
		}{
			{err: ErrRateLimited},
			{rows: []OHLCVRow{row}},
		},
	}
	client := NewClient(raw, time.Millisecond, nil)

	rows, err := client.FetchOHLCV(context.Background(), Market{ID: "BTC/USD"}, Granularity{Name: "1m"}, 0)
	if err != nil {
		t.Fatalf("FetchOHLCV: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %+v, want 1 row", rows)
	}
	if raw.calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", raw.calls)
	}
}

func TestClientGranularityLadderFallsBack(t *testing.T) {
	row := OHLCVRow{Close: decimal.NewFromInt(50)}
	raw := &fakeExchange{
		name: "kraken",
		ohlcvSequence: []struct {
			rows []OHLCVRow
			err  error
		}{
			{rows: nil},
			{rows: []OHLCVRow{row}},
		},
	}
	client := NewClient(raw, time.Millisecond, []Granularity{
		{Name: "1m", Duration: time.Minute},
		{Name: "1h", Duration: time.Hour},
	})

	rows, g, err := client.FetchBarAtGranularityLadder(context.Background(), Market{ID: "BTC/USD"}, 0)
	if err != nil {
		t.Fatalf("FetchBarAtGranularityLadder: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %+v, want 1", rows)
	}
	if g.Name != "1h" {
		t.Errorf("granularity = %s, want 1h (the fallback)", g.Name)
	}
}

func TestClientRetryBudgetExhausted(t *testing.T) {
	sequence := make([]struct {
		rows []OHLCVRow
		err  error
	}, 5)
	for i := range sequence {
		sequence[i].err = ErrRateLimited
	}
	raw := &fakeExchange{name: "kraken", ohlcvSequence: sequence}
	client := NewClient(raw, time.Millisecond, nil)

	_, err := client.FetchOHLCV(context.Background(), Market{ID: "BTC/USD"}, Granularity{Name: "1m"}, 0)
	if err == nil {
		t.Fatal("expected retry budget exhaustion error")
	}
}
