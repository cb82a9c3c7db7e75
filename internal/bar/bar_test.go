package bar

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal.NewFromString(%q): %v", s, err)
	}
	return d
}

func TestHistoricalBarValidate(t *testing.T) {
	ts := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		bar     HistoricalBar
		wantErr bool
	}{
		{
			name: "valid bar",
			bar: HistoricalBar{
				Duration: time.Minute,
				Timestamp: ts,
				Open:   mustDecimal(t, "10"),
				High:   mustDecimal(t, "12"),
				Low:    mustDecimal(t, "9"),
				Close:  mustDecimal(t, "11"),
				Volume: mustDecimal(t, "100"),
			},
		},
		{
			name: "zero duration",
			bar: HistoricalBar{
				Duration: 0,
				Open:     mustDecimal(t, "1"),
				High:     mustDecimal(t, "1"),
				Low:      mustDecimal(t, "1"),
				Close:    mustDecimal(t, "1"),
			},
			wantErr: true,
		},
		{
			name: "negative volume",
			bar: HistoricalBar{
				Duration: time.Minute,
				Open:     mustDecimal(t, "1"),
				High:     mustDecimal(t, "1"),
				Low:      mustDecimal(t, "1"),
				Close:    mustDecimal(t, "1"),
				Volume:   mustDecimal(t, "-1"),
			},
			wantErr: true,
		},
		{
			name: "low above min(open,close)",
			bar: HistoricalBar{
				Duration: time.Minute,
				Open:     mustDecimal(t, "10"),
				High:     mustDecimal(t, "10"),
				Low:      mustDecimal(t, "9.5"),
				Close:    mustDecimal(t, "9"),
			},
			wantErr: true,
		},
		{
			name: "high below max(open,close)",
			bar: HistoricalBar{
				Duration: time.Minute,
				Open:     mustDecimal(t, "10"),
				High:     mustDecimal(t, "10.5"),
				Low:      mustDecimal(t, "9"),
				Close:    mustDecimal(t, "11"),
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.bar.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewUnitBar(t *testing.T) {
	ts := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewUnitBar(ts)

	if err := b.Validate(); err != nil {
		t.Fatalf("unit bar failed validation: %v", err)
	}
	one := decimal.NewFromInt(1)
	for name, got := range map[string]decimal.Decimal{"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close} {
		if !got.Equal(one) {
			t.Errorf("unit bar %s = %s, want 1", name, got)
		}
	}
	if !b.Volume.IsZero() {
		t.Errorf("unit bar volume = %s, want 0", b.Volume)
	}
}

func TestHistoricalBarPrice(t *testing.T) {
	ts := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	b := HistoricalBar{
		Duration: time.Hour,
		Timestamp: ts,
		Open:   mustDecimal(t, "10"),
		High:   mustDecimal(t, "15"),
		Low:    mustDecimal(t, "5"),
		Close:  mustDecimal(t, "12"),
	}

	cases := []struct {
		pt     PriceType
		target time.Time
		want   decimal.Decimal
	}{
		{PriceOpen, ts, b.Open},
		{PriceHigh, ts, b.High},
		{PriceLow, ts, b.Low},
		{PriceClose, ts, b.Close},
		{PriceNearest, ts, b.Open},
		{PriceNearest, ts.Add(59 * time.Minute), b.Close},
	}

	for _, tc := range cases {
		got := b.Price(tc.pt, tc.target)
		if !got.Equal(tc.want) {
			t.Errorf("Price(%v, %v) = %s, want %s", tc.pt, tc.target, got, tc.want)
		}
	}
}

func TestMultiplyBars(t *testing.T) {
	ts := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty hops", func(t *testing.T) {
		_, ok := MultiplyBars(nil, ts)
		if ok {
			t.Fatal("expected ok=false for empty hops")
		}
	})

	t.Run("single hop passthrough", func(t *testing.T) {
		hop := HistoricalBar{
			Duration: time.Minute,
			Open:   mustDecimal(t, "2"),
			High:   mustDecimal(t, "3"),
			Low:    mustDecimal(t, "1"),
			Close:  mustDecimal(t, "2.5"),
			Volume: mustDecimal(t, "10"),
		}
		got, ok := MultiplyBars([]HistoricalBar{hop}, ts)
		if !ok {
			t.Fatal("expected ok=true")
		}
		if !got.Close.Equal(hop.Close) {
			t.Errorf("Close = %s, want %s", got.Close, hop.Close)
		}
		if !got.Timestamp.Equal(ts) {
			t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
		}
	})

	t.Run("two hop composition", func(t *testing.T) {
		hopA := NewConstantBar(ts, time.Minute, mustDecimal(t, "2"), mustDecimal(t, "5"))
		hopB := NewConstantBar(ts, time.Hour, mustDecimal(t, "3"), mustDecimal(t, "7"))
		got, ok := MultiplyBars([]HistoricalBar{hopA, hopB}, ts)
		if !ok {
			t.Fatal("expected ok=true")
		}
		want := mustDecimal(t, "6")
		if !got.Close.Equal(want) {
			t.Errorf("Close = %s, want %s", got.Close, want)
		}
		if got.Duration != time.Hour {
			t.Errorf("Duration = %v, want %v", got.Duration, time.Hour)
		}
		if !got.Volume.Equal(mustDecimal(t, "12")) {
			t.Errorf("Volume = %s, want 12", got.Volume)
		}
	})
}
