// Package fiat resolves historical fiat-to-fiat exchange rates, anchored on
// USD, for conversions that never touch crypto markets at all.
package fiat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rawblock/dali-resolver/internal/bar"
	"github.com/rawblock/dali-resolver/internal/cache"
	"github.com/shopspring/decimal"
)

// ErrNotFiatPair is returned by GetFiatExchangeRate unless exactly one side of
// the requested pair is USD: this converter only ever has direct rates against
// USD, so anything else would have to be routed by a pair converter instead.
var ErrNotFiatPair = errors.New("fiat: at least one side of the pair must be USD")

const maxRetryAttempts = 5

// Converter fetches and caches historical fiat exchange rates from a
// USD-anchored daily-rate API.
type Converter struct {
	accessKey string
	baseURL   string
	client    *http.Client
	cache     *cache.BarCache

	fiatsOnce sync.Once
	fiatsErr  error
	fiats     map[string]struct{}
	fiatsMu   sync.RWMutex
}

// NewConverter returns a Converter using httpClient (http.DefaultClient if
// nil) against baseURL, authenticating with accessKey, and caching resolved
// rates in barCache.
func NewConverter(accessKey, baseURL string, httpClient *http.Client, barCache *cache.BarCache) *Converter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Converter{
		accessKey: accessKey,
		baseURL:   baseURL,
		client:    httpClient,
		cache:     barCache,
	}
}

type listResponse struct {
	Success    bool              `json:"success"`
	Currencies map[string]string `json:"currencies"`
}

// IsFiat reports whether asset is a known fiat currency code, lazily
// fetching and caching the supported-currency list on first use.
func (c *Converter) IsFiat(ctx context.Context, asset string) (bool, error) {
	c.fiatsOnce.Do(func() {
		c.fiatsErr = c.loadFiatList(ctx)
	})
	if c.fiatsErr != nil {
		return false, c.fiatsErr
	}
	c.fiatsMu.RLock()
	defer c.fiatsMu.RUnlock()
	_, ok := c.fiats[asset]
	return ok, nil
}

func (c *Converter) loadFiatList(ctx context.Context) error {
	url := fmt.Sprintf("%s/list?access_key=%s", c.baseURL, c.accessKey)
	body, err := c.getWithRetry(ctx, url)
	if err != nil {
		return fmt.Errorf("fiat: load currency list: %w", err)
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("fiat: decode currency list: %w", err)
	}

	c.fiatsMu.Lock()
	defer c.fiatsMu.Unlock()
	c.fiats = make(map[string]struct{}, len(resp.Currencies))
	for code := range resp.Currencies {
		c.fiats[code] = struct{}{}
	}
	return nil
}

type historicalResponse struct {
	Success bool               `json:"success"`
	Date    string             `json:"date"`
	Rates   map[string]float64 `json:"rates"`
}

// GetFiatExchangeRate returns the historical bar for converting from -> to
// at ts. Exactly one of from/to must be USD; if both or neither is, it
// returns ErrNotFiatPair. The USD-forward rate is cached under (USD, other)
// and its exact reciprocal under (other, USD) in the same call, since the
// upstream API only ever publishes USD-anchored rates.
func (c *Converter) GetFiatExchangeRate(ctx context.Context, ts time.Time, from, to string) (bar.HistoricalBar, bool, error) {
	fromIsUSD := from == "USD"
	toIsUSD := to == "USD"
	if fromIsUSD == toIsUSD {
		return bar.HistoricalBar{}, false, ErrNotFiatPair
	}

	other := to
	if !fromIsUSD {
		other = from
	}

	key := bar.AssetPairAndTimestamp{Timestamp: ts, FromAsset: "USD", ToAsset: other, Exchange: "fiat"}
	if cached, ok, err := c.cache.Get(key); err == nil && ok {
		return selectDirection(cached, fromIsUSD), true, nil
	}

	day := ts.UTC().Format("2006-01-02")
	url := fmt.Sprintf("%s/historical?access_key=%s&date=%s&base=USD&symbols=%s", c.baseURL, c.accessKey, day, other)
	body, err := c.getWithRetry(ctx, url)
	if err != nil {
		return bar.HistoricalBar{}, false, fmt.Errorf("fiat: fetch historical rate: %w", err)
	}

	var resp historicalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return bar.HistoricalBar{}, false, fmt.Errorf("fiat: decode historical rate: %w", err)
	}
	rate, ok := resp.Rates[other]
	if !ok {
		return bar.HistoricalBar{}, false, nil
	}

	dayStart := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	forward := bar.NewConstantBar(dayStart, 24*time.Hour, decimal.NewFromFloat(rate), decimal.Zero)
	if err := c.cache.Put(key, forward); err != nil {
		return bar.HistoricalBar{}, false, fmt.Errorf("fiat: cache forward rate: %w", err)
	}

	reciprocalKey := bar.AssetPairAndTimestamp{Timestamp: ts, FromAsset: other, ToAsset: "USD", Exchange: "fiat"}
	reciprocal := bar.NewConstantBar(dayStart, 24*time.Hour, decimal.NewFromInt(1).Div(decimal.NewFromFloat(rate)), decimal.Zero)
	if err := c.cache.Put(reciprocalKey, reciprocal); err != nil {
		return bar.HistoricalBar{}, false, fmt.Errorf("fiat: cache reciprocal rate: %w", err)
	}

	return selectDirection(forward, fromIsUSD), true, nil
}

func selectDirection(forward bar.HistoricalBar, fromIsUSD bool) bar.HistoricalBar {
	if fromIsUSD {
		return forward
	}
	one := decimal.NewFromInt(1)
	return bar.NewConstantBar(forward.Timestamp, forward.Duration, one.Div(forward.Close), forward.Volume)
}

func (c *Converter) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	// WithMaxRetries counts retries after the first attempt.
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetryAttempts-1)
	policy = backoff.WithContext(policy, ctx)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = data
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return body, nil
}
