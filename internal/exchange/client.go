package exchange

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Failure classes an exchange call can fail with, driving the retry policy.
var (
	ErrGeneric     = errors.New("exchange: generic error")
	ErrRateLimited = errors.New("exchange: rate limited")
	ErrUnavailable = errors.New("exchange: unavailable")
)

const retryBudget = 9

const (
	genericRetryDelay     = 100 * time.Millisecond
	rateLimitRetryDelay   = 100 * time.Millisecond
	unavailableRetryDelay = 10 * time.Second
)

const (
	genericWeight     = 0 // a generic failure aborts the current granularity without charging budget
	rateLimitWeight   = 3
	unavailableWeight = 1
)

// RawExchange is the minimal surface a concrete exchange adapter must
// implement. Client wraps it with retry, backoff, and throttling.
type RawExchange interface {
	Name() string
	FetchMarkets(ctx context.Context) ([]Market, error)
	FetchOHLCV(ctx context.Context, market Market, granularity Granularity, since int64) ([]OHLCVRow, error)
}

// Client adds retry/backoff/throttle policy on top of a RawExchange.
type Client struct {
	raw           RawExchange
	limiter       *rate.Limiter
	granularities []Granularity
}

// NewClient wraps raw with a per-exchange minimum delay throttle and the
// granularity ladder to fall back through when a finer candle isn't
// available. granularities must be ordered from finest to coarsest.
func NewClient(raw RawExchange, minDelay time.Duration, granularities []Granularity) *Client {
	if minDelay <= 0 {
		minDelay = time.Second
	}
	return &Client{
		raw:           raw,
		limiter:       rate.NewLimiter(rate.Every(minDelay), 1),
		granularities: granularities,
	}
}

// Name returns the wrapped exchange's name.
func (c *Client) Name() string {
	return c.raw.Name()
}

// FetchMarkets returns every market the exchange lists, retried per policy.
func (c *Client) FetchMarkets(ctx context.Context) ([]Market, error) {
	var markets []Market
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var innerErr error
		markets, innerErr = c.raw.FetchMarkets(ctx)
		return innerErr
	})
	if err != nil {
		return nil, fmt.Errorf("exchange %s: fetch markets: %w", c.Name(), err)
	}
	return markets, nil
}

// FetchOHLCV fetches candles for market at the given granularity since since,
// retried per policy.
func (c *Client) FetchOHLCV(ctx context.Context, market Market, granularity Granularity, since int64) ([]OHLCVRow, error) {
	var rows []OHLCVRow
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var innerErr error
		rows, innerErr = c.raw.FetchOHLCV(ctx, market, granularity, since)
		return innerErr
	})
	if err != nil {
		return nil, fmt.Errorf("exchange %s: fetch OHLCV %s: %w", c.Name(), market.ID, err)
	}
	return rows, nil
}

// FetchBarAtGranularityLadder tries each configured granularity from finest
// to coarsest until one returns data, falling back the way a smart-fee
// estimate falls back through fee modes to a mempool floor.
func (c *Client) FetchBarAtGranularityLadder(ctx context.Context, market Market, since int64) ([]OHLCVRow, Granularity, error) {
	var lastErr error
	for _, g := range c.granularities {
		rows, err := c.FetchOHLCV(ctx, market, g, since)
		if err != nil {
			lastErr = err
			continue
		}
		if len(rows) > 0 {
			return rows, g, nil
		}
	}
	if lastErr != nil {
		return nil, Granularity{}, fmt.Errorf("exchange %s: exhausted granularity ladder for %s: %w", c.Name(), market.ID, lastErr)
	}
	return nil, Granularity{}, fmt.Errorf("exchange %s: no candles at any granularity for %s", c.Name(), market.ID)
}

// withRetry runs op under the exchange's minimum-delay throttle and the
// fixed-delay retry policy: a generic error pauses genericRetryDelay and then
// aborts (no further attempts), a rate-limit error sleeps rateLimitRetryDelay
// and charges weight 3 against the call's retry budget, and an
// unavailable/network error sleeps 10s and charges weight 1. The call gives up
// once the budget is exhausted.
func (c *Client) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle: %w", err)
	}

	spent := 0
	rateLimitBackoff := backoff.NewConstantBackOff(rateLimitRetryDelay)
	unavailableBackoff := backoff.NewConstantBackOff(unavailableRetryDelay)

	for {
		err := op(ctx)
		if err == nil {
			return nil
		}

		switch {
		case errors.Is(err, ErrGeneric):
			log.Printf("[exchange] %s: generic error, aborting: %v", c.Name(), err)
			if sleepErr := sleep(ctx, genericRetryDelay); sleepErr != nil {
				return sleepErr
			}
			return err
		case errors.Is(err, ErrRateLimited):
			spent += rateLimitWeight
			if spent > retryBudget {
				return fmt.Errorf("retry budget exhausted after rate limiting: %w", err)
			}
			log.Printf("[exchange] %s: rate limited, sleeping %s", c.Name(), rateLimitRetryDelay)
			if sleepErr := sleep(ctx, rateLimitBackoff.NextBackOff()); sleepErr != nil {
				return sleepErr
			}
		case errors.Is(err, ErrUnavailable):
			spent += unavailableWeight
			if spent > retryBudget {
				return fmt.Errorf("retry budget exhausted after unavailability: %w", err)
			}
			log.Printf("[exchange] %s: unavailable, sleeping %s", c.Name(), unavailableRetryDelay)
			if sleepErr := sleep(ctx, unavailableBackoff.NextBackOff()); sleepErr != nil {
				return sleepErr
			}
		default:
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
