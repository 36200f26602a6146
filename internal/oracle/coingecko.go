package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/walletrisk/internal/metrics"
	"github.com/mbd888/walletrisk/internal/retry"
	"github.com/mbd888/walletrisk/internal/upstream"
)

// DefaultBaseURL is the public CoinGecko API.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

const volatilityWindowDays = 30

type cachedQuote struct {
	quote     Quote
	fetchedAt time.Time
}

// PriceOracle fetches price and volatility from CoinGecko with per-asset
// caching. On failure it serves the last known quote if there is one.
type PriceOracle struct {
	mu      sync.RWMutex
	cache   map[string]cachedQuote
	ttl     time.Duration
	baseURL string
	client  *http.Client
	guard   *upstream.Guard
}

// NewPriceOracle creates a price oracle. guard may be nil.
func NewPriceOracle(baseURL string, cacheTTL time.Duration, guard *upstream.Guard) *PriceOracle {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &PriceOracle{
		cache:   make(map[string]cachedQuote),
		ttl:     cacheTTL,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
		guard:   guard,
	}
}

// Quote returns the asset's price and volatility. Cached quotes are served
// until the TTL lapses; a failed refresh falls back to the stale quote.
func (o *PriceOracle) Quote(ctx context.Context, asset string) (Quote, error) {
	id := strings.ToLower(asset)

	o.mu.RLock()
	cached, ok := o.cache[id]
	o.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < o.ttl {
		return cached.quote, nil
	}

	q, err := o.fetch(ctx, id)
	if err != nil {
		if ok {
			stale := cached.quote
			stale.Source = SourceCached
			return stale, nil
		}
		return Quote{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	o.mu.Lock()
	o.cache[id] = cachedQuote{quote: q, fetchedAt: time.Now()}
	o.mu.Unlock()

	metrics.OracleVolatility.WithLabelValues(id).Set(q.Volatility)
	return q, nil
}

func (o *PriceOracle) fetch(ctx context.Context, id string) (Quote, error) {
	var price float64
	var prices []float64
	call := func(ctx context.Context) error {
		var err error
		if price, err = o.fetchPrice(ctx, id); err != nil {
			return err
		}
		prices, err = o.fetchHistory(ctx, id)
		return err
	}

	var err error
	if o.guard != nil {
		err = o.guard.Call(ctx, "oracle", call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Asset:      id,
		PriceUSD:   price,
		Volatility: Volatility(prices),
		Source:     SourceLive,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// fetchPrice queries the CoinGecko simple price API.
func (o *PriceOracle) fetchPrice(ctx context.Context, id string) (float64, error) {
	var result map[string]struct {
		USD float64 `json:"usd"`
	}
	q := url.Values{"ids": {id}, "vs_currencies": {"usd"}}
	if err := o.getJSON(ctx, "/simple/price?"+q.Encode(), &result); err != nil {
		return 0, err
	}
	entry, ok := result[id]
	if !ok {
		return 0, retry.Permanent(fmt.Errorf("unknown asset %q", id))
	}
	if entry.USD <= 0 {
		return 0, fmt.Errorf("invalid price returned: %f", entry.USD)
	}
	return entry.USD, nil
}

// fetchHistory returns daily closing prices over the volatility window.
func (o *PriceOracle) fetchHistory(ctx context.Context, id string) ([]float64, error) {
	var result struct {
		Prices [][2]float64 `json:"prices"`
	}
	q := url.Values{"vs_currency": {"usd"}, "days": {fmt.Sprint(volatilityWindowDays)}, "interval": {"daily"}}
	if err := o.getJSON(ctx, "/coins/"+url.PathEscape(id)+"/market_chart?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	prices := make([]float64, 0, len(result.Prices))
	for _, p := range result.Prices {
		prices = append(prices, p[1])
	}
	return prices, nil
}

func (o *PriceOracle) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("oracle API returned status %d", resp.StatusCode)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return retry.Permanent(err)
		case http.StatusTooManyRequests:
			if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
				return retry.After(err, time.Duration(secs)*time.Second)
			}
		}
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode oracle response: %w", err)
	}
	return nil
}

// Volatility is the standard deviation of daily log returns scaled to the
// 30-day window (sd * sqrt(30)), clamped to [0,1]. This is the scale of the
// fallback defaults: ETH typically reads near MajorVolatility and stablecoins
// near StablecoinVolatility. Fewer than two usable returns yield zero.
func Volatility(prices []float64) float64 {
	returns := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(prices[i]/prices[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(ss / float64(len(returns)-1))
	return math.Max(0, math.Min(1, sd*math.Sqrt(volatilityWindowDays)))
}
