// Package oracle supplies the price volatility the scorer penalises.
//
// A live PriceOracle reads CoinGecko; when no reading can be obtained,
// Resolve substitutes a documented per-asset default so scoring never blocks
// on the oracle.
package oracle

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("oracle unavailable")

// Sources reported in Quote.Source.
const (
	SourceLive    = "coingecko"
	SourceCached  = "cached"
	SourceStatic  = "static"
	SourceDefault = "default"
)

// Default volatilities used when no live reading exists.
const (
	StablecoinVolatility = 0.01
	MajorVolatility      = 0.30
	GenericVolatility    = 0.25
)

// Quote is a price and 30-day volatility for an asset.
type Quote struct {
	Asset      string    `json:"asset"`
	PriceUSD   float64   `json:"priceUsd"`
	Volatility float64   `json:"volatility"`
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

// Client fetches quotes.
type Client interface {
	Quote(ctx context.Context, asset string) (Quote, error)
}

var stablecoins = map[string]bool{
	"usd-coin": true, "usdc": true, "tether": true, "usdt": true,
	"dai": true, "binance-usd": true, "busd": true, "frax": true,
	"true-usd": true, "tusd": true, "paxos-standard": true, "usdp": true,
}

var majors = map[string]bool{
	"ethereum": true, "eth": true, "bitcoin": true, "btc": true,
	"wrapped-bitcoin": true, "wbtc": true, "weth": true,
}

// DefaultVolatility returns the fallback volatility for an asset id or symbol.
func DefaultVolatility(asset string) float64 {
	a := strings.ToLower(strings.TrimSpace(asset))
	switch {
	case stablecoins[a]:
		return StablecoinVolatility
	case majors[a]:
		return MajorVolatility
	default:
		return GenericVolatility
	}
}

// Resolve returns a quote for asset and never fails: a missing client, an
// error, or an out-of-range reading yields the default volatility with
// Source set to SourceDefault.
func Resolve(ctx context.Context, c Client, asset string) Quote {
	if c != nil {
		q, err := c.Quote(ctx, asset)
		if err == nil && q.Volatility >= 0 && q.Volatility <= 1 {
			return q
		}
	}
	return Quote{
		Asset:      asset,
		Volatility: DefaultVolatility(asset),
		Source:     SourceDefault,
		FetchedAt:  time.Now().UTC(),
	}
}

// StaticOracle serves fixed quotes, for development and tests.
type StaticOracle struct {
	quotes map[string]Quote
}

// NewStaticOracle creates an oracle that knows only the given quotes.
func NewStaticOracle(quotes ...Quote) *StaticOracle {
	s := &StaticOracle{quotes: make(map[string]Quote)}
	for _, q := range quotes {
		q.Source = SourceStatic
		s.quotes[strings.ToLower(q.Asset)] = q
	}
	return s
}

func (s *StaticOracle) Quote(_ context.Context, asset string) (Quote, error) {
	q, ok := s.quotes[strings.ToLower(asset)]
	if !ok {
		return Quote{}, ErrUnavailable
	}
	return q, nil
}
