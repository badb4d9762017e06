package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/logger"
)

// defaultFeedSymbols maps asset symbols to their feed pairs. Wrapped assets
// trade at the price of the underlying.
var defaultFeedSymbols = map[string]string{
	"ETH":    "ETHUSDC",
	"WETH":   "ETHUSDC",
	"wstETH": "ETHUSDC",
	"WBTC":   "BTCUSDC",
}

// stableSymbols are assets pinned to one dollar for sizing purposes.
var stableSymbols = map[string]struct{}{
	"USDC": {},
	"DAI":  {},
	"USDT": {},
}

// ServiceConfig holds PriceService settings.
type ServiceConfig struct {
	// StaleTimeout is how old a streamed price may be before the service
	// falls back to an HTTP fetch.
	StaleTimeout time.Duration

	// FeedSymbols overrides the default asset-to-feed-symbol mapping.
	FeedSymbols map[string]string
}

// PriceService serves USD unit prices from the streaming feed, falling back
// to HTTP when the stream is stale. It implements the price oracle used by
// plan sizing: a missing or zero price is an error, never a default.
type PriceService struct {
	feed         FeedProvider
	staleTimeout time.Duration
	symbols      map[string]string
	logger       logger.LoggerInterface
	now          func() time.Time
}

// NewPriceService creates a PriceService.
func NewPriceService(feed FeedProvider, cfg ServiceConfig, log logger.LoggerInterface) *PriceService {
	staleTimeout := cfg.StaleTimeout
	if staleTimeout <= 0 {
		staleTimeout = 5 * time.Second
	}
	symbols := cfg.FeedSymbols
	if symbols == nil {
		symbols = defaultFeedSymbols
	}
	return &PriceService{
		feed:         feed,
		staleTimeout: staleTimeout,
		symbols:      symbols,
		logger:       log,
		now:          time.Now,
	}
}

// Price returns the USD unit price for the asset.
func (s *PriceService) Price(ctx context.Context, a *asset.Asset) (decimal.Decimal, error) {
	if a == nil {
		return decimal.Zero, apperror.Validation(apperror.CodeInvalidParameter, "asset is required")
	}
	if _, ok := stableSymbols[a.Symbol()]; ok {
		return decimal.NewFromInt(1), nil
	}

	feedSymbol, ok := s.symbols[a.Symbol()]
	if !ok {
		return decimal.Zero, apperror.New(apperror.CodePriceUnavailable,
			apperror.WithContext("no feed symbol for "+a.Symbol()))
	}

	if p, ok := s.feed.Latest(feedSymbol); ok && p.IsUsable() && !p.IsStale(s.staleTimeout, s.now()) {
		return p.PriceUSD, nil
	}

	p, err := s.feed.Fetch(ctx, feedSymbol)
	if err != nil {
		// A stale streamed price is still evidence the feed knows the
		// symbol; report staleness rather than absence.
		if prev, ok := s.feed.Latest(feedSymbol); ok && prev.IsUsable() {
			return decimal.Zero, apperror.New(apperror.CodePriceStale,
				apperror.WithCause(err),
				apperror.WithContext(feedSymbol))
		}
		return decimal.Zero, apperror.Wrap(err, apperror.CodePriceUnavailable, feedSymbol)
	}
	if !p.IsUsable() {
		return decimal.Zero, apperror.New(apperror.CodePriceUnavailable,
			apperror.WithContext(feedSymbol+" returned non-positive price"))
	}

	s.logger.Debug(ctx, "price served from http fallback",
		"symbol", feedSymbol, "price", p.PriceUSD.String())
	return p.PriceUSD, nil
}
