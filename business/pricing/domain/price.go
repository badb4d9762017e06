// Package domain contains the core domain types for the pricing context.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one observed USD price for a feed symbol.
type PricePoint struct {
	Symbol     string // feed symbol, e.g. "ETHUSDC"
	PriceUSD   decimal.Decimal
	Source     string // "feed-ws", "feed-http"
	ObservedAt time.Time
}

// NewPricePoint creates a price point observed now.
func NewPricePoint(symbol string, priceUSD decimal.Decimal, source string) PricePoint {
	return PricePoint{
		Symbol:     symbol,
		PriceUSD:   priceUSD,
		Source:     source,
		ObservedAt: time.Now(),
	}
}

// IsStale reports whether the observation is older than maxAge at now.
func (p PricePoint) IsStale(maxAge time.Duration, now time.Time) bool {
	return now.Sub(p.ObservedAt) > maxAge
}

// IsUsable reports whether the point carries a positive price. A zero price
// must never feed sizing math.
func (p PricePoint) IsUsable() bool {
	return p.PriceUSD.IsPositive()
}
