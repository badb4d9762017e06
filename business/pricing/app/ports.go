// Package app contains application services and port definitions for the
// pricing context.
package app

import (
	"context"

	"github.com/curg-13/levkit/business/pricing/domain"
)

// FeedProvider defines the interface for a streaming price feed with an
// on-demand fallback.
type FeedProvider interface {
	// Latest returns the last streamed price for a feed symbol, if any.
	Latest(symbol string) (domain.PricePoint, bool)

	// Fetch retrieves a fresh price over HTTP, used when the stream is
	// stale or not yet connected.
	Fetch(ctx context.Context, symbol string) (domain.PricePoint, error)
}
