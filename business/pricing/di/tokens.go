// Package di contains dependency injection tokens for the pricing context.
package di

import (
	"github.com/curg-13/levkit/business/pricing/app"
	"github.com/curg-13/levkit/internal/di"
)

// Public service tokens - exposed to other modules
var (
	PriceService = di.NewToken[*app.PriceService]("pricing.PriceService")
)

// Private dependency tokens - internal to pricing module
var (
	Feed = di.NewToken[app.FeedProvider]("pricing:feed")
)

// Helper functions for type-safe access
func GetPriceService(c di.ServiceRegistry) *app.PriceService {
	return di.GetToken(c, PriceService)
}

func GetFeed(c di.ServiceRegistry) app.FeedProvider {
	return di.GetToken(c, Feed)
}
