// Package pricing implements the pricing bounded context: streamed USD
// prices with staleness guarantees for plan sizing.
package pricing

import (
	"context"
	"time"

	"github.com/curg-13/levkit/business/pricing/app"
	pricingDI "github.com/curg-13/levkit/business/pricing/di"
	"github.com/curg-13/levkit/business/pricing/infra/feed"
	"github.com/curg-13/levkit/internal/config"
	"github.com/curg-13/levkit/internal/di"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/monolith"
)

// Module implements the pricing bounded context.
type Module struct{}

// RegisterServices registers all pricing services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register FeedProvider - private dependency
	di.RegisterToken(c, pricingDI.Feed, func(sr di.ServiceRegistry) app.FeedProvider {
		cfg := di.Resolve[*config.Config](sr, "config")
		log := di.Resolve[logger.LoggerInterface](sr, "logger")

		client, err := feed.NewClient(feed.Config{
			WebSocketURL: cfg.Pricing.WebSocketURL,
			HTTPURL:      cfg.Pricing.HTTPURL,
			Symbols:      cfg.Pricing.Symbols,
		}, log)
		if err != nil {
			panic("failed to create feed client: " + err.Error())
		}
		return client
	})

	// Register PriceService (public - exposed to other modules)
	di.RegisterToken(c, pricingDI.PriceService, func(sr di.ServiceRegistry) *app.PriceService {
		cfg := di.Resolve[*config.Config](sr, "config")
		log := di.Resolve[logger.LoggerInterface](sr, "logger")

		return app.NewPriceService(pricingDI.GetFeed(sr), app.ServiceConfig{
			StaleTimeout: cfg.Pricing.StaleTimeout,
		}, log)
	})

	return nil
}

// Startup connects the price feed. A failed connection does not block
// startup; the HTTP fallback serves prices while the stream retries.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	provider := pricingDI.GetFeed(mono.Services())
	if connector, ok := provider.(interface{ Connect(context.Context) error }); ok {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := connector.Connect(connectCtx); err != nil {
			log.Warn(ctx, "feed connection failed, will retry in background", "error", err)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-time.After(5 * time.Second):
						if err := connector.Connect(ctx); err != nil {
							log.Warn(ctx, "feed retry failed", "error", err)
						} else {
							log.Info(ctx, "feed connected")
							return
						}
					}
				}
			}()
		}
	}

	log.Info(ctx, "pricing module started")
	return nil
}
