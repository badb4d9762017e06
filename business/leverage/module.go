// Package leverage implements the leverage bounded context: sizing and
// composing atomic leverage/deleverage transaction units.
package leverage

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/curg-13/levkit/business/leverage/app"
	leverageDI "github.com/curg-13/levkit/business/leverage/di"
	"github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/business/leverage/infra/aave"
	"github.com/curg-13/levkit/business/leverage/infra/aggregator"
	pricingDI "github.com/curg-13/levkit/business/pricing/di"
	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/config"
	"github.com/curg-13/levkit/internal/di"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/monolith"
)

// Module implements the leverage bounded context.
type Module struct{}

// RegisterServices registers all leverage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register LendingProtocol (Aave V3) - private dependency
	di.RegisterToken(c, leverageDI.Protocol, func(sr di.ServiceRegistry) app.LendingProtocol {
		cfg := di.Resolve[*config.Config](sr, "config")
		log := di.Resolve[logger.LoggerInterface](sr, "logger")
		ethClient := di.Resolve[*ethclient.Client](sr, "ethClient")
		registry := di.Resolve[*asset.Registry](sr, "assetRegistry")

		adapter, err := aave.NewLendingAdapter(ethClient, aave.LendingConfig{
			Pool:            cfg.Protocol.PoolAddressHex(),
			CollateralAsset: mustAsset(registry, cfg.Protocol.CollateralAsset, cfg.Ethereum.ChainID),
			DebtAsset:       mustAsset(registry, cfg.Protocol.DebtAsset, cfg.Ethereum.ChainID),
			AToken:          cfg.Protocol.ATokenAddressHex(),
			DebtToken:       cfg.Protocol.DebtTokenAddressHex(),
		}, log)
		if err != nil {
			panic("failed to create lending adapter: " + err.Error())
		}
		return adapter
	})

	// Register FlashLoanProvider (Aave V3) - private dependency
	di.RegisterToken(c, leverageDI.Flash, func(sr di.ServiceRegistry) app.FlashLoanProvider {
		cfg := di.Resolve[*config.Config](sr, "config")
		log := di.Resolve[logger.LoggerInterface](sr, "logger")
		ethClient := di.Resolve[*ethclient.Client](sr, "ethClient")

		provider, err := aave.NewFlashProvider(context.Background(), ethClient, aave.FlashConfig{
			Pool:           cfg.FlashLoan.PoolAddressHex(),
			FallbackFeeBps: cfg.FlashLoan.FeeBps,
		}, log)
		if err != nil {
			panic("failed to create flash-loan provider: " + err.Error())
		}
		return provider
	})

	// Register SwapAggregator (1inch) - private dependency
	di.RegisterToken(c, leverageDI.Swapper, func(sr di.ServiceRegistry) app.SwapAggregator {
		cfg := di.Resolve[*config.Config](sr, "config")
		log := di.Resolve[logger.LoggerInterface](sr, "logger")

		client, err := aggregator.New(aggregator.Config{
			BaseURL:           cfg.Aggregator.BaseURL,
			APIKey:            cfg.Aggregator.APIKey,
			Timeout:           cfg.Aggregator.Timeout,
			RequestsPerSecond: cfg.Aggregator.RequestsPerSecond,
			Burst:             cfg.Aggregator.Burst,
		}, log)
		if err != nil {
			panic("failed to create aggregator client: " + err.Error())
		}
		return client
	})

	// Register PriceOracle - private, backed by the pricing module
	di.RegisterToken(c, leverageDI.Oracle, func(sr di.ServiceRegistry) app.PriceOracle {
		return pricingDI.GetPriceService(sr)
	})

	// Register Composer (public - exposed to other modules)
	di.RegisterToken(c, leverageDI.Composer, func(sr di.ServiceRegistry) *app.Composer {
		cfg := di.Resolve[*config.Config](sr, "config")
		log := di.Resolve[logger.LoggerInterface](sr, "logger")
		registry := di.Resolve[*asset.Registry](sr, "assetRegistry")

		composer, err := app.NewComposer(
			leverageDI.GetProtocol(sr),
			leverageDI.GetFlash(sr),
			leverageDI.GetSwapper(sr),
			leverageDI.GetOracle(sr),
			app.ComposerConfig{
				RepaymentAsset: mustAsset(registry, cfg.Leverage.RepaymentAsset, cfg.Ethereum.ChainID),
				Buffers: domain.Buffers{
					SafetyPercent:        cfg.Leverage.SafetyBufferDecimal(),
					InterestPercent:      cfg.Leverage.InterestBufferDecimal(),
					SwapPercent:          cfg.Leverage.SwapBufferDecimal(),
					BorrowFeePercent:     cfg.Leverage.BorrowFeeBufferDecimal(),
					SwapSlippageBps:      cfg.Leverage.SwapSlippageBps,
					LiquidationThreshold: cfg.Protocol.LiquidationLTVDecimal(),
				},
				RelockAfter: cfg.Protocol.RelockAfter,
			},
			log,
		)
		if err != nil {
			panic("failed to create composer: " + err.Error())
		}
		return composer
	})

	return nil
}

// Startup initializes the leverage module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	// Resolving the composer eagerly surfaces wiring errors at startup
	// instead of on the first command.
	composer := leverageDI.GetComposer(mono.Services())
	_ = composer

	log.Info(ctx, "leverage module started",
		"protocol", mono.Config().Protocol.Name,
		"repayment_asset", mono.Config().Leverage.RepaymentAsset,
	)
	return nil
}

func mustAsset(registry *asset.Registry, symbol string, chainID uint64) *asset.Asset {
	a, ok := registry.GetBySymbolAndChain(symbol, chainID)
	if !ok {
		panic("unknown asset symbol: " + symbol)
	}
	return a
}
