// Package chain implements the chain bounded context: head streaming and
// gas cost estimation against an Ethereum node.
package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/curg-13/levkit/business/chain/app"
	chainDI "github.com/curg-13/levkit/business/chain/di"
	"github.com/curg-13/levkit/business/chain/infra/ethereum"
	"github.com/curg-13/levkit/internal/config"
	"github.com/curg-13/levkit/internal/di"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/monolith"
)

// Module implements the chain bounded context.
type Module struct{}

// RegisterServices registers all chain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register HeadSource - private dependency
	di.RegisterToken(c, chainDI.HeadSource, func(sr di.ServiceRegistry) app.HeadSource {
		cfg := di.Resolve[*config.Config](sr, "config")
		log := di.Resolve[logger.LoggerInterface](sr, "logger")

		subCfg := ethereum.DefaultSubscriberConfig(cfg.Ethereum.WebSocketURL, cfg.Ethereum.HTTPURL)
		sub, err := ethereum.NewSubscriber(subCfg, log)
		if err != nil {
			panic("failed to create head subscriber: " + err.Error())
		}
		return sub
	})

	// Register GasEstimator - private dependency
	di.RegisterToken(c, chainDI.GasEstimator, func(sr di.ServiceRegistry) app.GasEstimator {
		log := di.Resolve[logger.LoggerInterface](sr, "logger")
		ethClient := di.Resolve[*ethclient.Client](sr, "ethClient")

		oracle, err := ethereum.NewGasOracle(ethClient, ethereum.DefaultGasOracleConfig(), log)
		if err != nil {
			panic("failed to create gas oracle: " + err.Error())
		}
		return oracle
	})

	// Register ChainService (public - exposed to other modules)
	di.RegisterToken(c, chainDI.ChainService, func(sr di.ServiceRegistry) *app.ChainService {
		log := di.Resolve[logger.LoggerInterface](sr, "logger")
		return app.NewChainService(
			chainDI.GetHeadSource(sr),
			chainDI.GetGasEstimator(sr),
			log,
		)
	})

	return nil
}

// Startup initializes the chain module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	svc := chainDI.GetChainService(mono.Services())

	// The head stream is best-effort at startup. Gas quoting works over
	// plain HTTP even when the subscription never comes up.
	if _, err := svc.SubscribeHeads(ctx); err != nil {
		log.Warn(ctx, "head subscription unavailable at startup", "error", err)

		go func() {
			retryCtx := context.Background()
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				if _, err := svc.SubscribeHeads(retryCtx); err == nil {
					log.Info(retryCtx, "head subscription established")
					return
				}
			}
		}()
	}

	log.Info(ctx, "chain module started",
		"http_url", mono.Config().Ethereum.HTTPURL,
		"chain_id", mono.Config().Ethereum.ChainID,
	)
	return nil
}
