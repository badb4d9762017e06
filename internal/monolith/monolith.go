// Package monolith provides the application container and module interface.
package monolith

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/config"
	"github.com/curg-13/levkit/internal/di"
	"github.com/curg-13/levkit/internal/logger"
)

// Monolith gives bounded-context modules access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	EthClient() *ethclient.Client
	AssetRegistry() *asset.Registry
	Services() di.ServiceRegistry
}

// Module is a bounded context that registers services and starts up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	ethClient     *ethclient.Client
	assetRegistry *asset.Registry
	container     di.Container
}

// New creates the container and dials the Ethereum node.
func New(cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	ethClient, err := ethclient.Dial(cfg.Ethereum.HTTPURL)
	if err != nil {
		return nil, err
	}

	registry := asset.DefaultRegistry()

	container := di.NewContainer()
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("ethClient", ethClient)
	container.Register("assetRegistry", registry)

	return &app{
		config:        cfg,
		logger:        log,
		ethClient:     ethClient,
		assetRegistry: registry,
		container:     container,
	}, nil
}

func (a *app) Config() *config.Config         { return a.config }
func (a *app) Logger() logger.LoggerInterface { return a.logger }
func (a *app) EthClient() *ethclient.Client   { return a.ethClient }
func (a *app) AssetRegistry() *asset.Registry { return a.assetRegistry }
func (a *app) Services() di.ServiceRegistry   { return a.container }

// Container returns the DI container for module registration.
func (a *app) Container() di.Container { return a.container }

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules in order.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close releases shared resources.
func (a *app) Close() error {
	if a.ethClient != nil {
		a.ethClient.Close()
	}
	return nil
}
