// Package di exposes the chain context's dependency-injection tokens.
package di

import (
	"github.com/curg-13/levkit/business/chain/app"
	"github.com/curg-13/levkit/internal/di"
)

// Public tokens: other modules may depend on these.
var (
	// ChainService is the chain context's application service.
	ChainService = di.NewToken[*app.ChainService]("chain.ChainService")
)

// Private tokens: internal wiring for this module only.
var (
	HeadSource   = di.NewToken[app.HeadSource]("chain:headSource")
	GasEstimator = di.NewToken[app.GasEstimator]("chain:gasEstimator")
)

// GetChainService resolves the chain service from the registry.
func GetChainService(sr di.ServiceRegistry) *app.ChainService {
	return di.GetToken(sr, ChainService)
}

// GetHeadSource resolves the head source from the registry.
func GetHeadSource(sr di.ServiceRegistry) app.HeadSource {
	return di.GetToken(sr, HeadSource)
}

// GetGasEstimator resolves the gas estimator from the registry.
func GetGasEstimator(sr di.ServiceRegistry) app.GasEstimator {
	return di.GetToken(sr, GasEstimator)
}
