// Package di contains dependency injection tokens for the leverage context.
package di

import (
	"github.com/curg-13/levkit/business/leverage/app"
	"github.com/curg-13/levkit/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Composer = di.NewToken[*app.Composer]("leverage.Composer")
)

// Private dependency tokens - internal to leverage module
var (
	Protocol = di.NewToken[app.LendingProtocol]("leverage:protocol")
	Flash    = di.NewToken[app.FlashLoanProvider]("leverage:flash")
	Swapper  = di.NewToken[app.SwapAggregator]("leverage:swapper")
	Oracle   = di.NewToken[app.PriceOracle]("leverage:oracle")
)

// Helper functions for type-safe access
func GetComposer(c di.ServiceRegistry) *app.Composer {
	return di.GetToken(c, Composer)
}

func GetProtocol(c di.ServiceRegistry) app.LendingProtocol {
	return di.GetToken(c, Protocol)
}

func GetFlash(c di.ServiceRegistry) app.FlashLoanProvider {
	return di.GetToken(c, Flash)
}

func GetSwapper(c di.ServiceRegistry) app.SwapAggregator {
	return di.GetToken(c, Swapper)
}

func GetOracle(c di.ServiceRegistry) app.PriceOracle {
	return di.GetToken(c, Oracle)
}
