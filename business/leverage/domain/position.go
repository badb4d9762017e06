package domain

import (
	"github.com/shopspring/decimal"

	"github.com/curg-13/levkit/internal/asset"
)

// Position is an open lending position: collateral deposited and debt
// borrowed against it. Amounts are raw on-chain quantities.
type Position struct {
	Collateral asset.Amount
	Debt       asset.Amount
}

// HasDebt reports whether any debt is outstanding.
func (p Position) HasDebt() bool {
	return p.Debt.IsPositive()
}

// NetValueUSD is collateral value minus debt value at the given unit prices.
// Negative means the position is underwater.
func (p Position) NetValueUSD(collateralPriceUSD, debtPriceUSD decimal.Decimal) decimal.Decimal {
	return p.Collateral.ValueUSD(collateralPriceUSD).Sub(p.Debt.ValueUSD(debtPriceUSD))
}

// IsUnderwater reports whether debt value exceeds collateral value.
func (p Position) IsUnderwater(collateralPriceUSD, debtPriceUSD decimal.Decimal) bool {
	return p.NetValueUSD(collateralPriceUSD, debtPriceUSD).IsNegative()
}
