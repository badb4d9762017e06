// Package domain contains the core domain types for the chain context.
package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// GasPrice is a point-in-time gas price observation.
type GasPrice struct {
	Wei        *big.Int
	ObservedAt time.Time
}

// NewGasPrice creates a GasPrice from wei, observed now.
func NewGasPrice(wei *big.Int) *GasPrice {
	return &GasPrice{
		Wei:        new(big.Int).Set(wei),
		ObservedAt: time.Now(),
	}
}

// Gwei returns the price in gwei.
func (g *GasPrice) Gwei() decimal.Decimal {
	return decimal.NewFromBigInt(g.Wei, -9)
}

// UnitCost is the estimated execution cost of one transaction unit.
type UnitCost struct {
	GasLimit uint64
	Price    *GasPrice
	TotalWei *big.Int
}

// NewUnitCost computes the total cost for a gas limit at a price.
func NewUnitCost(gasLimit uint64, price *GasPrice) *UnitCost {
	return &UnitCost{
		GasLimit: gasLimit,
		Price:    price,
		TotalWei: new(big.Int).Mul(price.Wei, new(big.Int).SetUint64(gasLimit)),
	}
}

// TotalEth returns the total cost in ETH.
func (c *UnitCost) TotalEth() decimal.Decimal {
	return decimal.NewFromBigInt(c.TotalWei, -18)
}
