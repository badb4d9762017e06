// Package domain contains the core domain types for the leverage context.
package domain

import (
	"math/big"

	"github.com/curg-13/levkit/internal/asset"
)

// DefaultFlashLoanFeeBps is the flash-loan fee rate used when the provider
// does not supply one (0.05%).
const DefaultFlashLoanFeeBps = 5

// FeeModel computes the flash-loan fee at a fixed basis-point rate. The rate
// is configuration, injected once at construction; it is never recomputed
// per call site so sizing and repayment always agree.
type FeeModel struct {
	rateBps int64
}

// NewFeeModel creates a FeeModel with the given rate in basis points.
func NewFeeModel(rateBps int64) FeeModel {
	if rateBps < 0 || rateBps > 10_000 {
		panic("domain: flash loan fee bps out of range")
	}
	return FeeModel{rateBps: rateBps}
}

// DefaultFeeModel returns the model at the default 0.05% rate.
func DefaultFeeModel() FeeModel {
	return NewFeeModel(DefaultFlashLoanFeeBps)
}

// RateBps returns the fee rate in basis points.
func (m FeeModel) RateBps() int64 {
	return m.rateBps
}

// Fee returns floor(amountRaw * rateBps / 10000).
func (m FeeModel) Fee(amountRaw *big.Int) *big.Int {
	return asset.MulDivFloor(amountRaw, big.NewInt(m.rateBps), big.NewInt(10_000))
}

// TotalRepayment returns amountRaw + Fee(amountRaw).
func (m FeeModel) TotalRepayment(amountRaw *big.Int) *big.Int {
	return new(big.Int).Add(amountRaw, m.Fee(amountRaw))
}
