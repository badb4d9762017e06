package asset

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Raw-unit arithmetic for sizing borrow, repay and swap amounts.
// Everything here is exact big.Int math; percentages arrive as decimals and
// are applied as integer ratios so no floating point ever touches an
// on-chain amount.

var (
	bpsDenominator = big.NewInt(10_000)
	hundred        = decimal.NewFromInt(100)
)

// Pow10 returns 10^n as a big.Int.
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// MulDivFloor returns floor(x * num / den).
func MulDivFloor(x, num, den *big.Int) *big.Int {
	if den.Sign() == 0 {
		panic("asset: division by zero")
	}
	prod := new(big.Int).Mul(x, num)
	return prod.Div(prod, den)
}

// MulDivCeil returns ceil(x * num / den).
func MulDivCeil(x, num, den *big.Int) *big.Int {
	if den.Sign() == 0 {
		panic("asset: division by zero")
	}
	prod := new(big.Int).Mul(x, num)
	q, r := new(big.Int).QuoRem(prod, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// WithBuffer pads a raw amount by a percentage: floor(raw * (100+p) / 100).
// Used to over-size borrow and repay amounts for interest accrued between
// sizing and execution.
func WithBuffer(raw *big.Int, bufferPercent decimal.Decimal) *big.Int {
	if raw.Sign() < 0 {
		panic(ErrNegativeAmount)
	}
	num := hundred.Add(bufferPercent)
	// Scale the ratio to an integer fraction to stay in big.Int.
	exp := -num.Exponent()
	if exp < 0 {
		exp = 0
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	numInt := num.Shift(exp).BigInt()
	denInt := new(big.Int).Mul(big.NewInt(100), scale)
	return MulDivFloor(raw, numInt, denInt)
}

// WithBufferCeil is WithBuffer rounding up instead of down.
func WithBufferCeil(raw *big.Int, bufferPercent decimal.Decimal) *big.Int {
	if raw.Sign() < 0 {
		panic(ErrNegativeAmount)
	}
	num := hundred.Add(bufferPercent)
	exp := -num.Exponent()
	if exp < 0 {
		exp = 0
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	numInt := num.Shift(exp).BigInt()
	denInt := new(big.Int).Mul(big.NewInt(100), scale)
	return MulDivCeil(raw, numInt, denInt)
}

// WithSlippageFloor returns the minimum acceptable output after slippage:
// floor(raw * (10000-bps) / 10000).
func WithSlippageFloor(raw *big.Int, slippageBps int64) *big.Int {
	if raw.Sign() < 0 {
		panic(ErrNegativeAmount)
	}
	if slippageBps < 0 || slippageBps > 10_000 {
		panic("asset: slippage bps out of range")
	}
	return MulDivFloor(raw, big.NewInt(10_000-slippageBps), bpsDenominator)
}

// ToRaw converts a human-readable decimal amount to raw units,
// floor-truncating below the smallest unit. Negative input is rejected.
func ToRaw(human decimal.Decimal, decimals uint8) (*big.Int, error) {
	if human.IsNegative() {
		return nil, ErrNegativeAmount
	}
	return human.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// ToRawCeil is ToRaw rounding up to the next smallest unit.
func ToRawCeil(human decimal.Decimal, decimals uint8) (*big.Int, error) {
	if human.IsNegative() {
		return nil, ErrNegativeAmount
	}
	shifted := human.Shift(int32(decimals))
	truncated := shifted.Truncate(0)
	if !shifted.Equal(truncated) {
		truncated = truncated.Add(decimal.NewFromInt(1))
	}
	return truncated.BigInt(), nil
}

// ToHuman converts raw units to a human-readable decimal.
func ToHuman(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}
