package asset

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrNilAsset        = errors.New("asset: nil asset")
	ErrNilRaw          = errors.New("asset: nil raw value")
	ErrNegativeAmount  = errors.New("asset: negative amount")
	ErrAssetMismatch   = errors.New("asset: cannot operate on different assets")
	ErrNegativeResult  = errors.New("asset: operation would result in negative amount")
	ErrTooManyDecimals = errors.New("asset: too many decimal places for asset")
)

// Amount is an immutable value object representing a quantity of an asset.
// The raw value is always in the token's smallest unit.
type Amount struct {
	raw   *big.Int
	asset *Asset
}

// NewAmount creates an Amount from a raw value in the smallest unit.
func NewAmount(a *Asset, raw *big.Int) Amount {
	if a == nil {
		panic(ErrNilAsset)
	}
	if raw == nil {
		panic(ErrNilRaw)
	}
	if raw.Sign() < 0 {
		panic(ErrNegativeAmount)
	}
	return Amount{
		raw:   new(big.Int).Set(raw), // defensive copy
		asset: a,
	}
}

// NewAmountFromUint64 creates an Amount from a uint64 raw value.
func NewAmountFromUint64(a *Asset, raw uint64) Amount {
	return NewAmount(a, new(big.Int).SetUint64(raw))
}

// Zero creates a zero Amount of the given asset.
func Zero(a *Asset) Amount {
	return NewAmount(a, big.NewInt(0))
}

// Raw returns a copy of the raw value.
func (a Amount) Raw() *big.Int {
	if a.raw == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.raw)
}

// Asset returns the asset this amount is denominated in.
func (a Amount) Asset() *Asset {
	return a.asset
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool {
	return a.raw == nil || a.raw.Sign() == 0
}

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool {
	return a.raw != nil && a.raw.Sign() > 0
}

// Add adds two amounts of the same asset.
func (a Amount) Add(b Amount) (Amount, error) {
	if err := a.checkSameAsset(b); err != nil {
		return Amount{}, err
	}
	return NewAmount(a.asset, new(big.Int).Add(a.raw, b.raw)), nil
}

// MustAdd adds two amounts, panics on error.
func (a Amount) MustAdd(b Amount) Amount {
	sum, err := a.Add(b)
	if err != nil {
		panic(err)
	}
	return sum
}

// Sub subtracts b from a (same asset only, never negative).
func (a Amount) Sub(b Amount) (Amount, error) {
	if err := a.checkSameAsset(b); err != nil {
		return Amount{}, err
	}
	if a.raw.Cmp(b.raw) < 0 {
		return Amount{}, ErrNegativeResult
	}
	return NewAmount(a.asset, new(big.Int).Sub(a.raw, b.raw)), nil
}

// MustSub subtracts b from a, panics on error.
func (a Amount) MustSub(b Amount) Amount {
	diff, err := a.Sub(b)
	if err != nil {
		panic(err)
	}
	return diff
}

// Min returns the smaller of the two amounts.
func (a Amount) Min(b Amount) (Amount, error) {
	if err := a.checkSameAsset(b); err != nil {
		return Amount{}, err
	}
	if a.raw.Cmp(b.raw) <= 0 {
		return a, nil
	}
	return b, nil
}

// Cmp compares two amounts of the same asset.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func (a Amount) Cmp(b Amount) (int, error) {
	if err := a.checkSameAsset(b); err != nil {
		return 0, err
	}
	return a.raw.Cmp(b.raw), nil
}

// Equals returns true if both amounts are equal (same asset and value).
func (a Amount) Equals(b Amount) bool {
	if a.asset == nil || b.asset == nil {
		return false
	}
	return a.asset.ID().Equals(b.asset.ID()) && a.raw.Cmp(b.raw) == 0
}

// -----------------------------------------------------------------------------
// Boundary functions (decimal conversion - parsing, USD valuation, display)
// -----------------------------------------------------------------------------

// ToDecimal converts the amount to its human-readable decimal form.
func (a Amount) ToDecimal() decimal.Decimal {
	if a.raw == nil || a.asset == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(a.raw, -int32(a.asset.Decimals()))
}

// ValueUSD returns the USD value of the amount at the given unit price.
// For display and sizing inputs only, never for on-chain amounts.
func (a Amount) ValueUSD(priceUSD decimal.Decimal) decimal.Decimal {
	return a.ToDecimal().Mul(priceUSD)
}

// ParseDecimal creates an Amount from a human-readable decimal value,
// floor-truncating anything below the smallest unit.
func ParseDecimal(a *Asset, d decimal.Decimal) (Amount, error) {
	if a == nil {
		return Amount{}, ErrNilAsset
	}
	if d.IsNegative() {
		return Amount{}, ErrNegativeAmount
	}
	scaled := d.Shift(int32(a.Decimals())).Truncate(0)
	return NewAmount(a, scaled.BigInt()), nil
}

// ParseString creates an Amount from a decimal string.
func ParseString(a *Asset, s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("asset: invalid decimal string: %w", err)
	}
	return ParseDecimal(a, d)
}

// String returns a human-readable representation (e.g. "1.5 WETH").
func (a Amount) String() string {
	if a.asset == nil {
		return "0 ???"
	}
	return fmt.Sprintf("%s %s", a.ToDecimal().String(), a.asset.Symbol())
}

func (a Amount) checkSameAsset(b Amount) error {
	if a.asset == nil || b.asset == nil {
		return ErrNilAsset
	}
	if !a.asset.ID().Equals(b.asset.ID()) {
		return fmt.Errorf("%w: %s vs %s", ErrAssetMismatch, a.asset.Symbol(), b.asset.Symbol())
	}
	return nil
}
