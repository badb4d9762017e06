package asset_test

import (
	"math/big"
	"testing"

	"github.com/curg-13/levkit/internal/asset"
	"github.com/shopspring/decimal"
)

func TestAmount_Basic(t *testing.T) {
	oneETH := asset.NewAmount(asset.WETH, big.NewInt(1e18))

	if oneETH.IsZero() {
		t.Error("expected non-zero amount")
	}
	if !oneETH.ToDecimal().Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected 1, got %s", oneETH.ToDecimal())
	}
	if oneETH.String() != "1 WETH" {
		t.Errorf("expected '1 WETH', got '%s'", oneETH.String())
	}
}

func TestAmount_AddSub(t *testing.T) {
	one := asset.NewAmount(asset.USDC, big.NewInt(1_000_000))
	two := asset.NewAmount(asset.USDC, big.NewInt(2_000_000))

	sum, err := one.Add(two)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Raw().Int64() != 3_000_000 {
		t.Errorf("expected 3000000, got %s", sum.Raw())
	}

	diff, err := two.Sub(one)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff.Raw().Int64() != 1_000_000 {
		t.Errorf("expected 1000000, got %s", diff.Raw())
	}

	if _, err := one.Sub(two); err == nil {
		t.Error("expected error for negative result")
	}
}

func TestAmount_CannotMixAssets(t *testing.T) {
	oneETH := asset.NewAmount(asset.WETH, big.NewInt(1e18))
	oneUSDC := asset.NewAmount(asset.USDC, big.NewInt(1e6))

	if _, err := oneETH.Add(oneUSDC); err == nil {
		t.Error("expected error when adding different assets")
	}
	if _, err := oneETH.Min(oneUSDC); err == nil {
		t.Error("expected error when comparing different assets")
	}
}

func TestAmount_Min(t *testing.T) {
	small := asset.NewAmount(asset.USDC, big.NewInt(5))
	large := asset.NewAmount(asset.USDC, big.NewInt(10))

	got, err := large.Min(small)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equals(small) {
		t.Errorf("expected %s, got %s", small, got)
	}
}

func TestAmount_ValueUSD(t *testing.T) {
	// 2 WETH at $2000 = $4000
	amount := asset.NewAmount(asset.WETH, new(big.Int).Mul(big.NewInt(2), asset.Pow10(18)))
	value := amount.ValueUSD(decimal.NewFromInt(2000))
	if !value.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("expected 4000, got %s", value)
	}
}

func TestParseString(t *testing.T) {
	amount, err := asset.ParseString(asset.USDC, "1.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount.Raw().Int64() != 1_500_000 {
		t.Errorf("expected 1500000, got %s", amount.Raw())
	}

	// Sub-unit precision floor-truncates.
	amount, err = asset.ParseString(asset.USDC, "1.0000009")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount.Raw().Int64() != 1_000_000 {
		t.Errorf("expected 1000000, got %s", amount.Raw())
	}

	if _, err := asset.ParseString(asset.USDC, "-1"); err == nil {
		t.Error("expected error for negative input")
	}
	if _, err := asset.ParseString(asset.USDC, "not a number"); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestAmount_Immutable(t *testing.T) {
	raw := big.NewInt(100)
	amount := asset.NewAmount(asset.USDC, raw)

	raw.SetInt64(999)
	if amount.Raw().Int64() != 100 {
		t.Error("amount mutated through constructor argument")
	}

	amount.Raw().SetInt64(777)
	if amount.Raw().Int64() != 100 {
		t.Error("amount mutated through Raw()")
	}
}
