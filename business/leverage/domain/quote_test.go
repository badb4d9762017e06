package domain

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/curg-13/levkit/internal/asset"
)

func makeQuote(t *testing.T, inRaw, outRaw int64) SwapQuote {
	t.Helper()
	return SwapQuote{
		In:  asset.NewAmount(asset.WETH, big.NewInt(inRaw)),
		Out: asset.NewAmount(asset.USDC, big.NewInt(outRaw)),
	}
}

func TestSwapQuote_OutputFor(t *testing.T) {
	// Rate: 1000 in -> 2000 out
	q := makeQuote(t, 1000, 2000)

	got := q.OutputFor(big.NewInt(500))
	if got.Int64() != 1000 {
		t.Errorf("OutputFor(500) = %d, want 1000", got.Int64())
	}

	// Rounds down: 3 in at rate 2000/1000 = 6, 1 in -> 2
	got = q.OutputFor(big.NewInt(1))
	if got.Int64() != 2 {
		t.Errorf("OutputFor(1) = %d, want 2", got.Int64())
	}
}

func TestSwapQuote_RequiredInputFor(t *testing.T) {
	q := makeQuote(t, 1000, 2000)

	// Exact: 1000 out needs 500 in.
	got := q.RequiredInputFor(big.NewInt(1000))
	if got.Int64() != 500 {
		t.Errorf("RequiredInputFor(1000) = %d, want 500", got.Int64())
	}

	// Rounds up: 1001 out needs ceil(1001*1000/2000) = 501.
	got = q.RequiredInputFor(big.NewInt(1001))
	if got.Int64() != 501 {
		t.Errorf("RequiredInputFor(1001) = %d, want 501", got.Int64())
	}
}

func TestSwapQuote_RequiredInput_CoversTarget(t *testing.T) {
	// RequiredInputFor composed with OutputFor never undershoots the target.
	q := makeQuote(t, 997, 3311)
	for _, target := range []int64{1, 7, 100, 3310, 3312, 1_000_000} {
		in := q.RequiredInputFor(big.NewInt(target))
		out := q.OutputFor(in)
		if out.Int64() < target {
			t.Errorf("target %d: input %s yields %s", target, in, out)
		}
	}
}

func TestBestQuote(t *testing.T) {
	a := makeQuote(t, 1000, 1900)
	b := makeQuote(t, 1000, 2000)
	c := makeQuote(t, 1000, 2000) // tie with b

	best, ok := BestQuote([]SwapQuote{a, b, c})
	if !ok {
		t.Fatal("expected a quote")
	}
	// Max output wins; tie keeps first seen.
	if !best.Out.Equals(b.Out) || best.Out.Raw().Int64() != 2000 {
		t.Errorf("best = %s, want 2000 out", best.Out)
	}

	if _, ok := BestQuote(nil); ok {
		t.Error("expected no quote for empty slice")
	}
}

func TestPosition_NetValueUSD(t *testing.T) {
	// Collateral 1,000,000 raw at 9 decimals, price $3 -> $0.003.
	// Debt 1,000,000 raw at 6 decimals, price $1 -> $1. Underwater.
	collateralAsset := asset.MustNewToken(asset.ChainIDEthereum,
		asset.AddrWSTETHEther, "TKN9", "Nine Decimals", 9)
	p := Position{
		Collateral: asset.NewAmount(collateralAsset, big.NewInt(1_000_000)),
		Debt:       asset.NewAmount(asset.USDC, big.NewInt(1_000_000)),
	}

	net := p.NetValueUSD(decimal.NewFromInt(3), decimal.NewFromInt(1))
	want := decimal.RequireFromString("-0.997")
	if !net.Equal(want) {
		t.Errorf("NetValueUSD = %s, want %s", net, want)
	}
	if !p.IsUnderwater(decimal.NewFromInt(3), decimal.NewFromInt(1)) {
		t.Error("expected underwater position")
	}
}

func TestPosition_HasDebt(t *testing.T) {
	p := Position{
		Collateral: asset.NewAmount(asset.WETH, big.NewInt(1e18)),
		Debt:       asset.Zero(asset.USDC),
	}
	if p.HasDebt() {
		t.Error("expected no debt")
	}
	p.Debt = asset.NewAmount(asset.USDC, big.NewInt(1))
	if !p.HasDebt() {
		t.Error("expected debt")
	}
}
