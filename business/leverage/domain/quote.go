package domain

import (
	"math/big"

	"github.com/curg-13/levkit/internal/asset"
)

// SwapQuote is a point-in-time rate snapshot from the aggregator. It is
// immutable once obtained; re-querying may yield a different rate, which is
// why sizing applies buffers instead of re-quoting.
type SwapQuote struct {
	In     asset.Amount // amount offered in
	Out    asset.Amount // amount quoted out
	Source string       // route / venue identifier, informational
}

// OutputFor linearly scales the quoted rate to a different input amount,
// rounding down. Only valid for sizing; the executed swap enforces its own
// slippage floor.
func (q SwapQuote) OutputFor(amountInRaw *big.Int) *big.Int {
	in := q.In.Raw()
	if in.Sign() == 0 {
		return big.NewInt(0)
	}
	return asset.MulDivFloor(amountInRaw, q.Out.Raw(), in)
}

// RequiredInputFor returns the smallest input that yields at least
// targetOutRaw at the quoted rate: ceil(target * in / out).
func (q SwapQuote) RequiredInputFor(targetOutRaw *big.Int) *big.Int {
	out := q.Out.Raw()
	if out.Sign() == 0 {
		return big.NewInt(0)
	}
	return asset.MulDivCeil(targetOutRaw, q.In.Raw(), out)
}

// BestQuote picks the quote with the maximum output. Ties keep the first
// seen. Returns false when the slice is empty.
func BestQuote(quotes []SwapQuote) (SwapQuote, bool) {
	if len(quotes) == 0 {
		return SwapQuote{}, false
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.Out.Raw().Cmp(best.Out.Raw()) > 0 {
			best = q
		}
	}
	return best, true
}
