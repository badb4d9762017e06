package txplan

import "github.com/curg-13/levkit/internal/asset"

// Coin is a handle to an in-flight coin produced by an earlier op in the
// same plan. It is a value reference, not a balance: the actual object only
// exists when the plan executes on-chain.
type Coin struct {
	id    int
	asset *asset.Asset
}

// Valid reports whether the handle refers to a coin issued by a builder.
func (c Coin) Valid() bool {
	return c.id != 0
}

// Asset returns the asset the coin is denominated in.
func (c Coin) Asset() *asset.Asset {
	return c.asset
}

// Receipt is a single-use handle issued by a flash-loan borrow op. It must
// be consumed by exactly one repay op before the plan finalizes; an
// unconsumed receipt voids the whole unit.
type Receipt struct {
	id int
}

// Valid reports whether the handle was issued by a builder.
func (r Receipt) Valid() bool {
	return r.id != 0
}
