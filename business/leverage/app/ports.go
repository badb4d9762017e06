// Package app contains application services and port definitions for the
// leverage context: the sizing calculators and the transaction composer.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/txplan"
)

// LendingProtocol is the capability contract for a lending venue. Plan
// methods append ops to the builder and return handles; query methods are
// read-only network calls. Behavioral differences between venues are
// capability flags resolved at construction, never probed per call.
type LendingProtocol interface {
	// Name identifies the venue for logs and metrics.
	Name() string

	// Deposit supplies the coin as collateral, creating a position if none
	// exists yet.
	Deposit(ctx context.Context, b *txplan.Builder, a *asset.Asset, coin txplan.Coin) error

	// Withdraw removes amountRaw of collateral and yields the withdrawn coin.
	Withdraw(ctx context.Context, b *txplan.Builder, a *asset.Asset, amountRaw *big.Int) (txplan.Coin, error)

	// Borrow draws amountRaw of the asset against the position.
	// skipOracleRefresh avoids a redundant refresh when the composer already
	// scheduled one earlier in the same unit.
	Borrow(ctx context.Context, b *txplan.Builder, a *asset.Asset, amountRaw *big.Int, skipOracleRefresh bool) (txplan.Coin, error)

	// Repay pays debt down with the coin. When ConsumesRepaymentCoin is
	// false the returned handle carries the unspent remainder; otherwise it
	// is invalid.
	Repay(ctx context.Context, b *txplan.Builder, a *asset.Asset, coin txplan.Coin) (txplan.Coin, error)

	// RefreshOracles schedules a price refresh for the assets, required
	// before any deposit or borrow that depends on fresh prices.
	RefreshOracles(ctx context.Context, b *txplan.Builder, assets []*asset.Asset) error

	// Position returns the user's open position, or nil when none exists.
	Position(ctx context.Context, user common.Address) (*domain.Position, error)

	// Locked reports whether the user's position is staked for rewards and
	// therefore blocks borrow/withdraw/repay. Always false when
	// SupportsLock is false.
	Locked(ctx context.Context, user common.Address) (bool, error)

	// Unlock and Relock bracket lock-sensitive ops for venues that support
	// position locking.
	Unlock(ctx context.Context, b *txplan.Builder) error
	Relock(ctx context.Context, b *txplan.Builder) error

	// ConsumesRepaymentCoin reports whether Repay consumes the coin entirely
	// instead of returning a remainder.
	ConsumesRepaymentCoin() bool

	// SupportsLock reports whether the venue has position locking at all.
	SupportsLock() bool
}

// FlashLoanProvider is the capability contract for atomic borrow/repay
// within one unit. The receipt issued by Borrow must be consumed by exactly
// one Repay before the plan finalizes.
type FlashLoanProvider interface {
	Borrow(ctx context.Context, b *txplan.Builder, a *asset.Asset, amountRaw *big.Int) (txplan.Coin, txplan.Receipt, error)
	Repay(ctx context.Context, b *txplan.Builder, coin txplan.Coin, receipt txplan.Receipt, a *asset.Asset) error

	// FeeModel returns the provider's fee model. Sizing and repayment must
	// read from the same model so the unit balances exactly.
	FeeModel() domain.FeeModel
}

// SwapAggregator is the capability contract for quoting and executing
// swaps. Quote is a read-only snapshot; Swap appends the execution op.
type SwapAggregator interface {
	Quote(ctx context.Context, in, out *asset.Asset, amountInRaw *big.Int) ([]domain.SwapQuote, error)
	Swap(ctx context.Context, b *txplan.Builder, quote domain.SwapQuote, coin txplan.Coin, slippageBps int64) (txplan.Coin, error)
}

// PriceOracle supplies USD unit prices. A zero or missing price propagates
// as an error, never a default.
type PriceOracle interface {
	Price(ctx context.Context, a *asset.Asset) (decimal.Decimal, error)
}
