package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Sizing buffers. They compensate for movement between sizing and on-chain
// execution (quote slippage, interest accrual); the unit still aborts as a
// whole if they prove too small, it never partially commits.
var (
	// DefaultSafetyBufferPercent pads the leverage flash loan (2%).
	DefaultSafetyBufferPercent = decimal.NewFromInt(2)
	// DefaultInterestBufferPercent over-borrows the deleverage flash loan to
	// cover interest accrued since the estimate (0.5%).
	DefaultInterestBufferPercent = decimal.RequireFromString("0.5")
	// DefaultSwapBufferPercent pads the swap target so output definitely
	// covers repayment (2%).
	DefaultSwapBufferPercent = decimal.NewFromInt(2)
	// DefaultBorrowFeeBufferPercent pads the protocol borrow that repays the
	// flash loan (0.5%).
	DefaultBorrowFeeBufferPercent = decimal.RequireFromString("0.5")
)

// DefaultSwapSlippageBps is the slippage tolerance for executed swaps (1%).
const DefaultSwapSlippageBps = 100

// DefaultLiquidationLTVPercent is the assumed liquidation threshold when the
// protocol does not report an asset-specific one.
var DefaultLiquidationLTVPercent = decimal.NewFromInt(60)

// Buffers groups the sizing buffers for one strategy invocation.
type Buffers struct {
	SafetyPercent        decimal.Decimal
	InterestPercent      decimal.Decimal
	SwapPercent          decimal.Decimal
	BorrowFeePercent     decimal.Decimal
	SwapSlippageBps      int64
	LiquidationThreshold decimal.Decimal // percent, e.g. 60
}

// DefaultBuffers returns the standard buffer set.
func DefaultBuffers() Buffers {
	return Buffers{
		SafetyPercent:        DefaultSafetyBufferPercent,
		InterestPercent:      DefaultInterestBufferPercent,
		SwapPercent:          DefaultSwapBufferPercent,
		BorrowFeePercent:     DefaultBorrowFeeBufferPercent,
		SwapSlippageBps:      DefaultSwapSlippageBps,
		LiquidationThreshold: DefaultLiquidationLTVPercent,
	}
}

// LeveragePlan is the sizing result for opening or increasing a leveraged
// position. Raw amounts are denominated in the repayment asset (USDC).
type LeveragePlan struct {
	InitialEquityUSD       decimal.Decimal
	FlashLoanRaw           *big.Int
	FlashLoanFeeRaw        *big.Int
	TotalPositionUSD       decimal.Decimal
	DebtUSD                decimal.Decimal
	LTVPercent             decimal.Decimal
	LiquidationPriceUSD    decimal.Decimal
	PriceDropBufferPercent decimal.Decimal
}

// UsesFlashLoan reports whether the plan needs a flash loan at all
// (multiplier 1 does not).
func (p LeveragePlan) UsesFlashLoan() bool {
	return p.FlashLoanRaw.Sign() > 0
}

// DeleveragePlan is the sizing result for unwinding a position with a flash
// loan. SwapAmountRaw and KeepAmountRaw are collateral-denominated and
// partition the full withdrawal exactly.
type DeleveragePlan struct {
	FlashLoanRaw       *big.Int
	FlashLoanFeeRaw    *big.Int
	TotalRepaymentRaw  *big.Int
	WithdrawAmountRaw  *big.Int
	SwapAmountRaw      *big.Int
	KeepAmountRaw      *big.Int
	EstimatedProfitRaw *big.Int

	// InsufficientCollateral is set when even swapping 100% of collateral
	// cannot cover the repayment; the composer refuses to build such a unit.
	InsufficientCollateral bool
	// Underwater is informational: debt value exceeded collateral value at
	// estimate time. A downstream risk check decides what to do with it.
	Underwater bool
}
