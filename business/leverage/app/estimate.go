package app

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/asset"
)

// EstimateParams sizes a flash-loan deleverage for an open position.
type EstimateParams struct {
	Position domain.Position
	// Quote is a full-collateral rate snapshot (collateral -> debt asset).
	// Only its rate is used; the executed swap sizes from the plan.
	Quote domain.SwapQuote
	// CollateralPriceUSD / DebtPriceUSD are optional (zero = unknown);
	// when both are set the plan carries an underwater flag.
	CollateralPriceUSD decimal.Decimal
	DebtPriceUSD       decimal.Decimal
}

// EstimateCalculator computes the minimal collateral swap that covers debt,
// flash-loan fee and buffers. Pure, no retained state.
type EstimateCalculator struct {
	feeModel domain.FeeModel
	buffers  domain.Buffers
}

// NewEstimateCalculator creates a calculator using the given fee model. The
// composer must repay from the same model or the unit will not balance.
func NewEstimateCalculator(feeModel domain.FeeModel, buffers domain.Buffers) *EstimateCalculator {
	return &EstimateCalculator{feeModel: feeModel, buffers: buffers}
}

// Estimate computes a DeleveragePlan. A plan flagged InsufficientCollateral
// is still returned with exact amounts so callers can display it, but the
// composer refuses to build it.
func (c *EstimateCalculator) Estimate(p EstimateParams) (*domain.DeleveragePlan, error) {
	if !p.Position.HasDebt() {
		return nil, apperror.New(apperror.CodeNoDebt)
	}
	if err := c.validateQuote(p); err != nil {
		return nil, err
	}

	collateralRaw := p.Position.Collateral.Raw()
	debtRaw := p.Position.Debt.Raw()

	// Over-borrow slightly for interest accrued between estimate and
	// execution, then price in the flash-loan fee.
	flashLoanRaw := asset.WithBuffer(debtRaw, c.buffers.InterestPercent)
	feeRaw := c.feeModel.Fee(flashLoanRaw)
	totalRepaymentRaw := new(big.Int).Add(flashLoanRaw, feeRaw)

	// The swap must produce repayment plus margin.
	targetOutputRaw := asset.WithBuffer(totalRepaymentRaw, c.buffers.SwapPercent)
	requiredSwapInRaw := p.Quote.RequiredInputFor(targetOutputRaw)

	swapAmountRaw := requiredSwapInRaw
	if swapAmountRaw.Cmp(collateralRaw) > 0 {
		swapAmountRaw = new(big.Int).Set(collateralRaw)
	}
	keepAmountRaw := new(big.Int).Sub(collateralRaw, swapAmountRaw)

	fullSwapOutput := p.Quote.OutputFor(collateralRaw)
	insufficient := fullSwapOutput.Cmp(totalRepaymentRaw) < 0

	profitRaw := big.NewInt(0)
	if !insufficient {
		out := p.Quote.OutputFor(swapAmountRaw)
		if out.Cmp(totalRepaymentRaw) > 0 {
			profitRaw = out.Sub(out, totalRepaymentRaw)
		}
	}

	underwater := false
	if p.CollateralPriceUSD.IsPositive() && p.DebtPriceUSD.IsPositive() {
		underwater = p.Position.IsUnderwater(p.CollateralPriceUSD, p.DebtPriceUSD)
	}

	return &domain.DeleveragePlan{
		FlashLoanRaw:           flashLoanRaw,
		FlashLoanFeeRaw:        feeRaw,
		TotalRepaymentRaw:      totalRepaymentRaw,
		WithdrawAmountRaw:      new(big.Int).Set(collateralRaw),
		SwapAmountRaw:          swapAmountRaw,
		KeepAmountRaw:          keepAmountRaw,
		EstimatedProfitRaw:     profitRaw,
		InsufficientCollateral: insufficient,
		Underwater:             underwater,
	}, nil
}

func (c *EstimateCalculator) validateQuote(p EstimateParams) error {
	q := p.Quote
	if !q.In.IsPositive() || !q.Out.IsPositive() {
		return apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("quote amounts must be positive"))
	}
	if !q.In.Asset().Equals(p.Position.Collateral.Asset()) {
		return apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("quote input is not the collateral asset"))
	}
	if !q.Out.Asset().Equals(p.Position.Debt.Asset()) {
		return apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("quote output is not the debt asset"))
	}
	return nil
}
