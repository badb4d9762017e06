package app

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/asset"
)

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// PreviewParams sizes a leverage entry without building a transaction.
type PreviewParams struct {
	// DepositAmount is the user's own contribution.
	DepositAmount asset.Amount
	// DepositPriceUSD is the deposit asset's unit price.
	DepositPriceUSD decimal.Decimal
	// Multiplier is the target leverage (>= 1; 1 means no flash loan).
	Multiplier decimal.Decimal
}

// PreviewCalculator computes a LeveragePlan from strategy parameters. Pure:
// identical inputs always yield identical plans.
type PreviewCalculator struct {
	repaymentAsset *asset.Asset // flash loans are denominated in this (USDC)
	feeModel       domain.FeeModel
	buffers        domain.Buffers
}

// NewPreviewCalculator creates a calculator sizing flash loans in the given
// repayment asset.
func NewPreviewCalculator(repaymentAsset *asset.Asset, feeModel domain.FeeModel, buffers domain.Buffers) *PreviewCalculator {
	return &PreviewCalculator{
		repaymentAsset: repaymentAsset,
		feeModel:       feeModel,
		buffers:        buffers,
	}
}

// Preview computes flash-loan size, resulting position, LTV, liquidation
// price and price-drop buffer for the requested multiplier.
func (c *PreviewCalculator) Preview(p PreviewParams) (*domain.LeveragePlan, error) {
	if p.Multiplier.LessThan(one) {
		return nil, apperror.Validation(apperror.CodeInvalidParameter,
			"multiplier must be >= 1")
	}
	if !p.DepositPriceUSD.IsPositive() {
		return nil, apperror.New(apperror.CodePriceUnavailable,
			apperror.WithContext(p.DepositAmount.Asset().Symbol()))
	}

	depositHuman := p.DepositAmount.ToDecimal()
	initialEquityUSD := depositHuman.Mul(p.DepositPriceUSD)
	flashLoanUSD := initialEquityUSD.Mul(p.Multiplier.Sub(one))

	// Pad the loan so the swap still covers the target after slippage, then
	// round up to the repayment asset's smallest unit.
	padded := flashLoanUSD.Mul(one.Add(c.buffers.SafetyPercent.Div(hundred)))
	flashLoanRaw, err := asset.ToRawCeil(padded, c.repaymentAsset.Decimals())
	if err != nil {
		return nil, apperror.Validation(apperror.CodeInvalidParameter, err.Error())
	}

	totalPositionUSD := initialEquityUSD.Mul(p.Multiplier)
	debtUSD := flashLoanUSD

	ltv := decimal.Zero
	if totalPositionUSD.IsPositive() {
		ltv = debtUSD.Div(totalPositionUSD).Mul(hundred)
	}

	// Liquidation price assumes the configured liquidation-LTV threshold.
	liquidationPrice := decimal.Zero
	priceDropBuffer := decimal.Zero
	exposureHuman := depositHuman.Mul(p.Multiplier)
	if exposureHuman.IsPositive() {
		threshold := c.buffers.LiquidationThreshold.Div(hundred)
		liquidationPrice = debtUSD.Div(exposureHuman).Div(threshold)
		priceDropBuffer = one.Sub(liquidationPrice.Div(p.DepositPriceUSD)).Mul(hundred)
	}

	var feeRaw *big.Int
	if flashLoanRaw.Sign() > 0 {
		feeRaw = c.feeModel.Fee(flashLoanRaw)
	} else {
		feeRaw = big.NewInt(0)
	}

	return &domain.LeveragePlan{
		InitialEquityUSD:       initialEquityUSD,
		FlashLoanRaw:           flashLoanRaw,
		FlashLoanFeeRaw:        feeRaw,
		TotalPositionUSD:       totalPositionUSD,
		DebtUSD:                debtUSD,
		LTVPercent:             ltv,
		LiquidationPriceUSD:    liquidationPrice,
		PriceDropBufferPercent: priceDropBuffer,
	}, nil
}
