package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/txplan"
)

// DeleverageParams describes one deleverage request.
type DeleverageParams struct {
	User common.Address
}

func (p DeleverageParams) validate() error {
	if p.User == (common.Address{}) {
		return apperror.Validation(apperror.CodeInvalidParameter, "user address is required")
	}
	return nil
}

// EstimateDeleverage computes the sizing plan for unwinding the user's
// position without building a transaction.
func (c *Composer) EstimateDeleverage(ctx context.Context, params DeleverageParams) (*domain.DeleveragePlan, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	pos, err := c.openPosition(ctx, params.User)
	if err != nil {
		return nil, err
	}
	quote, err := c.bestQuote(ctx,
		pos.Collateral.Asset(), pos.Debt.Asset(), pos.Collateral.Raw())
	if err != nil {
		return nil, err
	}
	return c.estimateFromQuote(ctx, *pos, quote)
}

// BuildDeleverage composes the full deleverage unit:
// flash borrow -> repay all debt -> withdraw full collateral -> swap the
// sized portion -> repay flash loan -> transfer kept collateral and
// leftovers. Reads happen before the first op is appended.
func (c *Composer) BuildDeleverage(ctx context.Context, params DeleverageParams) (*txplan.Plan, *domain.DeleveragePlan, error) {
	ctx, span := c.tracer.Start(ctx, "deleverage.build")
	defer span.End()

	plan, sizing, err := c.buildDeleverage(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.failed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("strategy", "deleverage"),
			attribute.String("code", string(apperror.GetCode(err))),
		))
		return nil, nil, err
	}

	span.SetAttributes(
		attribute.String("protocol", c.protocol.Name()),
		attribute.Int("ops", len(plan.Ops())),
	)
	c.metrics.built.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", "deleverage")))
	return plan, sizing, nil
}

func (c *Composer) buildDeleverage(ctx context.Context, params DeleverageParams) (*txplan.Plan, *domain.DeleveragePlan, error) {
	if err := params.validate(); err != nil {
		return nil, nil, err
	}

	pos, err := c.openPosition(ctx, params.User)
	if err != nil {
		return nil, nil, err
	}
	collateralAsset := pos.Collateral.Asset()
	debtAsset := pos.Debt.Asset()

	// Full-collateral rate quote for sizing.
	rateQuote, err := c.bestQuote(ctx, collateralAsset, debtAsset, pos.Collateral.Raw())
	if err != nil {
		return nil, nil, err
	}

	sizing, err := c.estimateFromQuote(ctx, *pos, rateQuote)
	if err != nil {
		return nil, nil, err
	}
	if sizing.InsufficientCollateral {
		// The unit would revert on-chain; refuse to build it.
		return nil, nil, apperror.New(apperror.CodeInsufficientCollateral,
			apperror.WithContext(collateralAsset.Symbol()))
	}

	// Fresh quote for the amount actually swapped.
	swapQuote, err := c.bestQuote(ctx, collateralAsset, debtAsset, sizing.SwapAmountRaw)
	if err != nil {
		return nil, nil, err
	}

	locked, err := c.lockState(ctx, params.User)
	if err != nil {
		return nil, nil, err
	}

	b := txplan.NewBuilder(params.User)

	loanCoin, receipt, err := c.flash.Borrow(ctx, b, debtAsset, sizing.FlashLoanRaw)
	if err != nil {
		return nil, nil, err
	}

	if locked {
		// Repay is the first lock-sensitive op in this unit; unlock must
		// immediately precede it.
		if err := c.protocol.Unlock(ctx, b); err != nil {
			return nil, nil, err
		}
	}

	repayRemainder, err := c.protocol.Repay(ctx, b, debtAsset, loanCoin)
	if err != nil {
		return nil, nil, err
	}

	// Debt is zero now; the full collateral is unencumbered.
	withdrawn, err := c.protocol.Withdraw(ctx, b, collateralAsset, sizing.WithdrawAmountRaw)
	if err != nil {
		return nil, nil, err
	}

	swapOut, err := c.swapper.Swap(ctx, b, swapQuote, withdrawn, c.config.Buffers.SwapSlippageBps)
	if err != nil {
		return nil, nil, err
	}

	// Exactly TotalRepaymentRaw is split from the swap output; the amount
	// comes from the same fee model the sizing used.
	if err := c.flash.Repay(ctx, b, swapOut, receipt, debtAsset); err != nil {
		return nil, nil, err
	}

	// Kept collateral, swap leftovers, and (when the venue returns one) the
	// debt-repay remainder all go back to the user.
	leftovers := []txplan.Coin{withdrawn, swapOut}
	if !c.protocol.ConsumesRepaymentCoin() {
		leftovers = append(leftovers, repayRemainder)
	}
	if err := b.TransferToSender(leftovers...); err != nil {
		return nil, nil, err
	}

	if locked && c.config.RelockAfter {
		if err := c.protocol.Relock(ctx, b); err != nil {
			return nil, nil, err
		}
	}

	plan, err := b.Finalize()
	if err != nil {
		return nil, nil, err
	}

	c.log.Info(ctx, "deleverage unit composed",
		"protocol", c.protocol.Name(),
		"flash_loan_raw", sizing.FlashLoanRaw.String(),
		"swap_raw", sizing.SwapAmountRaw.String(),
		"keep_raw", sizing.KeepAmountRaw.String(),
		"ops", len(plan.Ops()),
	)
	return plan, sizing, nil
}

// openPosition fetches the user's position and rejects the cases deleverage
// cannot serve: no position at all, or a position with zero debt (which
// only needs a plain withdraw).
func (c *Composer) openPosition(ctx context.Context, user common.Address) (*domain.Position, error) {
	pos, err := c.protocol.Position(ctx, user)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeProtocolCallFailed, "query position")
	}
	if pos == nil {
		return nil, apperror.NotFound(apperror.CodeNoPositionFound, user.Hex())
	}
	if !pos.HasDebt() {
		return nil, apperror.New(apperror.CodeNoDebt)
	}
	return pos, nil
}

// estimateFromQuote runs the estimate calculator, attaching USD prices for
// the underwater flag when the oracle has them. A missing price only
// degrades the flag, it does not block the estimate.
func (c *Composer) estimateFromQuote(ctx context.Context, pos domain.Position, quote domain.SwapQuote) (*domain.DeleveragePlan, error) {
	collateralPrice, debtPrice := decimal.Zero, decimal.Zero
	if p, err := c.oracle.Price(ctx, pos.Collateral.Asset()); err == nil {
		collateralPrice = p
	} else {
		c.log.Warn(ctx, "collateral price unavailable for underwater check",
			"asset", pos.Collateral.Asset().Symbol(), "error", err)
	}
	if p, err := c.oracle.Price(ctx, pos.Debt.Asset()); err == nil {
		debtPrice = p
	} else {
		c.log.Warn(ctx, "debt price unavailable for underwater check",
			"asset", pos.Debt.Asset().Symbol(), "error", err)
	}

	return c.estimator.Estimate(EstimateParams{
		Position:           pos,
		Quote:              quote,
		CollateralPriceUSD: collateralPrice,
		DebtPriceUSD:       debtPrice,
	})
}
