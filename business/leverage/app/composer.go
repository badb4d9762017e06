package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/txplan"
)

const (
	tracerName = "github.com/curg-13/levkit/business/leverage/app"
	meterName  = "github.com/curg-13/levkit/business/leverage/app"
)

// composerMetrics holds OTEL metric instruments.
type composerMetrics struct {
	built           metric.Int64Counter
	failed          metric.Int64Counter
	quoteCandidates metric.Int64Histogram
}

func newComposerMetrics() (*composerMetrics, error) {
	meter := otel.GetMeterProvider().Meter(meterName)

	built, err := meter.Int64Counter("levkit_plans_built_total",
		metric.WithDescription("Transaction plans successfully composed"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("levkit_plans_failed_total",
		metric.WithDescription("Compositions aborted before a plan was produced"))
	if err != nil {
		return nil, err
	}
	candidates, err := meter.Int64Histogram("levkit_quote_candidates",
		metric.WithDescription("Quote candidates returned per aggregator request"))
	if err != nil {
		return nil, err
	}
	return &composerMetrics{built: built, failed: failed, quoteCandidates: candidates}, nil
}

// ComposerConfig holds composition settings.
type ComposerConfig struct {
	// RepaymentAsset denominates flash loans (typically USDC).
	RepaymentAsset *asset.Asset
	Buffers        domain.Buffers
	// RelockAfter re-locks the position at the end of a unit that had to
	// unlock it.
	RelockAfter bool
}

// Composer orders the leverage and deleverage sub-operations against the
// protocol, flash-loan and swap capabilities, producing one atomic
// transaction unit. It owns the in-progress builder exclusively; a failure
// at any step means no plan is returned, never a partial one.
type Composer struct {
	protocol  LendingProtocol
	flash     FlashLoanProvider
	swapper   SwapAggregator
	oracle    PriceOracle
	preview   *PreviewCalculator
	estimator *EstimateCalculator
	config    ComposerConfig

	log     logger.LoggerInterface
	tracer  trace.Tracer
	metrics *composerMetrics
}

// NewComposer wires a Composer from its capabilities. The preview and
// estimate calculators share the flash-loan provider's fee model so sizing
// and repayment agree exactly.
func NewComposer(
	protocol LendingProtocol,
	flash FlashLoanProvider,
	swapper SwapAggregator,
	oracle PriceOracle,
	config ComposerConfig,
	log logger.LoggerInterface,
) (*Composer, error) {
	if config.RepaymentAsset == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("repayment asset is required"))
	}

	m, err := newComposerMetrics()
	if err != nil {
		return nil, err
	}

	feeModel := flash.FeeModel()
	return &Composer{
		protocol:  protocol,
		flash:     flash,
		swapper:   swapper,
		oracle:    oracle,
		preview:   NewPreviewCalculator(config.RepaymentAsset, feeModel, config.Buffers),
		estimator: NewEstimateCalculator(feeModel, config.Buffers),
		config:    config,
		log:       log,
		tracer:    otel.Tracer(tracerName),
		metrics:   m,
	}, nil
}

// PreviewLeverage sizes a leverage entry without touching the chain beyond
// the price lookup.
func (c *Composer) PreviewLeverage(ctx context.Context, params LeverageParams) (*domain.LeveragePlan, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	price, err := c.oracle.Price(ctx, params.DepositAmount.Asset())
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodePriceUnavailable, params.DepositAmount.Asset().Symbol())
	}
	return c.preview.Preview(PreviewParams{
		DepositAmount:   params.DepositAmount,
		DepositPriceUSD: price,
		Multiplier:      params.Multiplier,
	})
}

// LeverageParams describes one leverage entry.
type LeverageParams struct {
	User          common.Address
	DepositAmount asset.Amount
	Multiplier    decimal.Decimal
}

func (p LeverageParams) validate() error {
	if p.User == (common.Address{}) {
		return apperror.Validation(apperror.CodeInvalidParameter, "user address is required")
	}
	if !p.DepositAmount.IsPositive() {
		return apperror.Validation(apperror.CodeInvalidParameter, "deposit amount must be positive")
	}
	if p.Multiplier.LessThan(decimal.NewFromInt(1)) {
		return apperror.Validation(apperror.CodeInvalidParameter, "multiplier must be >= 1")
	}
	return nil
}

// BuildLeverage composes the full leverage unit:
// flash borrow -> swap -> merge with user funds -> refresh oracles ->
// deposit -> borrow repayment asset -> repay flash loan -> transfer
// leftovers. All reads (price, quotes, position, lock state) happen before
// the first op is appended, so an abort leaves nothing behind.
func (c *Composer) BuildLeverage(ctx context.Context, params LeverageParams) (*txplan.Plan, *domain.LeveragePlan, error) {
	ctx, span := c.tracer.Start(ctx, "leverage.build")
	defer span.End()

	plan, sizing, err := c.buildLeverage(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.failed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("strategy", "leverage"),
			attribute.String("code", string(apperror.GetCode(err))),
		))
		return nil, nil, err
	}

	span.SetAttributes(
		attribute.String("protocol", c.protocol.Name()),
		attribute.Int("ops", len(plan.Ops())),
	)
	c.metrics.built.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", "leverage")))
	return plan, sizing, nil
}

func (c *Composer) buildLeverage(ctx context.Context, params LeverageParams) (*txplan.Plan, *domain.LeveragePlan, error) {
	if err := params.validate(); err != nil {
		return nil, nil, err
	}

	depositAsset := params.DepositAmount.Asset()
	repayAsset := c.config.RepaymentAsset

	sizing, err := c.PreviewLeverage(ctx, params)
	if err != nil {
		return nil, nil, err
	}

	// Everything the unit depends on is read up front; nothing is appended
	// until all reads succeed.
	needSwap := sizing.UsesFlashLoan() && !depositAsset.Equals(repayAsset)
	var swapQuote domain.SwapQuote
	if needSwap {
		swapQuote, err = c.bestQuote(ctx, repayAsset, depositAsset, sizing.FlashLoanRaw)
		if err != nil {
			return nil, nil, err
		}
	}

	existing, err := c.protocol.Position(ctx, params.User)
	if err != nil {
		return nil, nil, apperror.Wrap(err, apperror.CodeProtocolCallFailed, "query position")
	}

	locked, err := c.lockState(ctx, params.User)
	if err != nil {
		return nil, nil, err
	}

	b := txplan.NewBuilder(params.User)

	var loanCoin txplan.Coin
	var receipt txplan.Receipt
	didUnlock := false
	if sizing.UsesFlashLoan() {
		loanCoin, receipt, err = c.flash.Borrow(ctx, b, repayAsset, sizing.FlashLoanRaw)
		if err != nil {
			return nil, nil, err
		}
	}

	swapped := loanCoin
	if needSwap {
		swapped, err = c.swapper.Swap(ctx, b, swapQuote, loanCoin, c.config.Buffers.SwapSlippageBps)
		if err != nil {
			return nil, nil, err
		}
	}

	// The user's own contribution joins the swapped funds as one collateral
	// unit; the swapped coin is consumed by the merge.
	merged, err := c.mergeWithUserFunds(b, params.DepositAmount, swapped)
	if err != nil {
		return nil, nil, err
	}

	// Oracles go stale during the swap; refresh before deposit and borrow.
	if err := c.protocol.RefreshOracles(ctx, b, []*asset.Asset{depositAsset, repayAsset}); err != nil {
		return nil, nil, err
	}

	if err := c.protocol.Deposit(ctx, b, depositAsset, merged); err != nil {
		return nil, nil, err
	}

	if sizing.UsesFlashLoan() {
		// Borrow enough to repay loan plus fee despite in-flight interest.
		borrowRaw := asset.WithBuffer(
			c.flash.FeeModel().TotalRepayment(sizing.FlashLoanRaw),
			c.config.Buffers.BorrowFeePercent,
		)

		if locked {
			// Borrow is the first lock-sensitive op in this unit.
			if err := c.protocol.Unlock(ctx, b); err != nil {
				return nil, nil, err
			}
			didUnlock = true
		}

		borrowCoin, err := c.protocol.Borrow(ctx, b, repayAsset, borrowRaw, true)
		if err != nil {
			return nil, nil, err
		}

		if err := c.flash.Repay(ctx, b, borrowCoin, receipt, repayAsset); err != nil {
			return nil, nil, err
		}

		if !c.protocol.ConsumesRepaymentCoin() {
			if err := b.TransferToSender(borrowCoin); err != nil {
				return nil, nil, err
			}
		}
	}

	if existing == nil {
		if err := b.Append(txplan.KindTransfer, "transfer new position key to sender", nil); err != nil {
			return nil, nil, err
		}
	}

	// Relock only restores a lock this unit released; a multiplier-1 entry
	// emits no lock-sensitive op and must leave the lock untouched.
	if didUnlock && c.config.RelockAfter {
		if err := c.protocol.Relock(ctx, b); err != nil {
			return nil, nil, err
		}
	}

	plan, err := b.Finalize()
	if err != nil {
		return nil, nil, err
	}

	c.log.Info(ctx, "leverage unit composed",
		"protocol", c.protocol.Name(),
		"deposit", params.DepositAmount.String(),
		"multiplier", params.Multiplier.String(),
		"flash_loan_raw", sizing.FlashLoanRaw.String(),
		"ops", len(plan.Ops()),
	)
	return plan, sizing, nil
}

// mergeWithUserFunds combines the user's wallet contribution with the
// swapped coin (when present) into a single collateral coin.
func (c *Composer) mergeWithUserFunds(b *txplan.Builder, userAmount asset.Amount, swapped txplan.Coin) (txplan.Coin, error) {
	label := fmt.Sprintf("merge user deposit %s", userAmount)
	if swapped.Valid() {
		label = fmt.Sprintf("merge user deposit %s with swapped funds", userAmount)
	}
	if err := b.Append(txplan.KindMerge, label, nil); err != nil {
		return txplan.Coin{}, err
	}
	return b.NewCoin(userAmount.Asset()), nil
}

// bestQuote fetches candidates and picks the maximum output (first seen on
// ties). Zero candidates abort the composition.
func (c *Composer) bestQuote(ctx context.Context, in, out *asset.Asset, amountInRaw *big.Int) (domain.SwapQuote, error) {
	quotes, err := c.swapper.Quote(ctx, in, out, amountInRaw)
	if err != nil {
		return domain.SwapQuote{}, apperror.Wrap(err, apperror.CodeQuoteFailed,
			fmt.Sprintf("%s->%s", in.Symbol(), out.Symbol()))
	}
	c.metrics.quoteCandidates.Record(ctx, int64(len(quotes)))

	best, ok := domain.BestQuote(quotes)
	if !ok {
		return domain.SwapQuote{}, apperror.New(apperror.CodeNoRoute,
			apperror.WithContext(fmt.Sprintf("%s->%s", in.Symbol(), out.Symbol())))
	}
	return best, nil
}

// Position returns the user's position at the protocol, nil when the user
// has none.
func (c *Composer) Position(ctx context.Context, user common.Address) (*domain.Position, error) {
	if user == (common.Address{}) {
		return nil, apperror.Validation(apperror.CodeInvalidParameter, "user address is required")
	}
	pos, err := c.protocol.Position(ctx, user)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeProtocolCallFailed, "query position")
	}
	return pos, nil
}

func (c *Composer) lockState(ctx context.Context, user common.Address) (bool, error) {
	if !c.protocol.SupportsLock() {
		return false, nil
	}
	locked, err := c.protocol.Locked(ctx, user)
	if err != nil {
		return false, apperror.Wrap(err, apperror.CodeProtocolCallFailed, "query lock state")
	}
	return locked, nil
}
