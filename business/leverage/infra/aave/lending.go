// Package aave adapts the Aave V3 Pool to the leverage context's lending
// and flash-loan capability ports.
package aave

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/curg-13/levkit/business/leverage/app"
	"github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/circuitbreaker"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/txplan"
)

const (
	tracerName = "aave"
	meterName  = "aave"
)

// Ensure LendingAdapter implements the lending port.
var _ app.LendingProtocol = (*LendingAdapter)(nil)

// LendingConfig pins the adapter to one collateral/debt market.
type LendingConfig struct {
	Pool common.Address

	CollateralAsset *asset.Asset
	DebtAsset       *asset.Asset

	// AToken and DebtToken are the interest-bearing receipt tokens whose
	// balances are the position.
	AToken    common.Address
	DebtToken common.Address
}

type lendingMetrics struct {
	positionQueries metric.Int64Counter
	callErrors      metric.Int64Counter
}

// LendingAdapter implements the lending port against the Aave V3 Pool.
// Plan methods append calldata ops; queries read through a circuit breaker.
type LendingAdapter struct {
	client   *ethclient.Client
	config   LendingConfig
	poolABI  abi.ABI
	erc20ABI abi.ABI

	cb      *circuitbreaker.CircuitBreaker[[]byte]
	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *lendingMetrics
}

// NewLendingAdapter creates the adapter.
func NewLendingAdapter(client *ethclient.Client, cfg LendingConfig, log logger.LoggerInterface) (*LendingAdapter, error) {
	poolABI, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}
	if cfg.CollateralAsset == nil || cfg.DebtAsset == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("collateral and debt assets are required"))
	}

	a := &LendingAdapter{
		client:   client,
		config:   cfg,
		poolABI:  poolABI,
		erc20ABI: erc20ABI,
		cb:       circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("aave-pool")),
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}
	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return a, nil
}

func (a *LendingAdapter) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &lendingMetrics{}
	a.metrics.positionQueries, err = meter.Int64Counter(
		"aave_position_queries_total",
		metric.WithDescription("Position reads against aToken/debt token balances"),
	)
	if err != nil {
		return err
	}
	a.metrics.callErrors, err = meter.Int64Counter(
		"aave_call_errors_total",
		metric.WithDescription("Failed contract reads"),
	)
	return err
}

// Name identifies the venue for logs and metrics.
func (a *LendingAdapter) Name() string { return "aave-v3" }

// ConsumesRepaymentCoin is false: repay leaves the unspent remainder with
// the caller.
func (a *LendingAdapter) ConsumesRepaymentCoin() bool { return false }

// SupportsLock is false: Aave has no position staking.
func (a *LendingAdapter) SupportsLock() bool { return false }

// Deposit supplies the coin as collateral on behalf of the plan sender.
// The amount is the in-flight coin, so calldata is encoded at execution.
func (a *LendingAdapter) Deposit(_ context.Context, b *txplan.Builder, tokenAsset *asset.Asset, coin txplan.Coin) error {
	if !coin.Valid() {
		return apperror.New(apperror.CodeInvalidState,
			apperror.WithMessage("deposit requires a coin produced earlier in the plan"))
	}
	return b.Append(txplan.KindDeposit,
		fmt.Sprintf("supply %s to aave pool", tokenAsset.Symbol()),
		Call{
			Target: a.config.Pool,
			Method: "supply",
			Args:   []any{tokenAsset.Address(), coin, b.Sender(), uint16(0)},
		})
}

// Withdraw removes amountRaw of collateral to the plan sender.
func (a *LendingAdapter) Withdraw(_ context.Context, b *txplan.Builder, tokenAsset *asset.Asset, amountRaw *big.Int) (txplan.Coin, error) {
	data, err := a.poolABI.Pack("withdraw", tokenAsset.Address(), amountRaw, b.Sender())
	if err != nil {
		return txplan.Coin{}, fmt.Errorf("failed to encode withdraw: %w", err)
	}
	if err := b.Append(txplan.KindWithdraw,
		fmt.Sprintf("withdraw %s %s", amountRaw, tokenAsset.Symbol()),
		Call{Target: a.config.Pool, Data: data}); err != nil {
		return txplan.Coin{}, err
	}
	return b.NewCoin(tokenAsset), nil
}

// Borrow draws amountRaw at variable rate against the position. Aave's
// oracles are push-based, so skipOracleRefresh has no effect here.
func (a *LendingAdapter) Borrow(_ context.Context, b *txplan.Builder, tokenAsset *asset.Asset, amountRaw *big.Int, skipOracleRefresh bool) (txplan.Coin, error) {
	_ = skipOracleRefresh
	data, err := a.poolABI.Pack("borrow",
		tokenAsset.Address(), amountRaw, interestRateModeVariable, uint16(0), b.Sender())
	if err != nil {
		return txplan.Coin{}, fmt.Errorf("failed to encode borrow: %w", err)
	}
	if err := b.Append(txplan.KindBorrow,
		fmt.Sprintf("borrow %s %s", amountRaw, tokenAsset.Symbol()),
		Call{Target: a.config.Pool, Data: data}); err != nil {
		return txplan.Coin{}, err
	}
	return b.NewCoin(tokenAsset), nil
}

// Repay pays debt down with the coin. Encoding max-uint as the amount lets
// the pool pull only what is owed; the remainder stays as a coin for the
// composer to return to the sender.
func (a *LendingAdapter) Repay(_ context.Context, b *txplan.Builder, tokenAsset *asset.Asset, coin txplan.Coin) (txplan.Coin, error) {
	if !coin.Valid() {
		return txplan.Coin{}, apperror.New(apperror.CodeInvalidState,
			apperror.WithMessage("repay requires a coin produced earlier in the plan"))
	}
	if err := b.Append(txplan.KindRepay,
		fmt.Sprintf("repay %s debt", tokenAsset.Symbol()),
		Call{
			Target: a.config.Pool,
			Method: "repay",
			Args:   []any{tokenAsset.Address(), coin, interestRateModeVariable, b.Sender()},
		}); err != nil {
		return txplan.Coin{}, err
	}
	return b.NewCoin(tokenAsset), nil
}

// RefreshOracles is a no-op: Aave consumes push-based Chainlink feeds, so
// there is nothing to schedule before deposit or borrow.
func (a *LendingAdapter) RefreshOracles(ctx context.Context, _ *txplan.Builder, assets []*asset.Asset) error {
	symbols := make([]string, len(assets))
	for i, as := range assets {
		symbols[i] = as.Symbol()
	}
	a.logger.Debug(ctx, "oracle refresh not required for aave", "assets", symbols)
	return nil
}

// Position reads the aToken and variable-debt balances for the configured
// market. A user with neither balance has no position.
func (a *LendingAdapter) Position(ctx context.Context, user common.Address) (*domain.Position, error) {
	ctx, span := a.tracer.Start(ctx, "aave.position",
		trace.WithAttributes(attribute.String("user", user.Hex())))
	defer span.End()

	a.metrics.positionQueries.Add(ctx, 1)

	collateralRaw, err := a.balanceOf(ctx, a.config.AToken, user)
	if err != nil {
		return nil, err
	}
	debtRaw, err := a.balanceOf(ctx, a.config.DebtToken, user)
	if err != nil {
		return nil, err
	}

	if collateralRaw.Sign() == 0 && debtRaw.Sign() == 0 {
		return nil, nil
	}

	span.SetAttributes(
		attribute.String("collateral_raw", collateralRaw.String()),
		attribute.String("debt_raw", debtRaw.String()),
	)
	return &domain.Position{
		Collateral: asset.NewAmount(a.config.CollateralAsset, collateralRaw),
		Debt:       asset.NewAmount(a.config.DebtAsset, debtRaw),
	}, nil
}

// Locked is always false: Aave has no position locking.
func (a *LendingAdapter) Locked(context.Context, common.Address) (bool, error) {
	return false, nil
}

// Unlock rejects: the venue reports SupportsLock false.
func (a *LendingAdapter) Unlock(context.Context, *txplan.Builder) error {
	return apperror.New(apperror.CodeInvalidState,
		apperror.WithMessage("aave-v3 has no position locking"))
}

// Relock rejects: the venue reports SupportsLock false.
func (a *LendingAdapter) Relock(context.Context, *txplan.Builder) error {
	return apperror.New(apperror.CodeInvalidState,
		apperror.WithMessage("aave-v3 has no position locking"))
}

func (a *LendingAdapter) balanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := a.erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to encode balanceOf: %w", err)
	}

	raw, err := a.cb.Execute(func() ([]byte, error) {
		return a.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	})
	if err != nil {
		a.metrics.callErrors.Add(ctx, 1)
		if circuitbreaker.IsOpen(err) {
			return nil, apperror.New(apperror.CodeCircuitOpen,
				apperror.WithCause(err),
				apperror.WithContext("aave-pool"))
		}
		return nil, apperror.New(apperror.CodeRPCError,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("balanceOf %s", token.Hex())))
	}

	outputs, err := a.erc20ABI.Unpack("balanceOf", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode balanceOf: %w", err)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected balanceOf output length: %d", len(outputs))
	}
	return outputs[0].(*big.Int), nil
}
