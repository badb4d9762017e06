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

	"github.com/curg-13/levkit/business/leverage/app"
	"github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/txplan"
)

// Ensure FlashProvider implements the flash-loan port.
var _ app.FlashLoanProvider = (*FlashProvider)(nil)

// FlashConfig configures the flash-loan provider. FallbackFeeBps is used
// when the on-chain premium cannot be read at construction.
type FlashConfig struct {
	Pool           common.Address
	FallbackFeeBps int64
}

// FlashProvider implements flash loans against the Aave V3 Pool. The fee
// model is pinned at construction so sizing and repayment read the same
// rate for the lifetime of the provider.
type FlashProvider struct {
	config  FlashConfig
	poolABI abi.ABI
	fee     domain.FeeModel
	logger  logger.LoggerInterface
}

// NewFlashProvider reads FLASHLOAN_PREMIUM_TOTAL from the pool and falls
// back to the configured rate when the read fails.
func NewFlashProvider(ctx context.Context, client *ethclient.Client, cfg FlashConfig, log logger.LoggerInterface) (*FlashProvider, error) {
	poolABI, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}

	p := &FlashProvider{
		config:  cfg,
		poolABI: poolABI,
		logger:  log,
	}

	rateBps, err := p.readPremium(ctx, client)
	if err != nil {
		log.Warn(ctx, "could not read flash-loan premium, using configured rate",
			"error", err, "fallback_bps", cfg.FallbackFeeBps)
		rateBps = cfg.FallbackFeeBps
	}
	p.fee = domain.NewFeeModel(rateBps)

	log.Info(ctx, "flash-loan provider ready", "pool", cfg.Pool.Hex(), "fee_bps", rateBps)
	return p, nil
}

// FeeModel returns the provider's fee model.
func (p *FlashProvider) FeeModel() domain.FeeModel {
	return p.fee
}

// Borrow appends the flash-borrow op and issues the coin plus a single-use
// repayment receipt.
func (p *FlashProvider) Borrow(_ context.Context, b *txplan.Builder, tokenAsset *asset.Asset, amountRaw *big.Int) (txplan.Coin, txplan.Receipt, error) {
	data, err := p.poolABI.Pack("flashLoanSimple",
		b.Sender(), tokenAsset.Address(), amountRaw, []byte{}, uint16(0))
	if err != nil {
		return txplan.Coin{}, txplan.Receipt{}, fmt.Errorf("failed to encode flashLoanSimple: %w", err)
	}
	if err := b.Append(txplan.KindFlashBorrow,
		fmt.Sprintf("flash borrow %s %s", amountRaw, tokenAsset.Symbol()),
		Call{Target: p.config.Pool, Data: data}); err != nil {
		return txplan.Coin{}, txplan.Receipt{}, err
	}
	return b.NewCoin(tokenAsset), b.NewReceipt(), nil
}

// Repay consumes the receipt and appends the repayment op. The coin must
// cover principal plus premium; the pool pulls the exact total at execution.
func (p *FlashProvider) Repay(_ context.Context, b *txplan.Builder, coin txplan.Coin, receipt txplan.Receipt, tokenAsset *asset.Asset) error {
	if err := b.ConsumeReceipt(receipt); err != nil {
		return err
	}
	return b.Append(txplan.KindFlashRepay,
		fmt.Sprintf("repay flash loan in %s", tokenAsset.Symbol()),
		Call{
			Target: p.config.Pool,
			Method: "flashRepay",
			Args:   []any{tokenAsset.Address(), coin},
		})
}

func (p *FlashProvider) readPremium(ctx context.Context, client *ethclient.Client) (int64, error) {
	data, err := p.poolABI.Pack("FLASHLOAN_PREMIUM_TOTAL")
	if err != nil {
		return 0, fmt.Errorf("failed to encode premium query: %w", err)
	}
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &p.config.Pool, Data: data}, nil)
	if err != nil {
		return 0, err
	}
	outputs, err := p.poolABI.Unpack("FLASHLOAN_PREMIUM_TOTAL", raw)
	if err != nil {
		return 0, fmt.Errorf("failed to decode premium: %w", err)
	}
	if len(outputs) != 1 {
		return 0, fmt.Errorf("unexpected premium output length: %d", len(outputs))
	}
	premium, ok := outputs[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected premium output type %T", outputs[0])
	}
	return premium.Int64(), nil
}
