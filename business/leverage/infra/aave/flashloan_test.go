package aave

import (
	"context"
	"io"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/txplan"
)

func newTestFlashProvider(t *testing.T) *FlashProvider {
	t.Helper()
	poolABI, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		t.Fatalf("parse ABI: %v", err)
	}
	return &FlashProvider{
		config:  FlashConfig{Pool: testPool, FallbackFeeBps: 5},
		poolABI: poolABI,
		fee:     domain.NewFeeModel(5),
		logger:  logger.New(io.Discard, logger.LevelError, "test", nil),
	}
}

func TestFlashBorrowRepay_BalancesReceipt(t *testing.T) {
	p := newTestFlashProvider(t)
	b := txplan.NewBuilder(testUser)

	amount := big.NewInt(1_005_000)
	coin, receipt, err := p.Borrow(context.Background(), b, asset.USDC, amount)
	if err != nil {
		t.Fatalf("Borrow() error = %v", err)
	}
	if !coin.Valid() || !receipt.Valid() {
		t.Fatal("borrow must issue a coin and a receipt")
	}

	repayCoin := b.NewCoin(asset.USDC)
	if err := p.Repay(context.Background(), b, repayCoin, receipt, asset.USDC); err != nil {
		t.Fatalf("Repay() error = %v", err)
	}

	plan, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	ops := plan.Ops()
	if len(ops) != 2 {
		t.Fatalf("ops = %d, want 2", len(ops))
	}
	if ops[0].Kind != txplan.KindFlashBorrow || ops[1].Kind != txplan.KindFlashRepay {
		t.Errorf("kinds = [%s %s]", ops[0].Kind, ops[1].Kind)
	}
	call := ops[0].Call.(Call)
	if call.Target != testPool {
		t.Errorf("borrow target = %s, want pool", call.Target)
	}
	if len(call.Data) == 0 {
		t.Error("flash borrow should carry pre-encoded calldata")
	}
}

func TestFlashRepay_RejectsReusedReceipt(t *testing.T) {
	p := newTestFlashProvider(t)
	b := txplan.NewBuilder(testUser)

	_, receipt, err := p.Borrow(context.Background(), b, asset.USDC, big.NewInt(1))
	if err != nil {
		t.Fatalf("Borrow() error = %v", err)
	}
	if err := p.Repay(context.Background(), b, b.NewCoin(asset.USDC), receipt, asset.USDC); err != nil {
		t.Fatalf("first Repay() error = %v", err)
	}
	err = p.Repay(context.Background(), b, b.NewCoin(asset.USDC), receipt, asset.USDC)
	if !apperror.IsCode(err, apperror.CodeReceiptAlreadyUsed) {
		t.Errorf("second Repay() error = %v, want %s", err, apperror.CodeReceiptAlreadyUsed)
	}
}

func TestUnrepaidFlashLoan_VoidsPlan(t *testing.T) {
	p := newTestFlashProvider(t)
	b := txplan.NewBuilder(testUser)

	if _, _, err := p.Borrow(context.Background(), b, asset.USDC, big.NewInt(1)); err != nil {
		t.Fatalf("Borrow() error = %v", err)
	}
	if _, err := b.Finalize(); !apperror.IsCode(err, apperror.CodeUnconsumedReceipt) {
		t.Errorf("Finalize() error = %v, want %s", err, apperror.CodeUnconsumedReceipt)
	}
}

func TestFeeModel_MatchesConfiguredRate(t *testing.T) {
	p := newTestFlashProvider(t)
	fee := p.FeeModel()
	if fee.RateBps() != 5 {
		t.Errorf("RateBps() = %d, want 5", fee.RateBps())
	}
	if got := fee.TotalRepayment(big.NewInt(1_005_000)); got.Cmp(big.NewInt(1_005_502)) != 0 {
		t.Errorf("TotalRepayment = %s, want 1005502", got)
	}
}
