package app

import (
	"context"
	"io"
	"math/big"
	"testing"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/curg-13/levkit/business/chain/domain"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/txplan"
)

type fakeGas struct {
	price *domain.GasPrice
	err   error

	quotedLimit uint64
}

func (f *fakeGas) SuggestGasPrice(ctx context.Context) (*domain.GasPrice, error) {
	return f.price, f.err
}

func (f *fakeGas) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (f *fakeGas) EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeGas) QuoteUnitCost(ctx context.Context, gasLimit uint64) (*domain.UnitCost, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.quotedLimit = gasLimit
	return domain.NewUnitCost(gasLimit, f.price), nil
}

type fakeHeads struct {
	head *domain.Head
}

func (f *fakeHeads) Subscribe(ctx context.Context) (<-chan *domain.Head, error) {
	ch := make(chan *domain.Head, 1)
	ch <- f.head
	return ch, nil
}

func (f *fakeHeads) LatestHead(ctx context.Context) (*domain.Head, error) { return f.head, nil }

func (f *fakeHeads) Status() domain.ConnectionStatus {
	return domain.ConnectionStatus{State: domain.StateConnected}
}

func (f *fakeHeads) Close() error { return nil }

func newTestService(gas *fakeGas) *ChainService {
	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	return NewChainService(&fakeHeads{head: &domain.Head{Number: 20_000_000}}, gas, log)
}

func buildLeveragePlan(t *testing.T) *txplan.Plan {
	t.Helper()

	b := txplan.NewBuilder(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	b.Append(txplan.KindFlashBorrow, "flash borrow", nil)
	b.Append(txplan.KindSwap, "swap", nil)
	b.Append(txplan.KindDeposit, "deposit", nil)
	b.Append(txplan.KindBorrow, "borrow", nil)
	b.Append(txplan.KindFlashRepay, "flash repay", nil)

	plan, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return plan
}

func TestPlanGasLimit_SumsHeuristics(t *testing.T) {
	plan := buildLeveragePlan(t)

	// 21000 base + 220000 + 320000 + 240000 + 280000 + 90000
	want := uint64(21_000 + 220_000 + 320_000 + 240_000 + 280_000 + 90_000)
	if got := PlanGasLimit(plan); got != want {
		t.Fatalf("PlanGasLimit = %d, want %d", got, want)
	}
}

func TestEstimatePlanCost(t *testing.T) {
	gas := &fakeGas{price: domain.NewGasPrice(big.NewInt(20e9))} // 20 gwei
	svc := newTestService(gas)

	plan := buildLeveragePlan(t)
	cost, err := svc.EstimatePlanCost(context.Background(), plan)
	if err != nil {
		t.Fatalf("EstimatePlanCost: %v", err)
	}

	if gas.quotedLimit != PlanGasLimit(plan) {
		t.Fatalf("quoted limit %d, want %d", gas.quotedLimit, PlanGasLimit(plan))
	}

	wantWei := new(big.Int).Mul(big.NewInt(20e9), new(big.Int).SetUint64(PlanGasLimit(plan)))
	if cost.TotalWei.Cmp(wantWei) != 0 {
		t.Fatalf("TotalWei = %s, want %s", cost.TotalWei, wantWei)
	}
}

func TestConnectionStatus(t *testing.T) {
	svc := newTestService(&fakeGas{price: domain.NewGasPrice(big.NewInt(1e9))})

	if got := svc.ConnectionStatus().State; got != domain.StateConnected {
		t.Fatalf("state = %v, want %v", got, domain.StateConnected)
	}
}
