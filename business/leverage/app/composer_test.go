package app

import (
	"context"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/txplan"
)

var testUser = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

// fakeProtocol appends real ops so tests can assert ordering on the sealed
// plan.
type fakeProtocol struct {
	position      *domain.Position
	positionErr   error
	locked        bool
	supportsLock  bool
	consumesRepay bool

	borrowRaws   []*big.Int
	withdrawRaws []*big.Int
}

func (f *fakeProtocol) Name() string { return "fake-lend" }

func (f *fakeProtocol) Deposit(_ context.Context, b *txplan.Builder, a *asset.Asset, _ txplan.Coin) error {
	return b.Append(txplan.KindDeposit, "deposit "+a.Symbol(), nil)
}

func (f *fakeProtocol) Withdraw(_ context.Context, b *txplan.Builder, a *asset.Asset, amountRaw *big.Int) (txplan.Coin, error) {
	f.withdrawRaws = append(f.withdrawRaws, new(big.Int).Set(amountRaw))
	if err := b.Append(txplan.KindWithdraw, "withdraw "+a.Symbol(), nil); err != nil {
		return txplan.Coin{}, err
	}
	return b.NewCoin(a), nil
}

func (f *fakeProtocol) Borrow(_ context.Context, b *txplan.Builder, a *asset.Asset, amountRaw *big.Int, _ bool) (txplan.Coin, error) {
	f.borrowRaws = append(f.borrowRaws, new(big.Int).Set(amountRaw))
	if err := b.Append(txplan.KindBorrow, "borrow "+a.Symbol(), nil); err != nil {
		return txplan.Coin{}, err
	}
	return b.NewCoin(a), nil
}

func (f *fakeProtocol) Repay(_ context.Context, b *txplan.Builder, a *asset.Asset, _ txplan.Coin) (txplan.Coin, error) {
	if err := b.Append(txplan.KindRepay, "repay "+a.Symbol(), nil); err != nil {
		return txplan.Coin{}, err
	}
	if f.consumesRepay {
		return txplan.Coin{}, nil
	}
	return b.NewCoin(a), nil
}

func (f *fakeProtocol) RefreshOracles(_ context.Context, b *txplan.Builder, _ []*asset.Asset) error {
	return b.Append(txplan.KindRefreshOracles, "refresh oracles", nil)
}

func (f *fakeProtocol) Position(context.Context, common.Address) (*domain.Position, error) {
	return f.position, f.positionErr
}

func (f *fakeProtocol) Locked(context.Context, common.Address) (bool, error) {
	return f.locked, nil
}

func (f *fakeProtocol) Unlock(_ context.Context, b *txplan.Builder) error {
	return b.Append(txplan.KindUnlock, "unlock position", nil)
}

func (f *fakeProtocol) Relock(_ context.Context, b *txplan.Builder) error {
	return b.Append(txplan.KindRelock, "relock position", nil)
}

func (f *fakeProtocol) ConsumesRepaymentCoin() bool { return f.consumesRepay }
func (f *fakeProtocol) SupportsLock() bool          { return f.supportsLock }

type fakeFlash struct {
	fee        domain.FeeModel
	borrowRaws []*big.Int
}

func (f *fakeFlash) Borrow(_ context.Context, b *txplan.Builder, a *asset.Asset, amountRaw *big.Int) (txplan.Coin, txplan.Receipt, error) {
	f.borrowRaws = append(f.borrowRaws, new(big.Int).Set(amountRaw))
	if err := b.Append(txplan.KindFlashBorrow, "flash borrow "+a.Symbol(), nil); err != nil {
		return txplan.Coin{}, txplan.Receipt{}, err
	}
	return b.NewCoin(a), b.NewReceipt(), nil
}

func (f *fakeFlash) Repay(_ context.Context, b *txplan.Builder, _ txplan.Coin, receipt txplan.Receipt, a *asset.Asset) error {
	if err := b.ConsumeReceipt(receipt); err != nil {
		return err
	}
	return b.Append(txplan.KindFlashRepay, "flash repay "+a.Symbol(), nil)
}

func (f *fakeFlash) FeeModel() domain.FeeModel { return f.fee }

// fakeSwapper quotes from fixed linear rates keyed by "IN->OUT".
type fakeSwapper struct {
	rates      map[string][2]*big.Int // numerator, denominator
	quoteCalls int
	swapCalls  int
}

func (f *fakeSwapper) Quote(_ context.Context, in, out *asset.Asset, amountInRaw *big.Int) ([]domain.SwapQuote, error) {
	f.quoteCalls++
	rate, ok := f.rates[in.Symbol()+"->"+out.Symbol()]
	if !ok {
		return nil, nil
	}
	return []domain.SwapQuote{{
		In:     asset.NewAmount(in, amountInRaw),
		Out:    asset.NewAmount(out, asset.MulDivFloor(amountInRaw, rate[0], rate[1])),
		Source: "fake-agg",
	}}, nil
}

func (f *fakeSwapper) Swap(_ context.Context, b *txplan.Builder, quote domain.SwapQuote, _ txplan.Coin, _ int64) (txplan.Coin, error) {
	f.swapCalls++
	if err := b.Append(txplan.KindSwap, "swap via "+quote.Source, nil); err != nil {
		return txplan.Coin{}, err
	}
	return b.NewCoin(quote.Out.Asset()), nil
}

type fakeOracle struct {
	prices map[string]decimal.Decimal
}

func (f *fakeOracle) Price(_ context.Context, a *asset.Asset) (decimal.Decimal, error) {
	p, ok := f.prices[a.Symbol()]
	if !ok {
		return decimal.Zero, apperror.New(apperror.CodePriceUnavailable,
			apperror.WithContext(a.Symbol()))
	}
	return p, nil
}

type testEnv struct {
	protocol *fakeProtocol
	flash    *fakeFlash
	swapper  *fakeSwapper
	oracle   *fakeOracle
	composer *Composer
}

func newTestEnv(t *testing.T, relockAfter bool) *testEnv {
	t.Helper()

	protocol := &fakeProtocol{}
	flash := &fakeFlash{fee: domain.DefaultFeeModel()}
	swapper := &fakeSwapper{rates: map[string][2]*big.Int{
		// 2000 USDC per WETH, both directions.
		"USDC->WETH": {asset.Pow10(18), big.NewInt(2_000_000_000)},
		"WETH->USDC": {big.NewInt(2_000_000_000), asset.Pow10(18)},
	}}
	oracle := &fakeOracle{prices: map[string]decimal.Decimal{
		"WETH": decimal.NewFromInt(2000),
		"USDC": decimal.NewFromInt(1),
	}}

	composer, err := NewComposer(protocol, flash, swapper, oracle, ComposerConfig{
		RepaymentAsset: asset.USDC,
		Buffers:        domain.DefaultBuffers(),
		RelockAfter:    relockAfter,
	}, logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatalf("NewComposer: %v", err)
	}
	return &testEnv{protocol: protocol, flash: flash, swapper: swapper, oracle: oracle, composer: composer}
}

func kinds(plan *txplan.Plan) []txplan.Kind {
	ops := plan.Ops()
	ks := make([]txplan.Kind, len(ops))
	for i, op := range ops {
		ks[i] = op.Kind
	}
	return ks
}

func assertKinds(t *testing.T, got, want []txplan.Kind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("op kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("op kinds = %v, want %v", got, want)
		}
	}
}

func oneWETH() asset.Amount {
	return asset.NewAmount(asset.WETH, asset.Pow10(18))
}

func TestBuildLeverage_OpOrder(t *testing.T) {
	env := newTestEnv(t, false)

	plan, sizing, err := env.composer.BuildLeverage(context.Background(), LeverageParams{
		User:          testUser,
		DepositAmount: oneWETH(),
		Multiplier:    decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertKinds(t, kinds(plan), []txplan.Kind{
		txplan.KindFlashBorrow,
		txplan.KindSwap,
		txplan.KindMerge,
		txplan.KindRefreshOracles,
		txplan.KindDeposit,
		txplan.KindBorrow,
		txplan.KindFlashRepay,
		txplan.KindTransfer, // borrow remainder
		txplan.KindTransfer, // new position key
	})

	// $2000 equity at 2x, 2% safety buffer, in micro-USDC.
	if sizing.FlashLoanRaw.Int64() != 2_040_000_000 {
		t.Errorf("FlashLoanRaw = %d, want 2040000000", sizing.FlashLoanRaw.Int64())
	}
	if len(env.flash.borrowRaws) != 1 || env.flash.borrowRaws[0].Cmp(sizing.FlashLoanRaw) != 0 {
		t.Errorf("flash borrow raws = %v, want one of %s", env.flash.borrowRaws, sizing.FlashLoanRaw)
	}

	// The protocol borrow covers loan + fee plus the borrow-fee buffer.
	wantBorrow := asset.WithBuffer(
		env.flash.fee.TotalRepayment(sizing.FlashLoanRaw),
		domain.DefaultBuffers().BorrowFeePercent,
	)
	if len(env.protocol.borrowRaws) != 1 || env.protocol.borrowRaws[0].Cmp(wantBorrow) != 0 {
		t.Errorf("protocol borrow raws = %v, want one of %s", env.protocol.borrowRaws, wantBorrow)
	}
}

func TestBuildLeverage_MultiplierOne(t *testing.T) {
	env := newTestEnv(t, false)

	plan, sizing, err := env.composer.BuildLeverage(context.Background(), LeverageParams{
		User:          testUser,
		DepositAmount: oneWETH(),
		Multiplier:    decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sizing.UsesFlashLoan() {
		t.Error("multiplier 1 must not use a flash loan")
	}
	assertKinds(t, kinds(plan), []txplan.Kind{
		txplan.KindMerge,
		txplan.KindRefreshOracles,
		txplan.KindDeposit,
		txplan.KindTransfer, // new position key
	})
	if env.swapper.quoteCalls != 0 {
		t.Errorf("quoteCalls = %d, want 0", env.swapper.quoteCalls)
	}
}

func TestBuildLeverage_SameAssetSkipsSwap(t *testing.T) {
	env := newTestEnv(t, false)
	env.protocol.position = &domain.Position{
		Collateral: asset.NewAmountFromUint64(asset.USDC, 5_000_000),
		Debt:       asset.Zero(asset.USDC),
	}

	plan, _, err := env.composer.BuildLeverage(context.Background(), LeverageParams{
		User:          testUser,
		DepositAmount: asset.NewAmountFromUint64(asset.USDC, 10_000_000),
		Multiplier:    decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertKinds(t, kinds(plan), []txplan.Kind{
		txplan.KindFlashBorrow,
		txplan.KindMerge,
		txplan.KindRefreshOracles,
		txplan.KindDeposit,
		txplan.KindBorrow,
		txplan.KindFlashRepay,
		txplan.KindTransfer, // borrow remainder; position exists, no key transfer
	})
	if env.swapper.quoteCalls != 0 {
		t.Errorf("quoteCalls = %d, want 0", env.swapper.quoteCalls)
	}
}

func TestBuildLeverage_NoRouteAbortsBeforeAnyOp(t *testing.T) {
	env := newTestEnv(t, false)
	env.swapper.rates = nil

	plan, _, err := env.composer.BuildLeverage(context.Background(), LeverageParams{
		User:          testUser,
		DepositAmount: oneWETH(),
		Multiplier:    decimal.NewFromInt(2),
	})
	if !apperror.IsCode(err, apperror.CodeNoRoute) {
		t.Fatalf("got %v, want code %s", err, apperror.CodeNoRoute)
	}
	if plan != nil {
		t.Error("plan should be nil on abort")
	}
	if len(env.flash.borrowRaws) != 0 {
		t.Error("flash borrow must not run when no route exists")
	}
	if env.swapper.swapCalls != 0 {
		t.Error("swap must not run when no route exists")
	}
}

func TestBuildLeverage_ConsumesRepaymentCoin(t *testing.T) {
	env := newTestEnv(t, false)
	env.protocol.consumesRepay = true
	env.protocol.position = &domain.Position{
		Collateral: asset.NewAmount(asset.WETH, big.NewInt(1)),
		Debt:       asset.Zero(asset.USDC),
	}

	plan, _, err := env.composer.BuildLeverage(context.Background(), LeverageParams{
		User:          testUser,
		DepositAmount: oneWETH(),
		Multiplier:    decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, op := range plan.Ops() {
		if op.Kind == txplan.KindTransfer {
			t.Errorf("unexpected transfer op %q when the venue consumes the repayment coin", op.Label)
		}
	}
}

func TestBuildLeverage_LockedUnlocksBeforeBorrow(t *testing.T) {
	env := newTestEnv(t, true)
	env.protocol.supportsLock = true
	env.protocol.locked = true
	env.protocol.position = &domain.Position{
		Collateral: asset.NewAmount(asset.WETH, big.NewInt(1)),
		Debt:       asset.Zero(asset.USDC),
	}

	plan, _, err := env.composer.BuildLeverage(context.Background(), LeverageParams{
		User:          testUser,
		DepositAmount: oneWETH(),
		Multiplier:    decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ks := kinds(plan)
	assertKinds(t, ks, []txplan.Kind{
		txplan.KindFlashBorrow,
		txplan.KindSwap,
		txplan.KindMerge,
		txplan.KindRefreshOracles,
		txplan.KindDeposit,
		txplan.KindUnlock,
		txplan.KindBorrow,
		txplan.KindFlashRepay,
		txplan.KindTransfer,
		txplan.KindRelock,
	})
	if ks[len(ks)-1] != txplan.KindRelock {
		t.Error("relock must be the final op")
	}
}

func TestBuildLeverage_LockedMultiplierOneLeavesLockAlone(t *testing.T) {
	env := newTestEnv(t, true)
	env.protocol.supportsLock = true
	env.protocol.locked = true
	env.protocol.position = &domain.Position{
		Collateral: asset.NewAmount(asset.WETH, big.NewInt(1)),
		Debt:       asset.Zero(asset.USDC),
	}

	// Multiplier 1 means no flash loan and no borrow, so the unit touches
	// nothing lock-sensitive and must not unlock or relock.
	plan, sizing, err := env.composer.BuildLeverage(context.Background(), LeverageParams{
		User:          testUser,
		DepositAmount: oneWETH(),
		Multiplier:    decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sizing.UsesFlashLoan() {
		t.Error("multiplier 1 must not use a flash loan")
	}

	for _, op := range plan.Ops() {
		if op.Kind == txplan.KindUnlock || op.Kind == txplan.KindRelock {
			t.Errorf("unexpected lock op %q in a unit with no lock-sensitive step", op.Label)
		}
	}
}

func TestBuildDeleverage_OpOrder(t *testing.T) {
	env := newTestEnv(t, false)
	env.protocol.position = &domain.Position{
		Collateral: oneWETH(),
		Debt:       asset.NewAmountFromUint64(asset.USDC, 1_000_000),
	}

	plan, sizing, err := env.composer.BuildDeleverage(context.Background(), DeleverageParams{User: testUser})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertKinds(t, kinds(plan), []txplan.Kind{
		txplan.KindFlashBorrow,
		txplan.KindRepay,
		txplan.KindWithdraw,
		txplan.KindSwap,
		txplan.KindFlashRepay,
		txplan.KindTransfer, // kept collateral
		txplan.KindTransfer, // swap leftovers
		txplan.KindTransfer, // repay remainder
	})

	if sizing.FlashLoanRaw.Int64() != 1_005_000 {
		t.Errorf("FlashLoanRaw = %d, want 1005000", sizing.FlashLoanRaw.Int64())
	}
	if len(env.protocol.withdrawRaws) != 1 ||
		env.protocol.withdrawRaws[0].Cmp(sizing.WithdrawAmountRaw) != 0 {
		t.Errorf("withdraw raws = %v, want one of %s",
			env.protocol.withdrawRaws, sizing.WithdrawAmountRaw)
	}
	sum := new(big.Int).Add(sizing.SwapAmountRaw, sizing.KeepAmountRaw)
	if sum.Cmp(sizing.WithdrawAmountRaw) != 0 {
		t.Errorf("swap %s + keep %s != withdraw %s",
			sizing.SwapAmountRaw, sizing.KeepAmountRaw, sizing.WithdrawAmountRaw)
	}
}

func TestBuildDeleverage_LockedUnlocksBeforeRepay(t *testing.T) {
	env := newTestEnv(t, true)
	env.protocol.supportsLock = true
	env.protocol.locked = true
	env.protocol.position = &domain.Position{
		Collateral: oneWETH(),
		Debt:       asset.NewAmountFromUint64(asset.USDC, 1_000_000),
	}

	plan, _, err := env.composer.BuildDeleverage(context.Background(), DeleverageParams{User: testUser})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ks := kinds(plan)
	for i, k := range ks {
		if k == txplan.KindUnlock {
			if i+1 >= len(ks) || ks[i+1] != txplan.KindRepay {
				t.Errorf("unlock at %d must immediately precede repay, kinds = %v", i, ks)
			}
		}
	}
	if ks[len(ks)-1] != txplan.KindRelock {
		t.Error("relock must be the final op")
	}
}

func TestBuildDeleverage_NoDebt(t *testing.T) {
	env := newTestEnv(t, false)
	env.protocol.position = &domain.Position{
		Collateral: oneWETH(),
		Debt:       asset.Zero(asset.USDC),
	}

	_, _, err := env.composer.BuildDeleverage(context.Background(), DeleverageParams{User: testUser})
	if !apperror.IsCode(err, apperror.CodeNoDebt) {
		t.Fatalf("got %v, want code %s", err, apperror.CodeNoDebt)
	}
	if len(env.flash.borrowRaws) != 0 {
		t.Error("flash borrow must not run for a debt-free position")
	}
	if env.swapper.quoteCalls != 0 {
		t.Error("no quotes should be requested for a debt-free position")
	}
}

func TestBuildDeleverage_NoPosition(t *testing.T) {
	env := newTestEnv(t, false)

	_, _, err := env.composer.BuildDeleverage(context.Background(), DeleverageParams{User: testUser})
	if !apperror.IsCode(err, apperror.CodeNoPositionFound) {
		t.Fatalf("got %v, want code %s", err, apperror.CodeNoPositionFound)
	}
}

func TestBuildDeleverage_InsufficientCollateralRefused(t *testing.T) {
	env := newTestEnv(t, false)
	// 0.0004 WETH sells for 0.80 USDC against 1.005502 USDC owed.
	env.protocol.position = &domain.Position{
		Collateral: asset.NewAmount(asset.WETH, big.NewInt(400_000_000_000_000)),
		Debt:       asset.NewAmountFromUint64(asset.USDC, 1_000_000),
	}

	_, _, err := env.composer.BuildDeleverage(context.Background(), DeleverageParams{User: testUser})
	if !apperror.IsCode(err, apperror.CodeInsufficientCollateral) {
		t.Fatalf("got %v, want code %s", err, apperror.CodeInsufficientCollateral)
	}
	if len(env.flash.borrowRaws) != 0 {
		t.Error("flash borrow must not run when collateral cannot cover repayment")
	}
}

func TestEstimateDeleverage_NoOpsAppended(t *testing.T) {
	env := newTestEnv(t, false)
	env.protocol.position = &domain.Position{
		Collateral: oneWETH(),
		Debt:       asset.NewAmountFromUint64(asset.USDC, 1_000_000),
	}

	sizing, err := env.composer.EstimateDeleverage(context.Background(), DeleverageParams{User: testUser})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sizing.TotalRepaymentRaw.Int64() != 1_005_502 {
		t.Errorf("TotalRepaymentRaw = %d, want 1005502", sizing.TotalRepaymentRaw.Int64())
	}
	if len(env.flash.borrowRaws) != 0 || env.swapper.swapCalls != 0 {
		t.Error("estimate must not append ops or call swap")
	}
}

func TestPreviewLeverage_PriceUnavailable(t *testing.T) {
	env := newTestEnv(t, false)
	delete(env.oracle.prices, "WETH")

	_, err := env.composer.PreviewLeverage(context.Background(), LeverageParams{
		User:          testUser,
		DepositAmount: oneWETH(),
		Multiplier:    decimal.NewFromInt(2),
	})
	if !apperror.IsCode(err, apperror.CodePriceUnavailable) {
		t.Fatalf("got %v, want code %s", err, apperror.CodePriceUnavailable)
	}
}
