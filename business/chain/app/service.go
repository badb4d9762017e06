package app

import (
	"context"

	"github.com/curg-13/levkit/business/chain/domain"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/txplan"
)

const baseTxGas = 21_000

// opGasHeuristics maps plan operation kinds to conservative gas figures.
// They only feed pre-trade cost previews; execution estimates the real
// limit against the node.
var opGasHeuristics = map[txplan.Kind]uint64{
	txplan.KindFlashBorrow:    220_000,
	txplan.KindFlashRepay:     90_000,
	txplan.KindSwap:           320_000,
	txplan.KindMerge:          5_000,
	txplan.KindRefreshOracles: 60_000,
	txplan.KindDeposit:        240_000,
	txplan.KindBorrow:         280_000,
	txplan.KindRepay:          200_000,
	txplan.KindWithdraw:       230_000,
	txplan.KindUnlock:         80_000,
	txplan.KindRelock:         80_000,
	txplan.KindTransfer:       55_000,
}

const defaultOpGas = 150_000

// ChainService exposes head and gas information to other contexts.
type ChainService struct {
	heads  HeadSource
	gas    GasEstimator
	logger logger.LoggerInterface
}

// NewChainService creates the chain application service.
func NewChainService(heads HeadSource, gas GasEstimator, log logger.LoggerInterface) *ChainService {
	return &ChainService{
		heads:  heads,
		gas:    gas,
		logger: log,
	}
}

// LatestHead returns the most recent chain head.
func (s *ChainService) LatestHead(ctx context.Context) (*domain.Head, error) {
	return s.heads.LatestHead(ctx)
}

// SubscribeHeads starts streaming new heads.
func (s *ChainService) SubscribeHeads(ctx context.Context) (<-chan *domain.Head, error) {
	return s.heads.Subscribe(ctx)
}

// ConnectionStatus reports the node connection state.
func (s *ChainService) ConnectionStatus() domain.ConnectionStatus {
	return s.heads.Status()
}

// GasPrice returns the current suggested gas price.
func (s *ChainService) GasPrice(ctx context.Context) (*domain.GasPrice, error) {
	return s.gas.SuggestGasPrice(ctx)
}

// PlanGasLimit sums the heuristic gas figures for every operation in a
// transaction plan.
func PlanGasLimit(plan *txplan.Plan) uint64 {
	total := uint64(baseTxGas)
	for _, op := range plan.Ops() {
		if g, ok := opGasHeuristics[op.Kind]; ok {
			total += g
		} else {
			total += defaultOpGas
		}
	}
	return total
}

// EstimatePlanCost prices a transaction plan at the current suggested gas
// price.
func (s *ChainService) EstimatePlanCost(ctx context.Context, plan *txplan.Plan) (*domain.UnitCost, error) {
	limit := PlanGasLimit(plan)

	cost, err := s.gas.QuoteUnitCost(ctx, limit)
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "plan cost estimated",
		"ops", len(plan.Ops()),
		"gas_limit", limit,
		"gas_price_gwei", cost.Price.Gwei().String(),
		"total_eth", cost.TotalEth().String())

	return cost, nil
}

// Close releases the head subscription.
func (s *ChainService) Close() error {
	return s.heads.Close()
}
