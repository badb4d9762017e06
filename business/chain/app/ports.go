package app

import (
	"context"
	"math/big"

	geth "github.com/ethereum/go-ethereum"

	"github.com/curg-13/levkit/business/chain/domain"
)

// HeadSource streams and fetches chain heads.
type HeadSource interface {
	Subscribe(ctx context.Context) (<-chan *domain.Head, error)
	LatestHead(ctx context.Context) (*domain.Head, error)
	Status() domain.ConnectionStatus
	Close() error
}

// GasEstimator suggests gas prices and estimates execution cost.
type GasEstimator interface {
	SuggestGasPrice(ctx context.Context) (*domain.GasPrice, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error)
	QuoteUnitCost(ctx context.Context, gasLimit uint64) (*domain.UnitCost, error)
}
