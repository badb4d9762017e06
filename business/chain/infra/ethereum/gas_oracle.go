package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/curg-13/levkit/business/chain/domain"
	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/circuitbreaker"
	"github.com/curg-13/levkit/internal/logger"
)

// GasOracleConfig holds gas oracle configuration.
type GasOracleConfig struct {
	CacheTTL        time.Duration // how long a suggested price stays fresh
	MaxGasPrice     *big.Int      // clamp for suggested prices, in wei
	DefaultGasLimit uint64        // fallback when estimation fails
}

// DefaultGasOracleConfig returns sensible defaults.
func DefaultGasOracleConfig() GasOracleConfig {
	return GasOracleConfig{
		CacheTTL:        12 * time.Second, // ~1 block
		MaxGasPrice:     new(big.Int).Mul(big.NewInt(500), big.NewInt(1e9)), // 500 gwei
		DefaultGasLimit: 500_000,
	}
}

type gasOracleMetrics struct {
	priceQueries metric.Int64Counter
	cacheHits    metric.Int64Counter
	estimations  metric.Int64Counter
	queryErrors  metric.Int64Counter
}

// GasOracle suggests gas prices and estimates call gas against a node,
// caching suggestions for one block.
type GasOracle struct {
	config GasOracleConfig
	client *ethclient.Client
	logger logger.LoggerInterface

	cachedPrice *domain.GasPrice
	cacheMu     sync.RWMutex

	cb *circuitbreaker.CircuitBreaker[*big.Int]

	tracer  trace.Tracer
	metrics *gasOracleMetrics
}

// NewGasOracle creates a gas oracle backed by the given client.
func NewGasOracle(client *ethclient.Client, cfg GasOracleConfig, log logger.LoggerInterface) (*GasOracle, error) {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 12 * time.Second
	}
	if cfg.DefaultGasLimit == 0 {
		cfg.DefaultGasLimit = 500_000
	}

	o := &GasOracle{
		config: cfg,
		client: client,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}

	if err := o.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	cbCfg := circuitbreaker.DefaultConfig("gas-oracle")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	o.cb = circuitbreaker.New[*big.Int](cbCfg)

	return o, nil
}

func (o *GasOracle) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	o.metrics = &gasOracleMetrics{}

	o.metrics.priceQueries, err = meter.Int64Counter(
		"chain_gas_price_queries_total",
		metric.WithDescription("Gas price queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return err
	}

	o.metrics.cacheHits, err = meter.Int64Counter(
		"chain_gas_price_cache_hits_total",
		metric.WithDescription("Gas price cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	o.metrics.estimations, err = meter.Int64Counter(
		"chain_gas_estimations_total",
		metric.WithDescription("Gas limit estimations"),
		metric.WithUnit("{estimation}"),
	)
	if err != nil {
		return err
	}

	o.metrics.queryErrors, err = meter.Int64Counter(
		"chain_gas_query_errors_total",
		metric.WithDescription("Gas oracle query errors"),
		metric.WithUnit("{error}"),
	)
	return err
}

// SuggestGasPrice returns a gas price suggestion, clamped to the configured
// maximum. A fresh cached value is reused to avoid hammering the node.
func (o *GasOracle) SuggestGasPrice(ctx context.Context) (*domain.GasPrice, error) {
	ctx, span := o.tracer.Start(ctx, "chain.gas.suggest_price")
	defer span.End()

	o.metrics.priceQueries.Add(ctx, 1)

	if cached := o.freshCachedPrice(); cached != nil {
		o.metrics.cacheHits.Add(ctx, 1)
		span.AddEvent("cache_hit")
		span.SetStatus(codes.Ok, "cached")
		return cached, nil
	}

	wei, err := o.cb.Execute(func() (*big.Int, error) {
		return o.client.SuggestGasPrice(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "suggestion failed")
		o.metrics.queryErrors.Add(ctx, 1)

		if circuitbreaker.IsOpen(err) {
			return nil, apperror.New(apperror.CodeCircuitOpen,
				apperror.WithCause(err),
				apperror.WithContext("gas oracle circuit open"))
		}
		return nil, apperror.New(apperror.CodeRPCError,
			apperror.WithCause(err),
			apperror.WithContext("failed to suggest gas price"))
	}

	if o.config.MaxGasPrice != nil && wei.Cmp(o.config.MaxGasPrice) > 0 {
		o.logger.Warn(ctx, "suggested gas price exceeds maximum, clamping",
			"suggested_wei", wei.String(),
			"max_wei", o.config.MaxGasPrice.String())
		wei = new(big.Int).Set(o.config.MaxGasPrice)
	}

	price := domain.NewGasPrice(wei)
	o.cacheMu.Lock()
	o.cachedPrice = price
	o.cacheMu.Unlock()

	span.SetAttributes(attribute.String("gas_price_gwei", price.Gwei().String()))
	span.SetStatus(codes.Ok, "suggested")

	return price, nil
}

func (o *GasOracle) freshCachedPrice() *domain.GasPrice {
	o.cacheMu.RLock()
	defer o.cacheMu.RUnlock()

	if o.cachedPrice == nil {
		return nil
	}
	if time.Since(o.cachedPrice.ObservedAt) > o.config.CacheTTL {
		return nil
	}
	return o.cachedPrice
}

// SuggestGasTipCap returns a priority fee suggestion for EIP-1559
// transactions.
func (o *GasOracle) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	ctx, span := o.tracer.Start(ctx, "chain.gas.suggest_tip")
	defer span.End()

	tip, err := o.cb.Execute(func() (*big.Int, error) {
		return o.client.SuggestGasTipCap(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "suggestion failed")
		o.metrics.queryErrors.Add(ctx, 1)
		return nil, apperror.New(apperror.CodeRPCError,
			apperror.WithCause(err),
			apperror.WithContext("failed to suggest gas tip cap"))
	}

	span.SetStatus(codes.Ok, "suggested")
	return tip, nil
}

// EstimateGas estimates the gas limit for a call with a 10% safety margin.
// When estimation fails the configured default limit is returned instead of
// an error so planning can proceed with a conservative figure.
func (o *GasOracle) EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error) {
	ctx, span := o.tracer.Start(ctx, "chain.gas.estimate",
		trace.WithAttributes(attribute.String("to", addrString(msg))))
	defer span.End()

	o.metrics.estimations.Add(ctx, 1)

	limit, err := o.client.EstimateGas(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.AddEvent("estimation_failed_using_default")
		o.metrics.queryErrors.Add(ctx, 1)
		o.logger.Warn(ctx, "gas estimation failed, using default limit",
			"error", err,
			"default", o.config.DefaultGasLimit)
		return o.config.DefaultGasLimit, nil
	}

	withMargin := limit + limit/10

	span.SetAttributes(attribute.Int64("gas_limit", int64(withMargin)))
	span.SetStatus(codes.Ok, "estimated")

	return withMargin, nil
}

// QuoteUnitCost combines a gas limit with the current suggested price.
func (o *GasOracle) QuoteUnitCost(ctx context.Context, gasLimit uint64) (*domain.UnitCost, error) {
	price, err := o.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	if gasLimit == 0 {
		gasLimit = o.config.DefaultGasLimit
	}
	return domain.NewUnitCost(gasLimit, price), nil
}

func addrString(msg geth.CallMsg) string {
	if msg.To == nil {
		return "contract-creation"
	}
	return msg.To.Hex()
}
