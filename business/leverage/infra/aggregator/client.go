// Package aggregator implements the swap port against a 1inch-style
// aggregation API: /quote for read-only rate snapshots, /swap for router
// calldata. Requests are rate limited and run through a circuit breaker.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/curg-13/levkit/business/leverage/app"
	"github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/circuitbreaker"
	"github.com/curg-13/levkit/internal/httpclient"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/ratelimit"
	"github.com/curg-13/levkit/internal/txplan"
)

const sourceName = "1inch"

// Ensure Client implements the swap port.
var _ app.SwapAggregator = (*Client)(nil)

// Config configures the aggregator client. BaseURL already includes the
// chain segment (e.g. .../swap/v6.0/1).
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

type clientMetrics struct {
	quotes    metric.Int64Counter
	swaps     metric.Int64Counter
	apiErrors metric.Int64Counter
}

// Client talks to the aggregation API.
type Client struct {
	http    *httpclient.Client
	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[*httpclient.Response]
	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *clientMetrics
}

// New creates the aggregator client.
func New(cfg Config, log logger.LoggerInterface) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("aggregator base URL is required"))
	}

	headers := map[string]string{"Accept": "application/json"}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	httpc, err := httpclient.New(httpclient.Options{
		Provider: sourceName,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
		Headers:  headers,
	})
	if err != nil {
		return nil, err
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	c := &Client{
		http:    httpc,
		limiter: ratelimit.New(rps, cfg.Burst),
		cb:      circuitbreaker.New[*httpclient.Response](circuitbreaker.DefaultConfig("aggregator-api")),
		logger:  log,
		tracer:  otel.Tracer("aggregator"),
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter("aggregator")
	var err error

	c.metrics = &clientMetrics{}
	c.metrics.quotes, err = meter.Int64Counter(
		"aggregator_quotes_total",
		metric.WithDescription("Quote requests issued"),
	)
	if err != nil {
		return err
	}
	c.metrics.swaps, err = meter.Int64Counter(
		"aggregator_swaps_total",
		metric.WithDescription("Swap calldata requests issued"),
	)
	if err != nil {
		return err
	}
	c.metrics.apiErrors, err = meter.Int64Counter(
		"aggregator_api_errors_total",
		metric.WithDescription("API error responses, by status"),
	)
	return err
}

// Quote returns rate snapshots for swapping amountInRaw of in into out. An
// empty route list surfaces as a no-route error, never an empty slice.
func (c *Client) Quote(ctx context.Context, in, out *asset.Asset, amountInRaw *big.Int) ([]domain.SwapQuote, error) {
	if amountInRaw == nil || amountInRaw.Sign() <= 0 {
		return nil, apperror.Validation(apperror.CodeInvalidParameter, "quote amount must be positive")
	}
	if in.Equals(out) {
		return nil, apperror.Validation(apperror.CodeInvalidParameter, "quote assets must differ")
	}

	ctx, span := c.tracer.Start(ctx, "aggregator.quote", trace.WithAttributes(
		attribute.String("in", in.Symbol()),
		attribute.String("out", out.Symbol()),
		attribute.String("amount_raw", amountInRaw.String()),
	))
	defer span.End()

	c.metrics.quotes.Add(ctx, 1)

	resp, err := c.get(ctx, "/quote", map[string]string{
		"src":    in.Address().Hex(),
		"dst":    out.Address().Hex(),
		"amount": amountInRaw.String(),
	})
	if err != nil {
		return nil, err
	}

	var qr quoteResponse
	if err := json.Unmarshal(resp.Bytes(), &qr); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidQuote, "malformed quote response")
	}
	dstRaw, ok := new(big.Int).SetString(qr.DstAmount, 10)
	if !ok || dstRaw.Sign() < 0 {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("dstAmount %q", qr.DstAmount)))
	}
	if dstRaw.Sign() == 0 {
		return nil, apperror.New(apperror.CodeNoRoute,
			apperror.WithContext(fmt.Sprintf("%s -> %s", in.Symbol(), out.Symbol())))
	}

	return []domain.SwapQuote{{
		In:     asset.NewAmount(in, amountInRaw),
		Out:    asset.NewAmount(out, dstRaw),
		Source: sourceName,
	}}, nil
}

// Swap fetches router calldata for the quoted trade and appends the swap op.
// The output floor is quote output reduced by slippageBps; the router
// reverts below it at execution.
func (c *Client) Swap(ctx context.Context, b *txplan.Builder, quote domain.SwapQuote, coin txplan.Coin, slippageBps int64) (txplan.Coin, error) {
	if !coin.Valid() {
		return txplan.Coin{}, apperror.New(apperror.CodeInvalidState,
			apperror.WithMessage("swap requires a coin produced earlier in the plan"))
	}
	if !coin.Asset().Equals(quote.In.Asset()) {
		return txplan.Coin{}, apperror.Validation(apperror.CodeInvalidParameter,
			fmt.Sprintf("coin asset %s does not match quote input %s",
				coin.Asset().Symbol(), quote.In.Asset().Symbol()))
	}
	if slippageBps < 0 || slippageBps > 5000 {
		return txplan.Coin{}, apperror.Validation(apperror.CodeInvalidParameter,
			fmt.Sprintf("slippage %d bps out of range", slippageBps))
	}

	ctx, span := c.tracer.Start(ctx, "aggregator.swap", trace.WithAttributes(
		attribute.String("in", quote.In.Asset().Symbol()),
		attribute.String("out", quote.Out.Asset().Symbol()),
		attribute.Int64("slippage_bps", slippageBps),
	))
	defer span.End()

	c.metrics.swaps.Add(ctx, 1)

	resp, err := c.get(ctx, "/swap", map[string]string{
		"src":             quote.In.Asset().Address().Hex(),
		"dst":             quote.Out.Asset().Address().Hex(),
		"amount":          quote.In.Raw().String(),
		"from":            b.Sender().Hex(),
		"slippage":        strconv.FormatFloat(float64(slippageBps)/100, 'f', -1, 64),
		"disableEstimate": "true",
	})
	if err != nil {
		return txplan.Coin{}, err
	}

	var sr swapResponse
	if err := json.Unmarshal(resp.Bytes(), &sr); err != nil {
		return txplan.Coin{}, apperror.Wrap(err, apperror.CodeInvalidQuote, "malformed swap response")
	}
	if sr.Tx.To == "" || sr.Tx.Data == "" {
		return txplan.Coin{}, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithMessage("swap response missing router transaction"))
	}

	minOut := asset.WithSlippageFloor(quote.Out.Raw(), slippageBps)
	if err := b.Append(txplan.KindSwap,
		fmt.Sprintf("swap %s for %s via %s", quote.In, quote.Out.Asset().Symbol(), quote.Source),
		SwapCall{
			Target:    common.HexToAddress(sr.Tx.To),
			Data:      common.FromHex(sr.Tx.Data),
			MinOutRaw: minOut,
		}); err != nil {
		return txplan.Coin{}, err
	}
	return b.NewCoin(quote.Out.Asset()), nil
}

// get runs one rate-limited GET through the circuit breaker and maps error
// responses to domain errors.
func (c *Client) get(ctx context.Context, path string, query map[string]string) (*httpclient.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeRateLimitExceeded, "waiting for request slot")
	}

	resp, err := c.cb.Execute(func() (*httpclient.Response, error) {
		req := c.http.R()
		for k, v := range query {
			req.Query(k, v)
		}
		// Only 5xx counts as a breaker failure; 4xx is a routing answer.
		req.OnError(func(status int, _ []byte) error {
			if status >= http.StatusInternalServerError {
				return apperror.New(apperror.CodeAggregatorAPIError,
					apperror.WithContext(fmt.Sprintf("status %d", status)))
			}
			return nil
		})
		return req.Get(ctx, path)
	})
	if err != nil {
		c.metrics.apiErrors.Add(ctx, 1)
		if circuitbreaker.IsOpen(err) {
			return nil, apperror.New(apperror.CodeCircuitOpen,
				apperror.WithCause(err),
				apperror.WithContext("aggregator-api"))
		}
		if apperror.IsCode(err, apperror.CodeAggregatorAPIError) {
			return nil, err
		}
		return nil, apperror.Wrap(err, apperror.CodeAggregatorAPIError, path)
	}

	if resp.IsError() {
		c.metrics.apiErrors.Add(ctx, 1)
		var ae apiError
		_ = json.Unmarshal(resp.Bytes(), &ae)
		if resp.StatusCode == http.StatusBadRequest {
			return nil, apperror.New(apperror.CodeNoRoute,
				apperror.WithMessage(ae.Description),
				apperror.WithContext(path))
		}
		return nil, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithMessage(ae.Description),
			apperror.WithContext(fmt.Sprintf("%s status %d", path, resp.StatusCode)))
	}
	return resp, nil
}
