// Package feed streams USD prices from an exchange's combined WebSocket
// stream, with a REST fallback for when the stream is stale or down.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/curg-13/levkit/business/pricing/domain"
	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/httpclient"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/wsconn"
)

const (
	tracerName = "feed"
	meterName  = "feed"

	tickerEndpoint = "/api/v3/ticker/price"

	// The exchange drops idle connections after 3 minutes.
	keepAliveInterval = 2 * time.Minute
)

// Config holds feed client configuration.
type Config struct {
	WebSocketURL string
	HTTPURL      string
	Symbols      []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	HTTPTimeout  time.Duration
}

// clientMetrics holds OTEL metric instruments.
type clientMetrics struct {
	messagesReceived metric.Int64Counter
	priceUpdates     metric.Int64Counter
	parseErrors      metric.Int64Counter
	httpFallbacks    metric.Int64Counter
}

// Client streams miniTicker prices and caches the latest point per symbol.
type Client struct {
	config Config
	logger logger.LoggerInterface
	http   *httpclient.Client

	conn   *wsconn.Client
	connMu sync.RWMutex

	prices   map[string]domain.PricePoint
	pricesMu sync.RWMutex

	nextID        atomic.Int64
	stopKeepAlive chan struct{}
	running       atomic.Bool

	tracer  trace.Tracer
	metrics *clientMetrics
}

// NewClient creates a feed client. Connect must be called before streamed
// prices are available; Fetch works immediately.
func NewClient(cfg Config, log logger.LoggerInterface) (*Client, error) {
	if len(cfg.Symbols) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no feed symbols configured"))
	}

	httpc, err := httpclient.New(httpclient.Options{
		Provider: "feed",
		BaseURL:  cfg.HTTPURL,
		Timeout:  cfg.HTTPTimeout,
		Headers:  map[string]string{"Accept": "application/json"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	c := &Client{
		config:        cfg,
		logger:        log,
		http:          httpc,
		prices:        make(map[string]domain.PricePoint),
		stopKeepAlive: make(chan struct{}),
		tracer:        otel.Tracer(tracerName),
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &clientMetrics{}

	c.metrics.messagesReceived, err = meter.Int64Counter(
		"feed_messages_total",
		metric.WithDescription("Total stream messages received"),
	)
	if err != nil {
		return err
	}

	c.metrics.priceUpdates, err = meter.Int64Counter(
		"feed_price_updates_total",
		metric.WithDescription("Ticker updates applied to the cache"),
	)
	if err != nil {
		return err
	}

	c.metrics.parseErrors, err = meter.Int64Counter(
		"feed_parse_errors_total",
		metric.WithDescription("Message parse errors"),
	)
	if err != nil {
		return err
	}

	c.metrics.httpFallbacks, err = meter.Int64Counter(
		"feed_http_fallbacks_total",
		metric.WithDescription("Prices served via REST fallback"),
	)
	return err
}

// Connect establishes the WebSocket connection to the combined stream.
func (c *Client) Connect(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "feed.connect",
		trace.WithAttributes(attribute.StringSlice("symbols", c.config.Symbols)))
	defer span.End()

	wsURL, err := c.buildStreamURL()
	if err != nil {
		return err
	}

	wsCfg := wsconn.DefaultConfig(wsURL, "feed")
	if c.config.ReadTimeout > 0 {
		wsCfg.ReadTimeout = c.config.ReadTimeout
	}
	if c.config.WriteTimeout > 0 {
		wsCfg.WriteTimeout = c.config.WriteTimeout
	}

	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return apperror.New(apperror.CodeFeedConnection,
			apperror.WithCause(err),
			apperror.WithContext("failed to create wsconn"))
	}

	conn.OnMessage(c.handleMessage)

	if err := conn.ConnectWithRetry(ctx); err != nil {
		return apperror.New(apperror.CodeFeedConnection,
			apperror.WithCause(err),
			apperror.WithContext("failed to connect to feed"))
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.running.Store(true)
	go c.keepAlive(ctx)

	c.logger.Info(ctx, "feed connected", "url", wsURL, "symbols", c.config.Symbols)
	return nil
}

// buildStreamURL constructs the combined miniTicker stream URL.
func (c *Client) buildStreamURL() (string, error) {
	streams := make([]string, 0, len(c.config.Symbols))
	for _, sym := range c.config.Symbols {
		streams = append(streams, MiniTickerStream(sym))
	}

	u, err := url.Parse(c.config.WebSocketURL)
	if err != nil {
		return "", apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("invalid feed websocket URL"))
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// handleMessage stores ticker updates in the price cache.
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	c.metrics.messagesReceived.Add(ctx, 1)

	var event streamEvent
	if err := json.Unmarshal(data, &event); err != nil || event.Stream == "" {
		// Might be a stream management acknowledgement.
		var resp wsResponse
		if json.Unmarshal(data, &resp) == nil && resp.ID != 0 {
			return
		}
		c.metrics.parseErrors.Add(ctx, 1)
		return
	}

	if !strings.HasSuffix(event.Stream, "@miniTicker") {
		return
	}

	var ticker miniTickerEvent
	if err := json.Unmarshal(event.Data, &ticker); err != nil {
		c.metrics.parseErrors.Add(ctx, 1)
		c.logger.Warn(ctx, "failed to parse ticker", "error", err, "stream", event.Stream)
		return
	}

	price, err := decimal.NewFromString(ticker.Close)
	if err != nil {
		c.metrics.parseErrors.Add(ctx, 1)
		return
	}

	point := domain.NewPricePoint(ticker.Symbol, price, "feed-ws")
	c.pricesMu.Lock()
	c.prices[ticker.Symbol] = point
	c.pricesMu.Unlock()

	c.metrics.priceUpdates.Add(ctx, 1)
}

// Latest returns the last streamed price for a symbol, if any.
func (c *Client) Latest(symbol string) (domain.PricePoint, bool) {
	c.pricesMu.RLock()
	defer c.pricesMu.RUnlock()
	p, ok := c.prices[symbol]
	return p, ok
}

// Fetch retrieves a fresh price over REST and refreshes the cache.
func (c *Client) Fetch(ctx context.Context, symbol string) (domain.PricePoint, error) {
	ctx, span := c.tracer.Start(ctx, "feed.fetch",
		trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	c.metrics.httpFallbacks.Add(ctx, 1)

	var result tickerResponse
	_, err := c.http.R().
		Query("symbol", symbol).
		Result(&result).
		OnError(func(status int, body []byte) error {
			return apperror.New(apperror.CodeFeedConnection,
				apperror.WithContext(fmt.Sprintf("ticker HTTP %d: %s", status, body)))
		}).
		Get(ctx, tickerEndpoint)
	if err != nil {
		span.RecordError(err)
		if apperror.IsAppError(err) {
			return domain.PricePoint{}, err
		}
		return domain.PricePoint{}, apperror.New(apperror.CodeFeedConnection,
			apperror.WithCause(err),
			apperror.WithContext("failed to fetch ticker"))
	}

	price, err := decimal.NewFromString(result.Price)
	if err != nil {
		return domain.PricePoint{}, apperror.New(apperror.CodePriceUnavailable,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("ticker price %q", result.Price)))
	}

	point := domain.NewPricePoint(symbol, price, "feed-http")
	c.pricesMu.Lock()
	c.prices[symbol] = point
	c.pricesMu.Unlock()

	c.logger.Debug(ctx, "fetched ticker via HTTP", "symbol", symbol, "price", result.Price)
	return point, nil
}

// keepAlive sends periodic stream list requests so the server keeps the
// connection open.
func (c *Client) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopKeepAlive:
			return
		case <-ticker.C:
			if !c.running.Load() {
				return
			}

			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn != nil {
				req := wsRequest{Method: "LIST_SUBSCRIPTIONS", ID: c.nextID.Add(1)}
				if err := conn.SendJSON(ctx, req); err != nil {
					c.logger.Warn(ctx, "keep-alive failed", "error", err)
				}
			}
		}
	}
}

// IsConnected reports whether the stream is up.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close shuts the stream down. Fetch keeps working after Close.
func (c *Client) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	close(c.stopKeepAlive)

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
