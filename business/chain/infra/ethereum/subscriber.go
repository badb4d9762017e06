// Package ethereum provides node-facing adapters for the chain context.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
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

const (
	tracerName = "github.com/curg-13/levkit/business/chain/infra/ethereum"
	meterName  = "github.com/curg-13/levkit/business/chain/infra/ethereum"
)

// SubscriberConfig holds head subscriber configuration.
type SubscriberConfig struct {
	WSURL          string        // WebSocket endpoint (primary)
	HTTPURL        string        // HTTP endpoint (fallback)
	PollInterval   time.Duration // polling interval on HTTP fallback
	ReconnectDelay time.Duration // delay before reconnecting WS
	BufferSize     int           // head channel buffer size
}

// DefaultSubscriberConfig returns sensible defaults.
func DefaultSubscriberConfig(wsURL, httpURL string) SubscriberConfig {
	return SubscriberConfig{
		WSURL:          wsURL,
		HTTPURL:        httpURL,
		PollInterval:   12 * time.Second, // ~1 block time
		ReconnectDelay: 5 * time.Second,
		BufferSize:     16,
	}
}

// subscriberMetrics holds OTEL metric instruments.
type subscriberMetrics struct {
	headsReceived    metric.Int64Counter
	subscribeErrors  metric.Int64Counter
	connectionState  metric.Int64Gauge
	headLatency      metric.Float64Histogram
	httpFallbackUsed metric.Int64Counter
}

// Subscriber streams new chain heads, WebSocket primary with HTTP polling
// as fallback.
type Subscriber struct {
	config SubscriberConfig
	logger logger.LoggerInterface

	wsClient   *ethclient.Client
	httpClient *ethclient.Client
	clientMu   sync.RWMutex

	state      domain.ConnectionState
	stateMu    sync.RWMutex
	usingHTTP  atomic.Bool
	lastHead   atomic.Uint64
	reconnects atomic.Int32

	heads   chan *domain.Head
	done    chan struct{}
	closeMu sync.Mutex
	closed  atomic.Bool

	wsCB   *circuitbreaker.CircuitBreaker[*types.Header]
	httpCB *circuitbreaker.CircuitBreaker[*types.Header]

	tracer  trace.Tracer
	metrics *subscriberMetrics
}

// NewSubscriber creates a head subscriber.
func NewSubscriber(cfg SubscriberConfig, log logger.LoggerInterface) (*Subscriber, error) {
	s := &Subscriber{
		config: cfg,
		logger: log,
		state:  domain.StateDisconnected,
		heads:  make(chan *domain.Head, cfg.BufferSize),
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	s.initCircuitBreakers()

	return s, nil
}

func (s *Subscriber) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &subscriberMetrics{}

	s.metrics.headsReceived, err = meter.Int64Counter(
		"chain_heads_received_total",
		metric.WithDescription("Chain heads received"),
		metric.WithUnit("{head}"),
	)
	if err != nil {
		return err
	}

	s.metrics.subscribeErrors, err = meter.Int64Counter(
		"chain_subscribe_errors_total",
		metric.WithDescription("Head subscription errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.connectionState, err = meter.Int64Gauge(
		"chain_connection_state",
		metric.WithDescription("Node connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	s.metrics.headLatency, err = meter.Float64Histogram(
		"chain_head_latency_ms",
		metric.WithDescription("Latency from head timestamp to receipt"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	s.metrics.httpFallbackUsed, err = meter.Int64Counter(
		"chain_http_fallback_total",
		metric.WithDescription("Times HTTP fallback was used"),
		metric.WithUnit("{fallback}"),
	)
	return err
}

func (s *Subscriber) initCircuitBreakers() {
	logState := func(name string, from, to gobreaker.State) {
		s.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}

	wsCfg := circuitbreaker.DefaultConfig("chain-ws")
	wsCfg.OnStateChange = logState
	s.wsCB = circuitbreaker.New[*types.Header](wsCfg)

	httpCfg := circuitbreaker.DefaultConfig("chain-http")
	httpCfg.OnStateChange = logState
	s.httpCB = circuitbreaker.New[*types.Header](httpCfg)
}

// Subscribe starts listening for new heads and returns the head channel.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan *domain.Head, error) {
	ctx, span := s.tracer.Start(ctx, "chain.subscribe",
		trace.WithAttributes(
			attribute.String("ws_url", s.config.WSURL),
			attribute.String("http_url", s.config.HTTPURL),
		),
	)
	defer span.End()

	if s.closed.Load() {
		err := errors.New("subscriber is closed")
		span.RecordError(err)
		return nil, err
	}

	s.setState(domain.StateConnecting)

	if err := s.connectWS(ctx); err != nil {
		s.logger.Warn(ctx, "ws connection failed, trying http fallback", "error", err)
		span.AddEvent("ws_failed_trying_http")

		if err := s.connectHTTP(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "both connections failed")
			s.setState(domain.StateDisconnected)
			return nil, apperror.New(apperror.CodeRPCConnectionFailed,
				apperror.WithCause(err),
				apperror.WithContext("failed to connect via WS and HTTP"))
		}

		s.usingHTTP.Store(true)
		go s.runHTTPPoller(ctx)
	} else {
		go s.runWSSubscription(ctx)
	}

	s.setState(domain.StateConnected)
	span.SetStatus(codes.Ok, "subscribed")

	return s.heads, nil
}

func (s *Subscriber) connectWS(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "chain.connect.ws",
		trace.WithAttributes(attribute.String("url", s.config.WSURL)))
	defer span.End()

	if s.config.WSURL == "" {
		return errors.New("ws url not configured")
	}

	client, err := ethclient.DialContext(ctx, s.config.WSURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return fmt.Errorf("dial ws: %w", err)
	}

	s.clientMu.Lock()
	s.wsClient = client
	s.clientMu.Unlock()

	span.SetStatus(codes.Ok, "connected")
	return nil
}

func (s *Subscriber) connectHTTP(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "chain.connect.http",
		trace.WithAttributes(attribute.String("url", s.config.HTTPURL)))
	defer span.End()

	if s.config.HTTPURL == "" {
		return errors.New("http url not configured")
	}

	client, err := ethclient.DialContext(ctx, s.config.HTTPURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return fmt.Errorf("dial http: %w", err)
	}

	s.clientMu.Lock()
	s.httpClient = client
	s.clientMu.Unlock()

	span.SetStatus(codes.Ok, "connected")
	return nil
}

func (s *Subscriber) runWSSubscription(ctx context.Context) {
	headers := make(chan *types.Header, s.config.BufferSize)

	select {
	case <-s.done:
		return
	case <-ctx.Done():
		return
	default:
	}

	s.clientMu.RLock()
	client := s.wsClient
	s.clientMu.RUnlock()

	if client == nil {
		s.handleWSDisconnect(ctx)
		return
	}

	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		s.logger.Error(ctx, "subscribe new head failed", "error", err)
		s.metrics.subscribeErrors.Add(ctx, 1)
		s.handleWSDisconnect(ctx)
		return
	}

	s.logger.Info(ctx, "subscribed to new heads via ws")
	s.processWSHeaders(ctx, headers, sub)

	sub.Unsubscribe()
	s.handleWSDisconnect(ctx)
}

func (s *Subscriber) processWSHeaders(ctx context.Context, headers <-chan *types.Header, sub interface{ Err() <-chan error }) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				s.logger.Error(ctx, "subscription error", "error", err)
				s.metrics.subscribeErrors.Add(ctx, 1)
			}
			return
		case header := <-headers:
			if header == nil {
				continue
			}
			s.emitHeader(ctx, header, false)
		}
	}
}

// handleWSDisconnect retries the WebSocket once, then falls back to HTTP
// polling.
func (s *Subscriber) handleWSDisconnect(ctx context.Context) {
	if s.closed.Load() {
		return
	}

	s.setState(domain.StateReconnecting)
	s.reconnects.Add(1)

	time.Sleep(s.config.ReconnectDelay)

	if s.closed.Load() {
		return
	}

	if err := s.connectWS(ctx); err != nil {
		s.logger.Warn(ctx, "ws reconnect failed, switching to http", "error", err)

		s.clientMu.RLock()
		haveHTTP := s.httpClient != nil
		s.clientMu.RUnlock()
		if !haveHTTP {
			if err := s.connectHTTP(ctx); err != nil {
				s.logger.Error(ctx, "http fallback connection failed", "error", err)
				s.setState(domain.StateDisconnected)
				return
			}
		}

		s.usingHTTP.Store(true)
		s.metrics.httpFallbackUsed.Add(ctx, 1)
		s.setState(domain.StateConnected)
		go s.runHTTPPoller(ctx)
		return
	}

	s.usingHTTP.Store(false)
	s.setState(domain.StateConnected)
	go s.runWSSubscription(ctx)
}

func (s *Subscriber) runHTTPPoller(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, "starting http polling fallback", "interval", s.config.PollInterval)

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollLatestHead(ctx)
		}
	}
}

func (s *Subscriber) pollLatestHead(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "chain.poll.head")
	defer span.End()

	s.clientMu.RLock()
	client := s.httpClient
	s.clientMu.RUnlock()

	if client == nil {
		span.AddEvent("no_http_client")
		return
	}

	header, err := s.httpCB.Execute(func() (*types.Header, error) {
		return client.HeaderByNumber(ctx, nil) // nil = latest
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Error(ctx, "http poll failed", "error", err)
		s.metrics.subscribeErrors.Add(ctx, 1)
		return
	}

	if header.Number.Uint64() <= s.lastHead.Load() {
		span.AddEvent("duplicate_head")
		return
	}

	s.emitHeader(ctx, header, true)
	span.SetStatus(codes.Ok, "polled")
}

// emitHeader converts and emits a head, dropping it if the buffer is full.
func (s *Subscriber) emitHeader(ctx context.Context, header *types.Header, fromHTTP bool) {
	ctx, span := s.tracer.Start(ctx, "chain.process.header",
		trace.WithAttributes(
			attribute.Int64("head_number", int64(header.Number.Uint64())),
			attribute.Bool("from_http", fromHTTP),
		),
	)
	defer span.End()

	head := headerToHead(header)

	latency := time.Since(head.Timestamp)
	s.metrics.headLatency.Record(ctx, float64(latency.Milliseconds()))

	s.lastHead.Store(head.Number)

	select {
	case s.heads <- head:
		s.metrics.headsReceived.Add(ctx, 1)
		s.logger.Debug(ctx, "head received",
			"number", head.Number,
			"latency_ms", latency.Milliseconds())
	default:
		span.AddEvent("head_dropped_buffer_full")
		s.logger.Warn(ctx, "head dropped, buffer full", "number", head.Number)
	}

	span.SetStatus(codes.Ok, "processed")
}

func headerToHead(header *types.Header) *domain.Head {
	return &domain.Head{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Time), 0),
		GasLimit:   header.GasLimit,
		GasUsed:    header.GasUsed,
		BaseFee:    header.BaseFee,
	}
}

// LatestHead retrieves the most recent head on demand.
func (s *Subscriber) LatestHead(ctx context.Context) (*domain.Head, error) {
	ctx, span := s.tracer.Start(ctx, "chain.latest_head")
	defer span.End()

	s.clientMu.RLock()
	wsClient := s.wsClient
	httpClient := s.httpClient
	s.clientMu.RUnlock()

	var header *types.Header
	var err error

	if wsClient != nil && !s.usingHTTP.Load() {
		header, err = s.wsCB.Execute(func() (*types.Header, error) {
			return wsClient.HeaderByNumber(ctx, nil)
		})
	}

	if header == nil && httpClient != nil {
		header, err = s.httpCB.Execute(func() (*types.Header, error) {
			return httpClient.HeaderByNumber(ctx, nil)
		})
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.New(apperror.CodeRPCError,
			apperror.WithCause(err),
			apperror.WithContext("failed to fetch latest head"))
	}

	if header == nil {
		return nil, apperror.New(apperror.CodeRPCConnectionFailed,
			apperror.WithContext("no ethereum client connected"))
	}

	span.SetStatus(codes.Ok, "fetched")
	return headerToHead(header), nil
}

// State returns the current connection state.
func (s *Subscriber) State() domain.ConnectionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Status returns detailed connection status.
func (s *Subscriber) Status() domain.ConnectionStatus {
	return domain.ConnectionStatus{
		State:      s.State(),
		LastHead:   s.lastHead.Load(),
		LastUpdate: time.Now(),
		Reconnects: int(s.reconnects.Load()),
		UsingHTTP:  s.usingHTTP.Load(),
	}
}

// Close gracefully closes the subscriber.
func (s *Subscriber) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed.Load() {
		return nil
	}

	s.logger.Info(context.Background(), "closing head subscriber")

	s.closed.Store(true)
	close(s.done)

	s.clientMu.Lock()
	if s.wsClient != nil {
		s.wsClient.Close()
		s.wsClient = nil
	}
	if s.httpClient != nil {
		s.httpClient.Close()
		s.httpClient = nil
	}
	s.clientMu.Unlock()

	close(s.heads)
	s.setState(domain.StateDisconnected)

	return nil
}

func (s *Subscriber) setState(state domain.ConnectionState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()

	stateValue := int64(0)
	switch state {
	case domain.StateDisconnected:
		stateValue = 0
	case domain.StateConnecting:
		stateValue = 1
	case domain.StateConnected:
		stateValue = 2
	case domain.StateReconnecting:
		stateValue = 3
	}

	s.metrics.connectionState.Record(context.Background(), stateValue)
}
