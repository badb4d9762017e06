// Package httpclient provides an instrumented HTTP client with OTEL
// tracing and metrics, used by the aggregator and price-feed adapters.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultKeepAlive       = 10 * time.Second
	defaultMaxConnsPerHost = 5
	defaultIdleConnTimeout = 2 * time.Minute
)

// Options configures a Client.
type Options struct {
	// Provider names the upstream service in metrics and spans.
	Provider string
	BaseURL  string
	Timeout  time.Duration
	// Headers are sent with every request (e.g. API keys).
	Headers map[string]string
	// Transport overrides the default pooled transport when set.
	Transport http.RoundTripper
}

// Client is a JSON-oriented HTTP client. Every request runs through an
// otelhttp transport and increments a per-provider counter.
type Client struct {
	http     *http.Client
	baseURL  string
	provider string
	headers  map[string]string
	tracer   trace.Tracer
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// New creates a Client. Zero-value options get sane defaults.
func New(opts Options) (*Client, error) {
	provider := opts.Provider
	if provider == "" {
		provider = "default"
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			DialContext: (&net.Dialer{
				KeepAlive: defaultKeepAlive,
			}).DialContext,
			MaxConnsPerHost: defaultMaxConnsPerHost,
			IdleConnTimeout: defaultIdleConnTimeout,
		}
	}

	meter := otel.GetMeterProvider().Meter("internal/httpclient",
		metric.WithInstrumentationAttributes(attribute.String("provider", provider)))

	requests, err := meter.Int64Counter("http_client_requests_total",
		metric.WithDescription("HTTP requests issued, by provider and outcome"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("http_client_request_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(transport,
				otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
					return otelhttptrace.NewClientTrace(ctx)
				})),
		},
		baseURL:  opts.BaseURL,
		provider: provider,
		headers:  opts.Headers,
		tracer:   otel.Tracer("internal/httpclient"),
		requests: requests,
		latency:  latency,
	}, nil
}

// R starts a request against the client's base URL.
func (c *Client) R() *Request {
	headers := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		headers[k] = v
	}
	return &Request{client: c, headers: headers}
}

// Do executes a prepared http.Request on the instrumented transport.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.http.Do(req.WithContext(ctx))
}

func (c *Client) record(ctx context.Context, start time.Time, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("provider", c.provider),
		attribute.Bool("success", success),
	)
	c.requests.Add(ctx, 1, attrs)
	c.latency.Record(ctx, time.Since(start).Seconds(), attrs)
}
