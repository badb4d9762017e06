// Package apm bootstraps the global OpenTelemetry trace provider from
// configuration and hands back a handle for shutdown.
package apm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// Provider selects the span exporter.
type Provider string

const (
	ProviderOTLPGRPC Provider = "otlp-grpc"
	ProviderOTLPHTTP Provider = "otlp-http"
	ProviderZipkin   Provider = "zipkin"
	ProviderConsole  Provider = "console"
	ProviderNone     Provider = "none"
)

// Options configures trace export.
type Options struct {
	ServiceName string
	Environment string
	Provider    Provider
	Endpoint    string
	// Headers is a comma-separated "key=value" list, e.g. API keys for a
	// hosted collector.
	Headers string
}

// TraceProvider is the shutdown handle for the installed provider.
type TraceProvider interface {
	Stop() error
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type noopProvider struct{}

func (noopProvider) Stop() error { return nil }

// NewTraceProvider builds the exporter, installs the global provider and
// propagators, and returns the shutdown handle. ProviderNone installs
// nothing and returns a no-op handle.
func NewTraceProvider(ctx context.Context, opts Options) (TraceProvider, error) {
	if opts.Provider == ProviderNone || opts.Provider == "" {
		return noopProvider{}, nil
	}

	exp, err := newExporter(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("apm: create exporter: %w", err)
	}

	rsrc, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(opts.ServiceName),
			attribute.String("deployment.environment", opts.Environment),
		))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(rsrc),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	return &traceProvider{tp: tp}, nil
}

func newExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	switch opts.Provider {
	case ProviderOTLPGRPC:
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpointURL(opts.Endpoint),
			otlptracegrpc.WithHeaders(parseHeaders(opts.Headers)),
		)
	case ProviderOTLPHTTP:
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(opts.Endpoint),
			otlptracehttp.WithHeaders(parseHeaders(opts.Headers)),
		)
	case ProviderZipkin:
		return zipkin.New(opts.Endpoint)
	case ProviderConsole:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("apm: unknown provider %q", opts.Provider)
	}
}

// parseHeaders splits "k1=v1,k2=v2" into a map, skipping malformed pairs.
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			continue
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers
}

func (p *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(ctx)
}
