// Package metrics bootstraps the global OpenTelemetry meter provider with
// a Prometheus reader and, optionally, an OTLP push exporter.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// Options configures metric export.
type Options struct {
	ServiceName string
	// Prometheus enables the pull-based reader served by Serve.
	Prometheus bool
	// OTLPEndpoint enables periodic push export when non-empty.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool
}

// MeterProvider is the shutdown handle for the installed provider.
type MeterProvider interface {
	Shutdown(ctx context.Context) error
}

// NewMeterProvider builds the readers, installs the global provider and
// returns the shutdown handle.
func NewMeterProvider(ctx context.Context, opts Options) (MeterProvider, error) {
	var readers []sdkmetric.Reader

	if opts.Prometheus {
		exp, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("metrics: prometheus exporter: %w", err)
		}
		readers = append(readers, exp)
	}

	if opts.OTLPEndpoint != "" {
		grpcOpts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpointURL(opts.OTLPEndpoint),
			otlpmetricgrpc.WithHeaders(opts.OTLPHeaders),
		}
		if opts.OTLPInsecure {
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, fmt.Errorf("metrics: otlp exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp))
	}

	providerOpts := []sdkmetric.Option{
		sdkmetric.WithResource(
			resource.NewSchemaless(semconv.ServiceNameKey.String(opts.ServiceName)),
		),
	}
	for _, r := range readers {
		providerOpts = append(providerOpts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// Serve exposes /metrics on the port until the context ends.
func Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
