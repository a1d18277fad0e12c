package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Config selects exporters.
type Config struct {
	ServiceName    string
	Component      string // "bot" or "worker"
	MetricsEnabled bool
	OTLPEndpoint   string // empty disables tracing
	OTLPInsecure   bool
}

// Provider bundles the meter and tracer providers and the /metrics handler.
type Provider struct {
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	// Handler serves Prometheus metrics; nil when metrics are disabled.
	Handler  http.Handler
	shutdown []func(context.Context) error
}

// Setup builds providers and installs them as the otel globals.
func Setup(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("steve.component", cfg.Component),
		),
	)
	if err != nil {
		return nil, err
	}

	p := &Provider{}
	if err := p.initMetrics(cfg, res, logger); err != nil {
		return nil, err
	}
	if err := p.initTracer(ctx, cfg, res, logger); err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	otel.SetMeterProvider(p.MeterProvider)
	otel.SetTracerProvider(p.TracerProvider)
	return p, nil
}

func (p *Provider) initMetrics(cfg Config, res *resource.Resource, logger *zap.Logger) error {
	if !cfg.MetricsEnabled {
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		p.MeterProvider = mp
		p.shutdown = append(p.shutdown, mp.Shutdown)
		return nil
	}
	// A private registry keeps repeated Setup calls (tests, botctl) from
	// colliding on the default registerer.
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", zap.Error(err))
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		p.MeterProvider = mp
		p.shutdown = append(p.shutdown, mp.Shutdown)
		return nil
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	p.MeterProvider = mp
	p.Handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	p.shutdown = append(p.shutdown, mp.Shutdown)
	logger.Info("metrics initialized", zap.String("exporter", "prometheus"))
	return nil
}

func (p *Provider) initTracer(ctx context.Context, cfg Config, res *resource.Resource, logger *zap.Logger) error {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" {
		p.TracerProvider = tracenoop.NewTracerProvider()
		return nil
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	p.TracerProvider = tp
	p.shutdown = append(p.shutdown, tp.Shutdown)
	logger.Info("tracing initialized", zap.String("exporter", "otlp"), zap.String("endpoint", endpoint))
	return nil
}

// Shutdown flushes and stops every provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	return errors.Join(errs...)
}
