// Package observability wires OpenTelemetry traces and metrics for the
// decision engine. With telemetry disabled every method is a cheap no-op
// against the global (noop) providers.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "landguard"

// Config configures the providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // host:port of an OTLP gRPC collector
	Insecure       bool
	SampleRate     float64
	Enabled        bool
}

// DefaultConfig is disabled; the server enables it from OTEL_ENABLED.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "landguard",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// Provider owns the trace and metric pipelines.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	logger         *slog.Logger

	operations metric.Int64Counter
	errors     metric.Int64Counter
	duration   metric.Float64Histogram
	decisions  metric.Int64Counter
	riskScores metric.Int64Histogram
}

// New builds a provider. A disabled config installs nothing globally.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{config: cfg, logger: slog.Default().With("component", "observability")}

	if cfg.Enabled {
		res, err := resource.New(ctx,
			resource.WithFromEnv(),
			resource.WithAttributes(
				semconv.ServiceName(cfg.ServiceName),
				semconv.ServiceVersion(cfg.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("observability: resource: %w", err)
		}
		if err := p.initTraces(ctx, res); err != nil {
			return nil, err
		}
		if err := p.initMetrics(ctx, res); err != nil {
			return nil, err
		}
		p.logger.InfoContext(ctx, "observability initialized",
			"endpoint", cfg.OTLPEndpoint, "sample_rate", cfg.SampleRate)
	}

	p.tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	if err := p.initInstruments(otel.Meter(instrumentationName)); err != nil {
		return nil, fmt.Errorf("observability: instruments: %w", err)
	}
	return p, nil
}

func (p *Provider) initTraces(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("observability: trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetrics(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("observability: metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments(meter metric.Meter) error {
	var err error
	if p.operations, err = meter.Int64Counter("landguard.operations.total",
		metric.WithDescription("Engine operations started"), metric.WithUnit("{operation}")); err != nil {
		return err
	}
	if p.errors, err = meter.Int64Counter("landguard.errors.total",
		metric.WithDescription("Engine operations that failed"), metric.WithUnit("{error}")); err != nil {
		return err
	}
	if p.duration, err = meter.Float64Histogram("landguard.operation.duration",
		metric.WithDescription("Engine operation latency"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5)); err != nil {
		return err
	}
	if p.decisions, err = meter.Int64Counter("landguard.decisions.total",
		metric.WithDescription("Compliance verdicts committed to the ledger"), metric.WithUnit("{decision}")); err != nil {
		return err
	}
	p.riskScores, err = meter.Int64Histogram("landguard.risk.score",
		metric.WithDescription("Risk scores assigned"),
		metric.WithExplicitBucketBoundaries(30, 70, 100))
	return err
}

// Shutdown flushes and stops the pipelines.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "metric provider shutdown", "error", err)
		}
	}
	return nil
}

// Track starts a span for name and returns the function that ends it.
func (p *Provider) Track(ctx context.Context, name string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, name)
	set := metric.WithAttributes(attribute.String("operation", name))
	p.operations.Add(ctx, 1, set)

	return ctx, func(err error) {
		p.duration.Record(ctx, time.Since(start).Seconds(), set)
		if err != nil {
			span.RecordError(err)
			p.errors.Add(ctx, 1, set)
		}
		span.End()
	}
}

// RecordDecision counts a committed verdict.
func (p *Provider) RecordDecision(ctx context.Context, verdict, zone string) {
	p.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("verdict", verdict),
		attribute.String("zone", zone),
	))
}

// RecordRisk records an assessed score and its band.
func (p *Provider) RecordRisk(ctx context.Context, score int, band string) {
	p.riskScores.Record(ctx, int64(score), metric.WithAttributes(attribute.String("band", band)))
}
