// Package observability provides OpenTelemetry tracing and metrics for the
// emission ledger.
//
// Spans and RED metrics (rate, errors, duration) are exported over OTLP gRPC
// when enabled; otherwise the global no-op providers are used.
package observability

import (
	"context"
	"errors"
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

const instrumentationName = "emission-ledger"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // e.g. "localhost:4317"
	SampleRate     float64       // 0.0 to 1.0
	BatchTimeout   time.Duration // span batching window
	MetricInterval time.Duration
	Enabled        bool
	Insecure       bool // plaintext gRPC (dev only)
}

// DefaultConfig returns defaults with export disabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "emission-ledger",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		MetricInterval: 15 * time.Second,
		Enabled:        false,
	}
}

// Provider manages trace and metric providers and the ledger instruments.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	recordings metric.Int64Counter
	violations metric.Int64Counter
	rejections metric.Int64Counter
	duration   metric.Float64Histogram
}

// New creates a provider. A disabled config binds the instruments to the
// global providers, which are no-ops unless the process installed others.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.DebugContext(ctx, "telemetry export disabled")
		return p, p.bind(otel.GetTracerProvider(), otel.GetMeterProvider())
	}

	res, err := ledgerResource(config)
	if err != nil {
		return nil, err
	}
	if p.tracerProvider, err = newTracerProvider(ctx, config, res); err != nil {
		return nil, err
	}
	if p.meterProvider, err = newMeterProvider(ctx, config, res); err != nil {
		_ = p.tracerProvider.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if err := p.bind(p.tracerProvider, p.meterProvider); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "exporting ledger telemetry",
		"collector", config.OTLPEndpoint,
		"service", config.ServiceName,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

// NewWithProviders builds a provider on caller-owned providers, e.g. an
// in-memory span recorder in tests.
func NewWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Provider, error) {
	p := &Provider{
		config: DefaultConfig(),
		logger: slog.Default().With("component", "observability"),
	}
	return p, p.bind(tp, mp)
}

func (p *Provider) bind(tp trace.TracerProvider, mp metric.MeterProvider) error {
	version := p.config.ServiceVersion
	p.tracer = tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(version))
	p.meter = mp.Meter(instrumentationName, metric.WithInstrumentationVersion(version))
	if err := p.initMetrics(); err != nil {
		return fmt.Errorf("observability: ledger instruments: %w", err)
	}
	return nil
}

func ledgerResource(config *Config) (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}
	return res, nil
}

func sampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

func newTracerProvider(ctx context.Context, config *Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.OTLPEndpoint)}
	if config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("observability: span exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(config.SampleRate)),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(config.BatchTimeout)),
	), nil
}

func newMeterProvider(ctx context.Context, config *Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint)}
	if config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("observability: metric exporter: %w", err)
	}
	interval := config.MetricInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), nil
}

func (p *Provider) initMetrics() error {
	var err error

	p.recordings, err = p.meter.Int64Counter("emission.recordings.total",
		metric.WithDescription("Readings accepted into a vessel history"),
		metric.WithUnit("{reading}"),
	)
	if err != nil {
		return err
	}

	p.violations, err = p.meter.Int64Counter("emission.violations.total",
		metric.WithDescription("Accepted readings above the zone limit"),
		metric.WithUnit("{reading}"),
	)
	if err != nil {
		return err
	}

	p.rejections, err = p.meter.Int64Counter("emission.rejections.total",
		metric.WithDescription("Readings rejected, by failure kind"),
		metric.WithUnit("{reading}"),
	)
	if err != nil {
		return err
	}

	p.duration, err = p.meter.Float64Histogram("emission.record.duration",
		metric.WithDescription("RecordEmission duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	return err
}

// Shutdown flushes pending spans and metrics from the providers New
// created. Caller-owned providers are left alone.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		errs = append(errs, p.tracerProvider.Shutdown(ctx))
	}
	if p.meterProvider != nil {
		errs = append(errs, p.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Tracer returns the ledger tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the ledger meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// TrackOperation starts an internal span; the returned func ends it and
// records a non-nil error.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := p.tracer.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
