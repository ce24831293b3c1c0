package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Observability bundles the OpenTelemetry meter and tracer used around
// routing calls. All methods are safe on a nil receiver.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	resolveCounter  otelmetric.Int64Counter
	resolveDuration otelmetric.Float64Histogram
}

type options struct {
	registerer     promclient.Registerer
	jaegerEndpoint string
	sampleRatio    float64
}

type Option func(*options)

// WithRegisterer sends the OpenTelemetry metrics to reg instead of the
// default Prometheus registry.
func WithRegisterer(reg promclient.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithJaeger exports spans to a Jaeger collector endpoint
// (e.g. http://jaeger:14268/api/traces).
func WithJaeger(endpoint string, sampleRatio float64) Option {
	return func(o *options) {
		o.jaegerEndpoint = endpoint
		o.sampleRatio = sampleRatio
	}
}

func New(serviceName string, opts ...Option) (*Observability, error) {
	o := options{sampleRatio: 1}
	for _, opt := range opts {
		opt(&o)
	}

	var exporterOpts []prometheus.Option
	if o.registerer != nil {
		exporterOpts = append(exporterOpts, prometheus.WithRegisterer(o.registerer))
	}
	exporter, err := prometheus.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	meterProvider := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.sampleRatio))),
	}
	if o.jaegerEndpoint != "" {
		jexp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(o.jaegerEndpoint)))
		if err != nil {
			_ = meterProvider.Shutdown(context.Background())
			return nil, fmt.Errorf("create jaeger exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(jexp))
	}
	tracerProvider := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tracerProvider)

	meter := meterProvider.Meter(serviceName)

	resolveCounter, err := meter.Int64Counter(
		"routing.resolutions",
		otelmetric.WithDescription("Number of prompt routing resolutions"),
	)
	if err != nil {
		return nil, err
	}
	resolveDuration, err := meter.Float64Histogram(
		"routing.duration",
		otelmetric.WithDescription("Prompt routing duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Observability{
		meterProvider:   meterProvider,
		tracerProvider:  tracerProvider,
		tracer:          tracerProvider.Tracer(serviceName),
		resolveCounter:  resolveCounter,
		resolveDuration: resolveDuration,
	}, nil
}

// StartSpan starts a span under ctx. With a nil receiver it returns ctx and
// a non-recording span.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordResolution records one routing call.
func (o *Observability) RecordResolution(ctx context.Context, mode, outcome string, d time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	)
	o.resolveCounter.Add(ctx, 1, attrs)
	o.resolveDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

// Shutdown flushes spans and stops both providers.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	return errors.Join(
		o.tracerProvider.Shutdown(ctx),
		o.meterProvider.Shutdown(ctx),
	)
}
