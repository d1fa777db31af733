// Package tracing wires the debug-info filter into OpenTelemetry.
//
// The filter itself never blocks on a network call in its hot path (see
// spec.md §5, "no suspension points"), so tracing here is an observability
// aid, not a correctness dependency: one span wraps each Iterator.Next
// batch, and one child span wraps each debug-info query, whether it is
// answered from the resolution cache or by a DWARF walk / ELF symbol scan.
package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config configures distributed tracing for the filter.
type Config struct {
	Enabled        bool              `yaml:"enabled"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Exporter       string            `yaml:"exporter"` // "jaeger", "otlp"
	Endpoint       string            `yaml:"endpoint"`
	SampleRatio    float64           `yaml:"sample_ratio"`
	BatchTimeout   time.Duration     `yaml:"batch_timeout"`
	Headers        map[string]string `yaml:"headers"`
}

// DefaultConfig returns a disabled tracing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "debuginfofilter",
		ServiceVersion: "v1",
		Exporter:       "otlp",
		Endpoint:       "http://localhost:4318/v1/traces",
		SampleRatio:    1.0,
		BatchTimeout:   5 * time.Second,
		Headers:        make(map[string]string),
	}
}

// Manager owns the tracer provider and exposes a tracer to the rest of
// the filter. With tracing disabled it hands out a no-op tracer so call
// sites never need to branch on config.Enabled themselves.
type Manager struct {
	config   Config
	logger   *logrus.Logger
	provider *trace.TracerProvider
	tracer   oteltrace.Tracer
}

// NewManager builds a tracing Manager from config.
func NewManager(config Config, logger *logrus.Logger) (*Manager, error) {
	if !config.Enabled {
		return &Manager{config: config, logger: logger, tracer: otel.Tracer("noop")}, nil
	}

	m := &Manager{config: config, logger: logger}
	if err := m.initialize(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) initialize() error {
	exporter, err := m.createExporter()
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(m.config.ServiceName),
			semconv.ServiceVersion(m.config.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("create trace resource: %w", err)
	}

	m.provider = trace.NewTracerProvider(
		trace.WithBatcher(exporter, trace.WithBatchTimeout(m.config.BatchTimeout)),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(m.config.SampleRatio)),
	)
	otel.SetTracerProvider(m.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	m.tracer = otel.Tracer(m.config.ServiceName)

	m.logger.WithFields(logrus.Fields{
		"exporter": m.config.Exporter,
		"endpoint": m.config.Endpoint,
	}).Info("distributed tracing initialized")
	return nil
}

func (m *Manager) createExporter() (trace.SpanExporter, error) {
	switch m.config.Exporter {
	case "jaeger":
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(m.config.Endpoint)))
	case "otlp":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(m.config.Endpoint)}
		if len(m.config.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(m.config.Headers))
		}
		return otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", m.config.Exporter)
	}
}

// Tracer returns the underlying tracer.
func (m *Manager) Tracer() oteltrace.Tracer {
	return m.tracer
}

// Shutdown flushes and stops the tracer provider, a no-op if tracing was
// never enabled.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.provider != nil {
		return m.provider.Shutdown(ctx)
	}
	return nil
}

// StartBatch starts the span wrapping one Iterator.Next call.
func (m *Manager) StartBatch(ctx context.Context, requestedCapacity int) (context.Context, oteltrace.Span) {
	ctx, span := m.tracer.Start(ctx, "iterator.next")
	span.SetAttributes(attribute.Int("debuginfo.capacity", requestedCapacity))
	return ctx, span
}

// StartResolve starts the child span wrapping one debug-info query,
// cache hit or not.
func (m *Manager) StartResolve(ctx context.Context, vpid int64, ip uint64) (context.Context, oteltrace.Span) {
	ctx, span := m.tracer.Start(ctx, "procsources.query")
	span.SetAttributes(
		attribute.Int64("debuginfo.vpid", vpid),
		attribute.String("debuginfo.ip", fmt.Sprintf("0x%x", ip)),
	)
	return ctx, span
}

// End finalizes a span, recording err on it if non-nil.
func End(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
