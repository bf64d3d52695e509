// Package tracing wraps tasks and signals in OpenTelemetry spans and sets up
// the process tracer provider they report to.
package tracing

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/goclaw/reactive/config"
	"github.com/goclaw/reactive/pkg/logger"
	"github.com/goclaw/reactive/pkg/version"
)

// ShutdownFunc flushes pending spans and uninstalls the provider.
type ShutdownFunc func(ctx context.Context) error

// Export outcomes reported to an ExportRecorder.
const (
	ExportSuccess = "success"
	ExportFailure = "failure"
)

// ExportRecorder observes span export batches. *metrics.Manager implements
// it.
type ExportRecorder interface {
	RecordSpanExport(outcome string, spans int)
}

type initOptions struct {
	recorder   ExportRecorder
	instanceID string
}

// InitOption configures Init.
type InitOption func(*initOptions)

// WithExportRecorder reports every export batch to r.
func WithExportRecorder(r ExportRecorder) InitOption {
	return func(o *initOptions) { o.recorder = r }
}

// WithInstanceID sets service.instance.id instead of a random UUID.
func WithInstanceID(id string) InitOption {
	return func(o *initOptions) { o.instanceID = id }
}

// installed is the provider the traced operators use when no
// WithTracerProvider option is given. Nil means the OpenTelemetry global.
var installed struct {
	mu sync.RWMutex
	tp trace.TracerProvider
}

func install(tp trace.TracerProvider) {
	installed.mu.Lock()
	installed.tp = tp
	installed.mu.Unlock()
}

func defaultTracer() trace.Tracer {
	installed.mu.RLock()
	tp := installed.tp
	installed.mu.RUnlock()
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName, trace.WithInstrumentationVersion(version.Version))
}

var newOTLPExporter = func(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	endpoint := normalizeEndpoint(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("tracing endpoint cannot be empty")
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithTimeout(cfg.Timeout),
		otlptracegrpc.WithInsecure(),
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	return otlptracegrpc.New(ctx, opts...)
}

// reportingExporter never fails a batch. Failures are logged and counted so
// a dead collector cannot stall the span processor or the tasks being traced.
type reportingExporter struct {
	exporter sdktrace.SpanExporter
	endpoint string
	recorder ExportRecorder
}

func (e *reportingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if err := e.exporter.ExportSpans(ctx, spans); err != nil {
		logger.Warn("tracing export failed",
			"error", err,
			"endpoint", e.endpoint,
			"span_count", len(spans),
		)
		e.record(ExportFailure, len(spans))
		return nil
	}
	e.record(ExportSuccess, len(spans))
	return nil
}

func (e *reportingExporter) record(outcome string, spans int) {
	if e.recorder != nil {
		e.recorder.RecordSpanExport(outcome, spans)
	}
}

func (e *reportingExporter) Shutdown(ctx context.Context) error {
	return e.exporter.Shutdown(ctx)
}

// Init sets up tracing for the process described by app. The provider
// becomes the default of Task and Signal and the OpenTelemetry global; the
// returned ShutdownFunc flushes it and puts the previous global back. When
// tracing is disabled the installed provider is a no-op.
func Init(ctx context.Context, cfg config.TracingConfig, app config.AppConfig, opts ...InitOption) (ShutdownFunc, error) {
	o := initOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	prev := otel.GetTracerProvider()
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		install(tp)
		return func(context.Context) error {
			install(nil)
			otel.SetTracerProvider(prev)
			return nil
		}, nil
	}

	if cfg.Exporter != "" && cfg.Exporter != "otlpgrpc" {
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("tracing endpoint cannot be empty")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("tracing timeout must be > 0")
	}

	exp, err := newOTLPExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create tracing exporter: %w", err)
	}
	exp = &reportingExporter{
		exporter: exp,
		endpoint: normalizeEndpoint(cfg.Endpoint),
		recorder: o.recorder,
	}

	res, err := newResource(ctx, app, o.instanceID)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("create tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(selectSampler(cfg)),
	)
	otel.SetTracerProvider(tp)
	install(tp)

	return func(shutdownCtx context.Context) error {
		install(nil)
		otel.SetTracerProvider(prev)
		if err := tp.ForceFlush(shutdownCtx); err != nil {
			_ = tp.Shutdown(shutdownCtx)
			return fmt.Errorf("force flush tracing provider: %w", err)
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown tracing provider: %w", err)
		}
		return nil
	}, nil
}

func newResource(ctx context.Context, app config.AppConfig, instanceID string) (*resource.Resource, error) {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(app.Name),
			semconv.ServiceVersion(app.Version),
			semconv.ServiceInstanceID(instanceID),
			semconv.DeploymentEnvironmentName(app.Environment),
		),
	)
}

func selectSampler(cfg config.TracingConfig) sdktrace.Sampler {
	switch strings.ToLower(strings.TrimSpace(cfg.Sampler)) {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}
}

func normalizeEndpoint(endpoint string) string {
	raw := strings.TrimSpace(endpoint)
	if !strings.Contains(raw, "://") {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	return parsed.Host
}
