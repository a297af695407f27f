package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/openfroyo/deployer/pkg/engine"
)

// Attribute keys used on deployer spans.
var (
	AttrRunID       = attribute.Key("run.id")
	AttrCommand     = attribute.Key("command")
	AttrEnvironment = attribute.Key("environment")
	AttrStep        = attribute.Key("step")
	AttrStepIndex   = attribute.Key("step.index")
	AttrAction      = attribute.Key("action")
	AttrAttempt     = attribute.Key("action.attempt")
	AttrStatus      = attribute.Key("status")
	AttrErrorKind   = attribute.Key("error.kind")
	AttrErrorClass  = attribute.Key("error.class")
	AttrErrorCode   = attribute.Key("error.code")
)

// Tracer owns the span provider of one CLI invocation.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer creates the tracer for cfg. With no exporter configured spans
// are never sampled.
func NewTracer(cfg TracingConfig, serviceName, serviceVersion string) (*Tracer, error) {
	if !cfg.Enabled() {
		return NewTracerWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample())), serviceName), nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	exporter, err := newSpanExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s trace exporter: %w", cfg.Exporter, err)
	}

	// One command per process: export synchronously so nothing is lost at exit.
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
		sdktrace.WithSyncer(exporter),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return NewTracerWithProvider(provider, serviceName), nil
}

// NewTracerWithProvider wraps an existing provider. Tests use it with an
// in-memory span recorder.
func NewTracerWithProvider(provider *sdktrace.TracerProvider, name string) *Tracer {
	return &Tracer{provider: provider, tracer: provider.Tracer(name)}
}

// newSpanExporter builds the exporter named by cfg.Exporter. The stdout
// exporter writes to stderr; stdout carries command output.
func newSpanExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		if cfg.ExportTimeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
		}
		return otlptracegrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}
}

// Start begins a new span with the given name.
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// Shutdown flushes pending spans and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// spanFor names the span of rec and lists its identifying attributes.
func spanFor(rec engine.Record) (string, []attribute.KeyValue) {
	attrs := []attribute.KeyValue{
		AttrRunID.String(rec.RunID),
		AttrCommand.String(rec.Command),
		AttrEnvironment.String(rec.Environment),
	}
	switch rec.Level {
	case engine.LevelStep:
		return "step." + rec.Step, append(attrs, AttrStep.String(rec.Step), AttrStepIndex.Int(rec.Position))
	case engine.LevelAction:
		return "action." + rec.Action, append(attrs, AttrStep.String(rec.Step), AttrAction.String(rec.Action), AttrAttempt.Int(rec.Attempt))
	default:
		return "command." + rec.Command, attrs
	}
}

// recordOutcome sets the status of span from the end record. Error spans
// carry the taxonomy of the failure.
func recordOutcome(span trace.Span, rec engine.Record) {
	span.SetAttributes(AttrStatus.String(string(rec.Status)))
	if rec.Err == nil {
		if rec.Status == engine.StatusSucceeded {
			span.SetStatus(codes.Ok, "")
		}
		return
	}
	if ee, ok := engine.AsEngineError(rec.Err); ok {
		span.SetAttributes(
			AttrErrorKind.String(string(ee.Kind)),
			AttrErrorClass.String(string(ee.Class)),
			AttrErrorCode.String(ee.Code),
		)
	}
	span.RecordError(rec.Err)
	span.SetStatus(codes.Error, rec.Err.Error())
}
