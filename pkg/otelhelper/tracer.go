// Package otelhelper sets up OpenTelemetry tracing for the engine and the API.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	WorkflowIDKey      = "automation.workflow.id"
	WorkflowVersionKey = "automation.workflow.version"
	TenantIDKey        = "automation.tenant.id"
	TriggerIDKey       = "automation.trigger.id"
	EventIDKey         = "automation.event.id"
	CorrelationIDKey   = "automation.run.correlation_id"
	RunOutcomeKey      = "automation.run.outcome"
	NodeIDKey          = "automation.node.id"
	ActionTypeKey      = "automation.action.type"
	DispatchStatusKey  = "automation.dispatch.status"
)

// NewTracer installs a global provider exporting over OTLP/HTTP, configured by the
// standard OTEL_EXPORTER_OTLP_* environment variables.
// nolint:ireturn
func NewTracer(ctx context.Context, serviceName string) (trace.Tracer, error) {
	provider, err := newTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	return provider.Tracer(serviceName), nil
}

// nolint:ireturn,spancheck
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// NoopTracer is used when tracing is disabled.
// nolint:ireturn
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("automation")
}

func newTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}

// Shutdown flushes the spans buffered by the provider NewTracer installed.
func Shutdown(ctx context.Context) error {
	if provider, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		return provider.Shutdown(ctx)
	}

	return nil
}
