// Package otelhelper provides distributed tracing for journey processing.
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
)

const (
	// Common attribute keys.
	JourneyIDKey     = "journeys.journey.id"
	ParticipantIDKey = "journeys.participant.id"
	LeadIDKey        = "journeys.lead.id"
	StepIDKey        = "journeys.step.id"
	StepTypeKey      = "journeys.step.type"
	ConnectionIDKey  = "journeys.connection.id"
	TriggerTypeKey   = "journeys.trigger.type"
	EventTypeKey     = "journeys.event.type"
	MessageIDKey     = "journeys.message.id"
	ServiceIDKey     = "journeys.service.id"
	WorkerIDKey      = "journeys.worker.id"
)

// NewTracer wires the OTLP/HTTP exporter and installs the global provider.
//
// nolint:ireturn // OpenTelemetry tracers are interfaces
func NewTracer(ctx context.Context, serviceName string) (trace.Tracer, error) {
	provider, err := newTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	return provider.Tracer(serviceName), nil
}

// Tracer returns the tracer for serviceName, real when enabled and the global
// no-op provider otherwise.
//
// nolint:ireturn // OpenTelemetry tracers are interfaces
func Tracer(ctx context.Context, serviceName string, enabled bool) (trace.Tracer, error) {
	if !enabled {
		return otel.Tracer(serviceName), nil
	}

	return NewTracer(ctx, serviceName)
}

// nolint:ireturn,spancheck // spans are ended by callers
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
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
