package otelhelper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetError(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := otelhelper.StartSpan(context.Background(), tracer, "transition",
		attribute.Int64(otelhelper.ParticipantIDKey, 3),
	)
	otelhelper.SetError(span, errors.New("boom"), attribute.Int64(otelhelper.StepIDKey, 10))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), attribute.Int64(otelhelper.ParticipantIDKey, 3))
}

func TestTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := otelhelper.Tracer(context.Background(), "journeys-test", false)
	require.NoError(t, err)
	assert.NotNil(t, tracer)
}
