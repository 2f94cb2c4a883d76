package tracing

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	original := []sarama.RecordHeader{{Key: []byte("source"), Value: []byte("aggregator")}}
	headers := InjectTraceContext(ctx, original)
	require.Len(t, original, 1, "input headers must not be mutated")
	require.Greater(t, len(headers), 1)

	consumed := make([]*sarama.RecordHeader, 0, len(headers))
	for i := range headers {
		consumed = append(consumed, &headers[i])
	}
	consumed = append(consumed, nil)

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), consumed))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
	assert.True(t, got.IsRemote())
}
