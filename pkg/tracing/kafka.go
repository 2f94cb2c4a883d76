package tracing

import (
	"context"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InjectTraceContext injects OpenTelemetry trace context into Kafka message headers
// for propagation to downstream consumers.
func InjectTraceContext(ctx context.Context, headers []sarama.RecordHeader) []sarama.RecordHeader {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	// Create new headers slice to avoid mutation
	newHeaders := make([]sarama.RecordHeader, len(headers), len(headers)+len(carrier))
	copy(newHeaders, headers)

	for k, v := range carrier {
		newHeaders = append(newHeaders, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	return newHeaders
}

// ExtractTraceContext extracts OpenTelemetry trace context from consumed
// Kafka message headers.
func ExtractTraceContext(ctx context.Context, headers []*sarama.RecordHeader) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		if h == nil {
			continue
		}
		carrier[string(h.Key)] = string(h.Value)
	}

	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
