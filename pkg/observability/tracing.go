package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerProvider owns the process-wide otel provider.
type TracerProvider struct {
	provider *trace.TracerProvider
	logger   *slog.Logger
}

// NewTracerProvider registers a global provider exporting to the OTLP gRPC
// collector at collectorEndpoint. An empty endpoint installs a provider
// without an exporter so spans stay in-process.
// The returned cleanup flushes and closes the exporter.
func NewTracerProvider(
	ctx context.Context,
	serviceName string,
	collectorEndpoint string,
	logger *slog.Logger,
) (*TracerProvider, func(), error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceInstanceID(os.Getenv("HOSTNAME")),
	)

	if collectorEndpoint == "" {
		tp := trace.NewTracerProvider(trace.WithResource(res))
		otel.SetTracerProvider(tp)
		logger.Info("tracing export disabled", slog.String("service", serviceName))
		return &TracerProvider{provider: tp, logger: logger}, func() { shutdown(tp, logger) }, nil
	}

	conn, err := grpc.NewClient(
		collectorEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithSampler(trace.ParentBased(trace.AlwaysSample())),
		trace.WithResource(res),
		trace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	logger.Info("TracerProvider initialized",
		slog.String("service", serviceName),
		slog.String("collector", collectorEndpoint))

	cleanup := func() {
		shutdown(tp, logger)
		if err := conn.Close(); err != nil {
			logger.Error("Failed to close gRPC connection", slog.Any("error", err))
		}
	}
	return &TracerProvider{provider: tp, logger: logger}, cleanup, nil
}

func shutdown(tp *trace.TracerProvider, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tp.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown TracerProvider", slog.Any("error", err))
	}
}

// Provider returns the underlying provider.
func (t *TracerProvider) Provider() *trace.TracerProvider {
	return t.provider
}
