package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
)

// Metrics owns the process meter provider. With no collector endpoint it
// hands out a no-op meter so instrumented code never branches on telemetry.
type Metrics struct {
	provider metric.MeterProvider
	shutdown func(context.Context) error
	logger   *slog.Logger
}

func NewMetrics(ctx context.Context, serviceName string, endpoint string, logger *slog.Logger) (*Metrics, error) {
	if endpoint == "" {
		return &Metrics{
			provider: noop.NewMeterProvider(),
			shutdown: func(context.Context) error { return nil },
			logger:   logger,
		}, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}
	res := sdkresource.NewSchemaless(attribute.String("service.name", serviceName))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	if logger != nil {
		logger.Info("metrics exporter configured",
			"event", "telemetry_metrics_configured",
			"module", "internal/platform/telemetry",
			"layer", "platform",
			"endpoint", endpoint,
		)
	}
	return &Metrics{
		provider: provider,
		shutdown: provider.Shutdown,
		logger:   logger,
	}, nil
}

func (m *Metrics) Meter(name string) metric.Meter {
	return m.provider.Meter(name)
}

// Shutdown flushes pending measurements.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.shutdown == nil {
		return nil
	}
	if err := m.shutdown(ctx); err != nil {
		if m.logger != nil {
			m.logger.Warn("metrics shutdown failed",
				"event", "telemetry_metrics_shutdown_failed",
				"module", "internal/platform/telemetry",
				"layer", "platform",
				"error", err.Error(),
			)
		}
		return err
	}
	return nil
}
