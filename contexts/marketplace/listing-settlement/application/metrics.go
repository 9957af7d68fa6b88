package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SettlementMetrics holds the worker-side counters. A nil *SettlementMetrics
// records nothing.
type SettlementMetrics struct {
	webhookEvents metric.Int64Counter
	sweepItems    metric.Int64Counter
	gatewayCalls  metric.Int64Counter
}

func NewSettlementMetrics(meter metric.Meter) (*SettlementMetrics, error) {
	webhookEvents, err := meter.Int64Counter(
		"settlement.webhook.events",
		metric.WithDescription("Gateway events by type and outcome"),
	)
	if err != nil {
		return nil, err
	}
	sweepItems, err := meter.Int64Counter(
		"settlement.sweep.items",
		metric.WithDescription("Entities handled by periodic sweeps"),
	)
	if err != nil {
		return nil, err
	}
	gatewayCalls, err := meter.Int64Counter(
		"settlement.gateway.calls",
		metric.WithDescription("Payment gateway calls by operation and result"),
	)
	if err != nil {
		return nil, err
	}
	return &SettlementMetrics{
		webhookEvents: webhookEvents,
		sweepItems:    sweepItems,
		gatewayCalls:  gatewayCalls,
	}, nil
}

func (m *SettlementMetrics) RecordWebhook(ctx context.Context, eventType string, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
}

func (m *SettlementMetrics) RecordSweep(ctx context.Context, sweep string, result string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sweepItems.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("sweep", sweep),
		attribute.String("result", result),
	))
}

func (m *SettlementMetrics) RecordGatewayCall(ctx context.Context, operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.gatewayCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
}
