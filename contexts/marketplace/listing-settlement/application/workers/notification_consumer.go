package workers

import (
	"context"
	"log/slog"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/ports"
)

// NotificationConsumer forwards committed transitions to the notifier.
// Delivery is fire-and-forget: failures are logged and never reach the
// transition that produced the event.
type NotificationConsumer struct {
	Subscriber    ports.EventSubscriber
	Notifier      ports.Notifier
	Topic         string
	ConsumerGroup string
	Logger        *slog.Logger
}

func (c NotificationConsumer) Start(ctx context.Context) error {
	topic := c.Topic
	if topic == "" {
		topic = SettlementEventsTopic
	}
	group := c.ConsumerGroup
	if group == "" {
		group = "settlement-notifications"
	}
	return c.Subscriber.Subscribe(ctx, topic, group, c.Handle)
}

func (c NotificationConsumer) Handle(ctx context.Context, envelope ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	var data ports.SettlementEventData
	if err := envelope.DecodeData(&data); err != nil {
		logger.Warn("notification payload decode failed",
			"event", "settlement_notification_decode_failed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"event_id", envelope.EventID,
			"error", err.Error(),
		)
		return nil
	}
	if !notifiable(envelope.EventType, data.Status) {
		return nil
	}

	if err := c.Notifier.Notify(ctx, ports.Notification{
		EventID:   envelope.EventID,
		EventType: envelope.EventType,
		ListingID: data.ListingID,
		EntityID:  data.EntityID,
		Status:    data.Status,
		Reason:    data.Reason,
	}); err != nil {
		logger.Warn("notification delivery failed",
			"event", "settlement_notification_failed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"event_id", envelope.EventID,
			"listing_id", data.ListingID,
			"error", err.Error(),
		)
	}
	return nil
}

// notifiable selects the transitions people hear about.
func notifiable(eventType string, status string) bool {
	switch eventType {
	case "settlement.listing.status_changed":
		switch status {
		case "reserved", "under_transaction", "sold", "leased", "cancelled", "active":
			return true
		}
	case "settlement.transaction.refunded", "settlement.assignment.status_changed":
		return true
	case "settlement.transaction.status_changed":
		return status == "failed" || status == "captured"
	}
	return false
}
