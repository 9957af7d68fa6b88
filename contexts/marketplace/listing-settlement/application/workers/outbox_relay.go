package workers

import (
	"context"
	"log/slog"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/ports"
)

// SettlementEventsTopic carries every committed settlement transition.
const SettlementEventsTopic = "settlement.events"

type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	Topic     string
	BatchSize int
	Logger    *slog.Logger
}

func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}
	topic := r.Topic
	if topic == "" {
		topic = SettlementEventsTopic
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("outbox list pending failed",
			"event", "settlement_outbox_list_failed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	now := application.Now(r.Clock)
	for _, message := range pending {
		envelope, err := ports.DecodeEnvelope(message.Payload)
		if err != nil {
			logger.Error("outbox payload decode failed",
				"event", "settlement_outbox_decode_failed",
				"module", "marketplace/listing-settlement",
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Publisher.Publish(ctx, topic, envelope); err != nil {
			logger.Error("outbox publish failed",
				"event", "settlement_outbox_publish_failed",
				"module", "marketplace/listing-settlement",
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"event_id", envelope.EventID,
				"event_type", envelope.EventType,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Outbox.MarkOutboxSent(ctx, message.OutboxID, now); err != nil {
			logger.Error("outbox mark sent failed",
				"event", "settlement_outbox_mark_sent_failed",
				"module", "marketplace/listing-settlement",
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"error", err.Error(),
			)
			return err
		}
	}

	if len(pending) > 0 {
		logger.Info("outbox relay cycle completed",
			"event", "settlement_outbox_relay_completed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"sent_count", len(pending),
		)
	}
	return nil
}
