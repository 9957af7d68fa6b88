package application

import (
	"context"

	"key2key/contexts/marketplace/listing-settlement/ports"
)

// EmitOutbox stages a notification in the caller's transaction. The event id
// is generated when the caller leaves it empty.
func EmitOutbox(
	ctx context.Context,
	writer ports.OutboxWriter,
	ids ports.IDGenerator,
	event ports.OutboxEvent,
) error {
	if writer == nil {
		return nil
	}
	if event.EventID == "" {
		eventID, err := ids.NewID(ctx)
		if err != nil {
			return err
		}
		event.EventID = eventID
	}
	if event.PartitionKey == "" {
		event.PartitionKey = event.ListingID
	}
	return writer.AppendOutbox(ctx, event)
}
