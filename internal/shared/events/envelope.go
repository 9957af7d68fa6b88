package events

import (
	"encoding/json"
	"fmt"
	"time"

	contractsv1 "key2key/contracts/gen/events/v1"
)

const SchemaVersion = contractsv1.CurrentSchemaVersion

// EnvelopeInput is what a repository knows when it stages an outbox row.
type EnvelopeInput struct {
	EventID          string
	EventType        string
	SourceService    string
	PartitionKeyPath string
	PartitionKey     string
	OccurredAt       time.Time
	Data             any
}

// Encode builds the canonical envelope and returns it serialized, ready for
// the outbox payload column.
func Encode(input EnvelopeInput) ([]byte, error) {
	data, err := json.Marshal(input.Data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	envelope := contractsv1.Envelope{
		EventID:          input.EventID,
		EventType:        input.EventType,
		OccurredAt:       input.OccurredAt.UTC(),
		SourceService:    input.SourceService,
		SchemaVersion:    SchemaVersion,
		PartitionKeyPath: input.PartitionKeyPath,
		PartitionKey:     input.PartitionKey,
		Data:             data,
	}
	if err := envelope.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode event envelope: %w", err)
	}
	return payload, nil
}
