package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CurrentSchemaVersion is the envelope layout producers emit. Consumers
// accept any version up to it.
const CurrentSchemaVersion = 1

var ErrInvalidEnvelope = errors.New("invalid event envelope")

// Envelope is the versioned wrapper every settlement event travels in,
// whether it sits in the outbox or on the bus. Fields may be added; none may
// be renamed or removed.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id,omitempty"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

// Validate checks the fields consumers key on.
func (e Envelope) Validate() error {
	var problems []error
	if e.EventID == "" {
		problems = append(problems, errors.New("event_id is empty"))
	}
	if e.EventType == "" {
		problems = append(problems, errors.New("event_type is empty"))
	}
	if e.OccurredAt.IsZero() {
		problems = append(problems, errors.New("occurred_at is zero"))
	}
	if e.SchemaVersion < 1 || e.SchemaVersion > CurrentSchemaVersion {
		problems = append(problems, fmt.Errorf("schema_version %d unsupported", e.SchemaVersion))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEnvelope, errors.Join(problems...))
	}
	return nil
}

// DecodeData unmarshals the event payload into out.
func (e Envelope) DecodeData(out any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: event %s has no data", ErrInvalidEnvelope, e.EventID)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decode data of event %s: %w", e.EventID, err)
	}
	return nil
}

// Decode parses a serialized envelope and validates it.
func Decode(payload []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if err := envelope.Validate(); err != nil {
		return Envelope{}, err
	}
	return envelope, nil
}
