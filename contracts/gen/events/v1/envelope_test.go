package v1

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAcceptsCurrentSchema(t *testing.T) {
	payload, err := json.Marshal(Envelope{
		EventID:       "evt-1",
		EventType:     "settlement.listing.status_changed",
		OccurredAt:    time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
		SchemaVersion: CurrentSchemaVersion,
		Data:          json.RawMessage(`{"listing_id":"lst-1"}`),
	})
	require.NoError(t, err)

	envelope, err := Decode(payload)
	require.NoError(t, err)

	var data struct {
		ListingID string `json:"listing_id"`
	}
	require.NoError(t, envelope.DecodeData(&data))
	assert.Equal(t, "lst-1", data.ListingID)
}

func TestDecodeRejectsIncompleteEnvelope(t *testing.T) {
	_, err := Decode([]byte(`{"event_type":"x","schema_version":9}`))
	require.ErrorIs(t, err, ErrInvalidEnvelope)
	assert.Contains(t, err.Error(), "event_id is empty")
	assert.Contains(t, err.Error(), "schema_version 9 unsupported")

	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestDecodeDataRequiresPayload(t *testing.T) {
	err := Envelope{EventID: "evt-1"}.DecodeData(&struct{}{})
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}
