package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIndexEvent(t *testing.T) {
	tests := []struct {
		name       string
		eventType  EventType
		entityType string
		entityID   string
		wantErr    bool
	}{
		{name: "create", eventType: EventCreate, entityType: "TASK", entityID: "12"},
		{name: "bulk without id", eventType: EventBulkReindex, entityType: "USER"},
		{name: "update without id", eventType: EventUpdate, entityType: "TASK", wantErr: true},
		{name: "unknown type", eventType: "UPSERT", entityType: "TASK", entityID: "1", wantErr: true},
		{name: "missing entity type", eventType: EventDelete, entityID: "1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := NewIndexEvent(tt.eventType, tt.entityType, tt.entityID, UserID(5))
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidEvent))
				assert.Nil(t, event)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, event.ID)
			assert.False(t, event.EmittedAt.IsZero())
			assert.Equal(t, int64(5), *event.TriggeredByUserID)
		})
	}
}

func TestIndexEventRoundTrip(t *testing.T) {
	event, err := NewIndexEvent(EventUpdate, "PROJECT", "99", nil)
	require.NoError(t, err)

	data, err := event.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "triggeredByUserId")

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, EventUpdate, decoded.EventType)
	assert.Equal(t, "99", decoded.EntityID)
	assert.Nil(t, decoded.TriggeredByUserID)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.True(t, errors.Is(err, ErrInvalidEvent))

	_, err = Decode([]byte(`{"eventType":"DELETE","entityType":"TEAM"}`))
	assert.True(t, errors.Is(err, ErrInvalidEvent))
}

func TestKey(t *testing.T) {
	event, err := NewIndexEvent(EventDelete, "TEAM", "3", nil)
	require.NoError(t, err)
	assert.Equal(t, "3", event.Key())

	bulk, err := NewBulkReindexEvent("TEAM")
	require.NoError(t, err)
	assert.Equal(t, "bulk:TEAM", bulk.Key())
}
