package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEvent is returned when an event fails validation or decoding.
var ErrInvalidEvent = errors.New("invalid index event")

// EventType is the kind of change an IndexEvent describes.
type EventType string

const (
	EventCreate      EventType = "CREATE"
	EventUpdate      EventType = "UPDATE"
	EventDelete      EventType = "DELETE"
	EventBulkReindex EventType = "BULK_REINDEX"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventCreate, EventUpdate, EventDelete, EventBulkReindex:
		return true
	}
	return false
}

// IndexEvent asks the indexer to synchronize one entity, or a whole
// entity type for BULK_REINDEX. Events are immutable once emitted.
type IndexEvent struct {
	ID                string    `json:"id"`
	EventType         EventType `json:"eventType"`
	EntityType        string    `json:"entityType"`
	EntityID          string    `json:"entityId,omitempty"`
	TriggeredByUserID *int64    `json:"triggeredByUserId,omitempty"`
	EmittedAt         time.Time `json:"emittedAt"`
}

// NewIndexEvent creates a validated event stamped with an id and the
// current time.
func NewIndexEvent(eventType EventType, entityType, entityID string, triggeredBy *int64) (*IndexEvent, error) {
	event := &IndexEvent{
		ID:                uuid.New().String(),
		EventType:         eventType,
		EntityType:        entityType,
		EntityID:          entityID,
		TriggeredByUserID: triggeredBy,
		EmittedAt:         time.Now().UTC(),
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

// NewBulkReindexEvent creates a BULK_REINDEX event for entityType.
func NewBulkReindexEvent(entityType string) (*IndexEvent, error) {
	return NewIndexEvent(EventBulkReindex, entityType, "", nil)
}

// Validate checks the fields the consumer relies on.
func (e *IndexEvent) Validate() error {
	if !e.EventType.Valid() {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, e.EventType)
	}
	if e.EntityType == "" {
		return fmt.Errorf("%w: missing entity type", ErrInvalidEvent)
	}
	if e.EventType != EventBulkReindex && e.EntityID == "" {
		return fmt.Errorf("%w: %s event without entity id", ErrInvalidEvent, e.EventType)
	}
	return nil
}

// Key is the partition key. Events for the same entity share a key so they
// are consumed in emission order.
func (e *IndexEvent) Key() string {
	if e.EventType == EventBulkReindex {
		return "bulk:" + e.EntityType
	}
	return e.EntityID
}

// Encode serializes the event for the broker.
func (e *IndexEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses and validates a broker payload.
func Decode(data []byte) (*IndexEvent, error) {
	var event IndexEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

// UserID is a convenience for building TriggeredByUserID.
func UserID(id int64) *int64 {
	return &id
}

// FormatID renders a numeric entity id in its wire form.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
