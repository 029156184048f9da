package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntityType identifies one of the indexed entity kinds.
type EntityType string

const (
	EntityTask    EntityType = "TASK"
	EntityProject EntityType = "PROJECT"
	EntityUser    EntityType = "USER"
	EntityTeam    EntityType = "TEAM"
)

// AllEntityTypes returns every indexed entity type in composition order.
func AllEntityTypes() []EntityType {
	return []EntityType{EntityTask, EntityProject, EntityUser, EntityTeam}
}

// ParseEntityType accepts the canonical upper-case form as well as
// lower-case and plural spellings ("tasks").
func ParseEntityType(s string) (EntityType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.TrimSuffix(normalized, "S")
	t := EntityType(normalized)
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTask, EntityProject, EntityUser, EntityTeam:
		return true
	}
	return false
}

// IndexName returns the base index name for the entity type.
func (t EntityType) IndexName() string {
	return strings.ToLower(string(t)) + "s"
}

// Label is the lower-case singular form used in logs and metrics.
func (t EntityType) Label() string {
	return strings.ToLower(string(t))
}

// RawHit is one undecoded hit returned by the search engine.
type RawHit struct {
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

// RawHits is the engine-agnostic shape of a search response.
type RawHits struct {
	Total int64    `json:"total"`
	Hits  []RawHit `json:"hits"`
	Took  int64    `json:"took_ms"`
}
