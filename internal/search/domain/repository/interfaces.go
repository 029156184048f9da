package repository

import (
	"context"
	"errors"
	"time"

	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/query"
	"github.com/taskflow-hq/taskflow/internal/shared/events"
)

var (
	// ErrEntityNotFound is returned by a Source when the entity no longer exists.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrDocumentNotFound is returned by a SearchEngine for a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDocumentRejected is returned when the search engine refuses a write
	// or query as malformed. Retrying does not help.
	ErrDocumentRejected = errors.New("rejected by search engine")
)

// BulkDocument is one document of a bulk upsert.
type BulkDocument struct {
	ID   string
	Body any
}

// BulkResult reports per-document outcomes of a bulk upsert.
type BulkResult struct {
	Indexed int
	Failed  map[string]string
}

// SearchEngine is the document and query API of the external search store.
// All writes are keyed by stable document id, so replays are idempotent.
type SearchEngine interface {
	Upsert(ctx context.Context, entityType model.EntityType, id string, doc any) error
	BulkUpsert(ctx context.Context, entityType model.EntityType, docs []BulkDocument) (BulkResult, error)
	// Delete removes a document. A missing document is not an error.
	Delete(ctx context.Context, entityType model.EntityType, id string) error
	Search(ctx context.Context, entityType model.EntityType, req query.SearchRequest) (*model.RawHits, error)
	// Refresh makes all prior writes visible to Search.
	Refresh(ctx context.Context, entityType model.EntityType) error
}

// Source is the read API of the system of record for one entity type.
type Source[T any] interface {
	FindByID(ctx context.Context, id string) (T, error)
	FindAll(ctx context.Context) ([]T, error)
}

type (
	TaskSource    = Source[*model.Task]
	ProjectSource = Source[*model.Project]
	UserSource    = Source[*model.User]
	TeamSource    = Source[*model.Team]
)

// ScoredMember is one member of a sorted set.
type ScoredMember struct {
	Member string
	Score  float64
}

// SortedSetStore is the key-value store used for history and popularity.
type SortedSetStore interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZIncrBy(ctx context.Context, key string, increment float64, member string) error
	// ZRevRangeWithScores returns members from highest to lowest score.
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)
	// ZRemRangeByRank removes members by ascending rank.
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZCard(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// EventSink delivers index events to the broker.
type EventSink interface {
	Publish(ctx context.Context, event *events.IndexEvent) error
}

// DeadLetterSink receives events that could not be processed.
type DeadLetterSink interface {
	PublishDeadLetter(ctx context.Context, event *events.IndexEvent, cause error) error
}
