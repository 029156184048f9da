package query

import (
	"encoding/json"
	"fmt"
)

// Sort orders hits by a document field. An empty Field sorts by score.
type Sort struct {
	Field string
	Desc  bool
}

// ByScore sorts by relevance, highest first.
func ByScore() Sort { return Sort{Desc: true} }

// SearchRequest is a complete, paginated search.
type SearchRequest struct {
	Query Clause
	From  int
	Size  int
	Sort  []Sort
}

// Validate checks pagination and the clause tree.
func (r SearchRequest) Validate() error {
	if r.From < 0 {
		return fmt.Errorf("%w: negative from %d", ErrInvalidQuery, r.From)
	}
	if r.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidQuery, r.Size)
	}
	return Validate(r.Query)
}

// MarshalJSON encodes the request body of a search call.
func (r SearchRequest) MarshalJSON() ([]byte, error) {
	body := obj{
		"query":            r.Query,
		"from":             r.From,
		"size":             r.Size,
		"track_total_hits": true,
	}
	if len(r.Sort) > 0 {
		sorts := make([]any, 0, len(r.Sort))
		for _, s := range r.Sort {
			order := "asc"
			if s.Desc {
				order = "desc"
			}
			field := s.Field
			if field == "" {
				field = "_score"
			}
			sorts = append(sorts, obj{field: obj{"order": order}})
		}
		body["sort"] = sorts
	}
	return json.Marshal(body)
}
