package model

import "strings"

// SortOrder selects how a page of results is ordered after retrieval.
type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortNewest    SortOrder = "newest"
	SortTrending  SortOrder = "trending"
	SortPinned    SortOrder = "pinned"
)

// DefaultSortOrder is the feed-style order used when none is requested.
const DefaultSortOrder = SortNewest

// ParseSortOrder falls back to DefaultSortOrder for empty or unknown values.
func ParseSortOrder(s string) SortOrder {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case SortRelevance, SortNewest, SortTrending, SortPinned:
		return o
	}
	return DefaultSortOrder
}

// MaxResultWindow bounds how deep a caller may page: page*size+size must not
// exceed it. It matches the engine's index.max_result_window.
const MaxResultWindow = 10000

// PageRequest is a zero-based page number plus page size.
type PageRequest struct {
	Page int       `json:"page"`
	Size int       `json:"size"`
	Sort SortOrder `json:"sort,omitempty"`
}

// NewPageRequest builds a request in the default order.
func NewPageRequest(page, size int) PageRequest {
	return PageRequest{Page: page, Size: size, Sort: DefaultSortOrder}
}

// Normalize clamps the page number to >= 0 and the size to
// [1, maxSize], substituting defaultSize for non-positive sizes.
func (p PageRequest) Normalize(defaultSize, maxSize int) PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = defaultSize
	}
	if maxSize > 0 && p.Size > maxSize {
		p.Size = maxSize
	}
	if p.Sort == "" {
		p.Sort = DefaultSortOrder
	}
	return p
}

// InWindow reports whether the last element of the page lies within
// MaxResultWindow. It does not overflow for any non-negative page.
func (p PageRequest) InWindow() bool {
	if p.Page < 0 || p.Size <= 0 {
		return p.Page <= 0
	}
	if p.Size > MaxResultWindow {
		return false
	}
	return p.Page <= MaxResultWindow/p.Size-1
}

// Offset is the index of the first element of the page.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page is the result contract returned to callers.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	PageNumber    int   `json:"pageNumber"`
	PageSize      int   `json:"pageSize"`
	HasNext       bool  `json:"hasNext"`
	HasPrevious   bool  `json:"hasPrevious"`
}

// NewPage derives the paging metadata from total and the request.
func NewPage[T any](content []T, total int64, req PageRequest) Page[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := 0
	if req.Size > 0 {
		totalPages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Content:       content,
		TotalElements: total,
		TotalPages:    totalPages,
		PageNumber:    req.Page,
		PageSize:      req.Size,
		HasNext:       req.Page+1 < totalPages,
		HasPrevious:   req.Page > 0,
	}
}

// EmptyPage is the degraded result for a failed sub-query.
func EmptyPage[T any](req PageRequest) Page[T] {
	return NewPage[T](nil, 0, req)
}
