package service

import (
	"errors"

	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
	"github.com/taskflow-hq/taskflow/internal/shared/events"
)

var (
	// ErrSearchUnavailable is returned by single-entity searches when the
	// search engine cannot answer.
	ErrSearchUnavailable = errors.New("search unavailable")
	// ErrMapping is returned when an entity cannot be turned into a
	// document, usually because a required relation is missing.
	ErrMapping = errors.New("cannot map entity to search document")
	// ErrInvalidEvent is returned for events the consumer cannot act on.
	ErrInvalidEvent = events.ErrInvalidEvent
	// ErrPageOutOfRange is returned for pages past model.MaxResultWindow.
	ErrPageOutOfRange = errors.New("page is beyond the result window")
	// ErrUserRequired is returned by per-user operations without a principal.
	ErrUserRequired = errors.New("requesting user id required")
)

// isPermanent reports errors that another attempt cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, ErrMapping) ||
		errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, repository.ErrDocumentRejected)
}
