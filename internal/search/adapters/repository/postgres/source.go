// Package postgres reads the authoritative state of indexed entities from
// the system-of-record database. It never writes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/taskflow-hq/taskflow/internal/platform/database"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// parseID rejects ids that cannot exist in the database.
func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", repository.ErrEntityNotFound, id)
	}
	return n, nil
}

func findOne[T any](ctx context.Context, db *database.DB, query, id string, scan func(rowScanner) (T, error)) (T, error) {
	var zero T
	n, err := parseID(id)
	if err != nil {
		return zero, err
	}
	entity, err := scan(db.QueryRowContext(ctx, query, n))
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("%w: %s", repository.ErrEntityNotFound, id)
	}
	if err != nil {
		return zero, err
	}
	return entity, nil
}

func findAll[T any](ctx context.Context, db *database.DB, query string, scan func(rowScanner) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		entity, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}

func refName(first, last sql.NullString) string {
	return strings.TrimSpace(first.String + " " + last.String)
}
