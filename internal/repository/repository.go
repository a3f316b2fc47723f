package repository

import (
	"database/sql"
	"errors"
)

// handleNotFound processes a database query result, converting sql.ErrNoRows
// to a nil result without error. Find* operations use this so a missing row
// is not an error condition.
func handleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
