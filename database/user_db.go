package database

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// ListActiveUserIDs returns the ids of users that are not soft-deleted.
func (s *Store) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	query := psql.Select("id").From(string(TableUsers)).
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("id ASC")

	ids := []int64{}
	err := s.FetchAll(ctx, query, func(rows *sql.Rows) error {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return ids, nil
}

func (s *Store) SoftDeleteUser(ctx context.Context, userID int64) (int64, error) {
	return s.SoftDelete(ctx, TableUsers, sq.Eq{"id": userID})
}

// UserExists reports whether a user row exists; soft-deleted rows only count
// when includeDeleted is set.
func (s *Store) UserExists(ctx context.Context, userID int64, includeDeleted bool) (bool, error) {
	where := sq.Eq{"id": userID}
	if !includeDeleted {
		where["deleted_at"] = nil
	}
	n, err := s.FetchScalar(ctx, psql.Select("COUNT(*)").From(string(TableUsers)).Where(where))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
