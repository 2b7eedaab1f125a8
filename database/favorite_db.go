package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// AddFavorite stars an image. Starring twice is not an error; added reports
// whether a row was created.
func (s *Store) AddFavorite(ctx context.Context, userID, imageID int64) (added bool, err error) {
	_, err = s.Insert(ctx, TableFavorites, map[string]any{
		"user_id":    userID,
		"image_id":   imageID,
		"created_at": now(),
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("failed to add favorite %d for user %d: %w", imageID, userID, err)
	}
	return true, nil
}

func (s *Store) RemoveFavorite(ctx context.Context, userID, imageID int64) (bool, error) {
	n, err := s.Delete(ctx, TableFavorites, sq.Eq{"user_id": userID, "image_id": imageID})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) IsFavorite(ctx context.Context, userID, imageID int64) (bool, error) {
	n, err := s.FetchScalar(ctx, psql.Select("COUNT(*)").From(string(TableFavorites)).
		Where(sq.Eq{"user_id": userID, "image_id": imageID}))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListFavorites returns the live images a user has starred, newest first.
func (s *Store) ListFavorites(ctx context.Context, userID int64) ([]ImageRecord, error) {
	query := s.imageRecordQuery().
		Join(string(TableFavorites) + " f ON f.image_id = i.id").
		Where(sq.Eq{"f.user_id": userID, "i.deleted_at": nil, "a.deleted_at": nil}).
		OrderBy("f.created_at DESC", "i.id DESC")
	records, err := s.fetchImageRecords(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites for user %d: %w", userID, err)
	}
	return records, nil
}

// ListFavoriteUserIDs returns the users who starred an image.
func (s *Store) ListFavoriteUserIDs(ctx context.Context, imageID int64) ([]int64, error) {
	query := psql.Select("user_id").From(string(TableFavorites)).
		Where(sq.Eq{"image_id": imageID}).
		OrderBy("user_id ASC")
	ids := []int64{}
	err := s.FetchAll(ctx, query, func(rows *sql.Rows) error {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan favorite user id: %w", err)
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites of image %d: %w", imageID, err)
	}
	return ids, nil
}
