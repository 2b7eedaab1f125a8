package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/camden-git/mediagallery/models"
)

// NewAlbum is the insert payload for an album row.
type NewAlbum struct {
	UserID      int64
	Name        string
	Path        string
	ParentID    *int64
	IsPublic    bool
	Description *string
}

func (s *Store) albumColumns(prefix string) []string {
	cols := []string{"id", "user_id", "name", "path", "is_public", "description", "cover_image_id", "parent_id", "created_at", "deleted_at"}
	out := make([]string, len(cols))
	for i, c := range cols {
		switch {
		case c == "parent_id" && !s.schema.HasAlbumParents:
			out[i] = "NULL AS parent_id"
		default:
			out[i] = prefix + c
		}
	}
	return out
}

// scanAlbumRow is a helper to scan a single album row
func scanAlbumRow(scanner interface {
	Scan(dest ...any) error
}) (models.Album, error) {
	var a models.Album
	err := scanner.Scan(&a.ID, &a.UserID, &a.Name, &a.Path, &a.IsPublic, &a.Description,
		&a.CoverImageID, &a.ParentID, &a.CreatedAt, &a.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Album{}, sql.ErrNoRows
		}
		return models.Album{}, fmt.Errorf("failed to scan album row: %w", err)
	}
	return a, nil
}

func (s *Store) fetchAlbum(ctx context.Context, where sq.Sqlizer) (models.Album, error) {
	query := psql.Select(s.albumColumns("")...).From(string(TableAlbums)).Where(where).Limit(1)
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return models.Album{}, fmt.Errorf("failed to build SQL for album lookup: %w", err)
	}
	return scanAlbumRow(s.q().QueryRowContext(ctx, sqlStr, args...))
}

func (s *Store) fetchAlbums(ctx context.Context, query sq.SelectBuilder) ([]models.Album, error) {
	albums := []models.Album{}
	err := s.FetchAll(ctx, query, func(rows *sql.Rows) error {
		a, err := scanAlbumRow(rows)
		if err != nil {
			return err
		}
		albums = append(albums, a)
		return nil
	})
	return albums, err
}

func (s *Store) parentCondition(parentID *int64) sq.Sqlizer {
	if !s.schema.HasAlbumParents {
		return sq.Expr("1 = 1")
	}
	if parentID == nil {
		return sq.Eq{"parent_id": nil}
	}
	return sq.Eq{"parent_id": *parentID}
}

// InsertAlbum creates an album or, when a uniqueness rule rejects the insert,
// returns the row that already occupies the slot: first a row (live or
// deleted) with the same owner, parent and name, then a live row with the same
// owner and path. created is false when an existing id is returned. The insert
// and the recovery lookups share one transaction.
func (s *Store) InsertAlbum(ctx context.Context, a NewAlbum) (id int64, created bool, err error) {
	values := map[string]any{
		"user_id":     a.UserID,
		"name":        a.Name,
		"path":        strings.Trim(a.Path, "/"),
		"is_public":   a.IsPublic,
		"description": a.Description,
		"created_at":  now(),
	}
	if s.schema.HasAlbumParents {
		values["parent_id"] = a.ParentID
	}

	err = s.WithTx(ctx, func(tx *Store) error {
		newID, insertErr := tx.Insert(ctx, TableAlbums, values)
		if insertErr == nil {
			id, created = newID, true
			return nil
		}
		if !errors.Is(insertErr, ErrConflict) {
			return fmt.Errorf("failed to insert album %q: %w", a.Name, insertErr)
		}

		existing, lookupErr := tx.fetchAlbum(ctx, sq.And{
			sq.Eq{"user_id": a.UserID, "name": a.Name},
			tx.parentCondition(a.ParentID),
		})
		if lookupErr == nil {
			id = existing.ID
			return nil
		}
		if !errors.Is(lookupErr, sql.ErrNoRows) {
			return fmt.Errorf("failed to resolve album conflict by name: %w", lookupErr)
		}

		existing, lookupErr = tx.fetchAlbum(ctx, sq.Eq{"user_id": a.UserID, "path": values["path"], "deleted_at": nil})
		if lookupErr == nil {
			id = existing.ID
			return nil
		}
		if !errors.Is(lookupErr, sql.ErrNoRows) {
			return fmt.Errorf("failed to resolve album conflict by path: %w", lookupErr)
		}
		return fmt.Errorf("%w: album %q at %s for user %d: %v", ErrUnresolvedConflict, a.Name, a.Path, a.UserID, insertErr)
	})
	if err != nil {
		return 0, false, err
	}
	if !created {
		log.Printf("database: album %q (%s) for user %d already exists as id %d", a.Name, a.Path, a.UserID, id)
	}
	return id, created, nil
}

// GetAlbum returns a live album.
func (s *Store) GetAlbum(ctx context.Context, id int64) (models.Album, error) {
	return s.fetchAlbum(ctx, sq.Eq{"id": id, "deleted_at": nil})
}

// GetAlbumAny returns an album whether or not it is deleted.
func (s *Store) GetAlbumAny(ctx context.Context, id int64) (models.Album, error) {
	return s.fetchAlbum(ctx, sq.Eq{"id": id})
}

func (s *Store) GetAlbumByPath(ctx context.Context, userID int64, path string) (models.Album, error) {
	return s.fetchAlbum(ctx, sq.Eq{"user_id": userID, "path": strings.Trim(path, "/"), "deleted_at": nil})
}

// GetAlbumByName looks an album up among the siblings under parentID.
func (s *Store) GetAlbumByName(ctx context.Context, userID int64, parentID *int64, name string, includeDeleted bool) (models.Album, error) {
	where := sq.And{sq.Eq{"user_id": userID, "name": name}, s.parentCondition(parentID)}
	if !includeDeleted {
		where = append(where, sq.Eq{"deleted_at": nil})
	}
	return s.fetchAlbum(ctx, where)
}

func (s *Store) ListAlbumsByUser(ctx context.Context, userID int64) ([]models.Album, error) {
	query := psql.Select(s.albumColumns("")...).From(string(TableAlbums)).
		Where(sq.Eq{"user_id": userID, "deleted_at": nil}).
		OrderBy("name ASC", "id ASC")
	albums, err := s.fetchAlbums(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list albums for user %d: %w", userID, err)
	}
	return albums, nil
}

func (s *Store) ListChildAlbums(ctx context.Context, parentID int64) ([]models.Album, error) {
	if !s.schema.HasAlbumParents {
		return []models.Album{}, nil
	}
	query := psql.Select(s.albumColumns("")...).From(string(TableAlbums)).
		Where(sq.Eq{"parent_id": parentID, "deleted_at": nil}).
		OrderBy("name ASC", "id ASC")
	albums, err := s.fetchAlbums(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list child albums of %d: %w", parentID, err)
	}
	return albums, nil
}

// UpdateAlbum applies set to a live album.
func (s *Store) UpdateAlbum(ctx context.Context, id int64, set map[string]any) error {
	if len(set) == 0 {
		return nil
	}
	if _, ok := set["parent_id"]; ok && !s.schema.HasAlbumParents {
		delete(set, "parent_id")
	}
	n, err := s.Update(ctx, TableAlbums, set, sq.Eq{"id": id, "deleted_at": nil})
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetAlbumParent re-links an album under parentID. It also applies to the
// parent of a revisited monitor directory, so it is a plain overwrite.
func (s *Store) SetAlbumParent(ctx context.Context, id int64, parentID *int64) error {
	if !s.schema.HasAlbumParents {
		return nil
	}
	_, err := s.Update(ctx, TableAlbums, map[string]any{"parent_id": parentID}, sq.Eq{"id": id})
	return err
}

func (s *Store) SetAlbumCover(ctx context.Context, albumID int64, imageID *int64) error {
	return s.UpdateAlbum(ctx, albumID, map[string]any{"cover_image_id": imageID})
}

// ClearAlbumCover drops any cover reference to imageID.
func (s *Store) ClearAlbumCover(ctx context.Context, imageID int64) error {
	_, err := s.Update(ctx, TableAlbums, map[string]any{"cover_image_id": nil}, sq.Eq{"cover_image_id": imageID})
	return err
}

// ReparentChildren moves the live children of albumID under newParent. A
// child whose name already exists at the new level keeps its old parent; its
// id is returned in skipped.
func (s *Store) ReparentChildren(ctx context.Context, albumID int64, newParent *int64) (moved int, skipped []int64, err error) {
	children, err := s.ListChildAlbums(ctx, albumID)
	if err != nil {
		return 0, nil, err
	}
	for _, child := range children {
		_, err := s.Update(ctx, TableAlbums, map[string]any{"parent_id": newParent}, sq.Eq{"id": child.ID})
		if err != nil {
			if errors.Is(err, ErrConflict) {
				skipped = append(skipped, child.ID)
				continue
			}
			return moved, skipped, fmt.Errorf("failed to re-parent album %d: %w", child.ID, err)
		}
		moved++
	}
	return moved, skipped, nil
}

func (s *Store) SoftDeleteAlbum(ctx context.Context, id int64) (int64, error) {
	return s.SoftDelete(ctx, TableAlbums, sq.Eq{"id": id})
}

func (s *Store) SoftDeleteAlbumsByUser(ctx context.Context, userID int64) (int64, error) {
	return s.SoftDelete(ctx, TableAlbums, sq.Eq{"user_id": userID})
}

// ReviveAlbum brings a soft-deleted album back at path with a clean slate.
func (s *Store) ReviveAlbum(ctx context.Context, id int64, path string, isPublic bool, description *string) error {
	n, err := s.Update(ctx, TableAlbums, map[string]any{
		"deleted_at":     nil,
		"path":           strings.Trim(path, "/"),
		"is_public":      isPublic,
		"description":    description,
		"cover_image_id": nil,
	}, sq.And{sq.Eq{"id": id}, sq.NotEq{"deleted_at": nil}})
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AlbumAncestors returns the chain from the root down to albumID itself.
// A cycle in the parent links ends the walk instead of looping.
func (s *Store) AlbumAncestors(ctx context.Context, albumID int64) ([]models.Album, error) {
	var chain []models.Album
	seen := make(map[int64]bool)
	next := &albumID
	for next != nil && !seen[*next] {
		seen[*next] = true
		a, err := s.GetAlbumAny(ctx, *next)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) && len(chain) > 0 {
				break
			}
			return nil, err
		}
		chain = append(chain, a)
		next = a.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
