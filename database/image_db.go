package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/camden-git/mediagallery/models"
)

// NewImage is the insert payload for an image row.
type NewImage struct {
	AlbumID     int64
	Filename    string
	MediaType   models.MediaType
	MimeType    *string
	IsPublic    bool
	Description *string
}

// ImageRecord is an image joined with the album that owns it.
type ImageRecord struct {
	models.Image
	AlbumPath    string
	AlbumUserID  int64
	AlbumDeleted bool
}

func (s *Store) imageColumns(prefix string) []string {
	cols := []string{"id", "album_id", "filename", "media_type", "mime_type", "is_public", "rotation",
		"description", "uploaded_at", "deleted_at", "trash_original_path", "trash_thumbnail_path", "trash_expiry"}
	out := make([]string, len(cols))
	for i, c := range cols {
		if !s.schema.HasTrashColumns && (c == "trash_original_path" || c == "trash_thumbnail_path" || c == "trash_expiry") {
			out[i] = "NULL AS " + c
			continue
		}
		out[i] = prefix + c
	}
	return out
}

func imageScanDest(img *models.Image) []any {
	return []any{&img.ID, &img.AlbumID, &img.Filename, &img.MediaType, &img.MimeType, &img.IsPublic,
		&img.Rotation, &img.Description, &img.UploadedAt, &img.DeletedAt,
		&img.TrashOriginalPath, &img.TrashThumbnailPath, &img.TrashExpiry}
}

func (s *Store) imageRecordQuery() sq.SelectBuilder {
	cols := append(s.imageColumns("i."), "a.path", "a.user_id", "a.deleted_at IS NOT NULL")
	return psql.Select(cols...).
		From(string(TableImages) + " i").
		Join(string(TableAlbums) + " a ON a.id = i.album_id")
}

func scanImageRecord(scanner interface {
	Scan(dest ...any) error
}) (ImageRecord, error) {
	var rec ImageRecord
	dest := append(imageScanDest(&rec.Image), &rec.AlbumPath, &rec.AlbumUserID, &rec.AlbumDeleted)
	if err := scanner.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ImageRecord{}, sql.ErrNoRows
		}
		return ImageRecord{}, fmt.Errorf("failed to scan image row: %w", err)
	}
	return rec, nil
}

func (s *Store) fetchImageRecords(ctx context.Context, query sq.SelectBuilder) ([]ImageRecord, error) {
	records := []ImageRecord{}
	err := s.FetchAll(ctx, query, func(rows *sql.Rows) error {
		rec, err := scanImageRecord(rows)
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

// InsertImage adds a live image row. A live row with the same filename
// yields ErrConflict.
func (s *Store) InsertImage(ctx context.Context, img NewImage) (int64, error) {
	mediaType := img.MediaType
	if mediaType == "" {
		mediaType = models.MediaTypeImage
	}
	return s.Insert(ctx, TableImages, map[string]any{
		"album_id":    img.AlbumID,
		"filename":    img.Filename,
		"media_type":  string(mediaType),
		"mime_type":   img.MimeType,
		"is_public":   img.IsPublic,
		"rotation":    0,
		"description": img.Description,
		"uploaded_at": now(),
	})
}

// GetImageRecord returns an image and its album regardless of deletion state.
func (s *Store) GetImageRecord(ctx context.Context, id int64) (ImageRecord, error) {
	sqlStr, args, err := s.imageRecordQuery().Where(sq.Eq{"i.id": id}).Limit(1).ToSql()
	if err != nil {
		return ImageRecord{}, fmt.Errorf("failed to build SQL for GetImageRecord: %w", err)
	}
	return scanImageRecord(s.q().QueryRowContext(ctx, sqlStr, args...))
}

// GetImage returns a live image.
func (s *Store) GetImage(ctx context.Context, id int64) (models.Image, error) {
	var img models.Image
	query := psql.Select(s.imageColumns("")...).From(string(TableImages)).
		Where(sq.Eq{"id": id, "deleted_at": nil}).Limit(1)
	if err := s.FetchOne(ctx, query, imageScanDest(&img)...); err != nil {
		return models.Image{}, err
	}
	return img, nil
}

// GetImageByFilename returns the live image stored under filename.
func (s *Store) GetImageByFilename(ctx context.Context, filename string) (models.Image, error) {
	var img models.Image
	query := psql.Select(s.imageColumns("")...).From(string(TableImages)).
		Where(sq.Eq{"filename": filename, "deleted_at": nil}).Limit(1)
	if err := s.FetchOne(ctx, query, imageScanDest(&img)...); err != nil {
		return models.Image{}, err
	}
	return img, nil
}

// ListImagesByAlbum returns the live images of an album in the given order.
func (s *Store) ListImagesByAlbum(ctx context.Context, albumID int64, sortOrder string) ([]models.Image, error) {
	if !IsValidSortOrder(sortOrder) {
		sortOrder = DefaultSortOrder
	}
	query := psql.Select(s.imageColumns("")...).From(string(TableImages)).
		Where(sq.Eq{"album_id": albumID, "deleted_at": nil}).
		OrderBy(orderByClause(sortOrder)...)

	images := []models.Image{}
	err := s.FetchAll(ctx, query, func(rows *sql.Rows) error {
		var img models.Image
		if err := rows.Scan(imageScanDest(&img)...); err != nil {
			return fmt.Errorf("failed to scan image row: %w", err)
		}
		images = append(images, img)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list images of album %d: %w", albumID, err)
	}
	if sortOrder == SortFilenameNat {
		SortImagesNatural(images)
	}
	return images, nil
}

func (s *Store) CountImagesByAlbum(ctx context.Context, albumID int64, includeDeleted bool) (int64, error) {
	where := sq.Eq{"album_id": albumID}
	if !includeDeleted {
		where["deleted_at"] = nil
	}
	return s.FetchScalar(ctx, psql.Select("COUNT(*)").From(string(TableImages)).Where(where))
}

// UpdateImage applies set to a live image.
func (s *Store) UpdateImage(ctx context.Context, id int64, set map[string]any) error {
	n, err := s.Update(ctx, TableImages, set, sq.Eq{"id": id, "deleted_at": nil})
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkImageTrashed soft-deletes a live image and records where its files
// went. A nil path means that file was not moved.
func (s *Store) MarkImageTrashed(ctx context.Context, id int64, trashOriginal, trashThumb *string, expiry time.Time) error {
	if !s.schema.HasTrashColumns {
		return s.MarkImageDeleted(ctx, id)
	}
	n, err := s.Update(ctx, TableImages, map[string]any{
		"deleted_at":           now(),
		"trash_original_path":  trashOriginal,
		"trash_thumbnail_path": trashThumb,
		"trash_expiry":         expiry.UTC(),
	}, sq.Eq{"id": id, "deleted_at": nil})
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkImageDeleted soft-deletes a live image without trash bookkeeping.
func (s *Store) MarkImageDeleted(ctx context.Context, id int64) error {
	n, err := s.SoftDelete(ctx, TableImages, sq.Eq{"id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClearImageTrash forgets the trash files of a deleted image, leaving a tombstone.
func (s *Store) ClearImageTrash(ctx context.Context, id int64) error {
	if !s.schema.HasTrashColumns {
		return nil
	}
	_, err := s.Update(ctx, TableImages, map[string]any{
		"trash_original_path":  nil,
		"trash_thumbnail_path": nil,
		"trash_expiry":         nil,
	}, sq.And{sq.Eq{"id": id}, sq.NotEq{"deleted_at": nil}})
	return err
}

// RestoreImage makes a trashed image live again.
func (s *Store) RestoreImage(ctx context.Context, id int64) error {
	set := map[string]any{"deleted_at": nil}
	if s.schema.HasTrashColumns {
		set["trash_original_path"] = nil
		set["trash_thumbnail_path"] = nil
		set["trash_expiry"] = nil
	}
	n, err := s.Update(ctx, TableImages, set, sq.And{sq.Eq{"id": id}, sq.NotEq{"deleted_at": nil}})
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func trashPending() sq.Sqlizer {
	return sq.And{
		sq.NotEq{"i.deleted_at": nil},
		sq.Or{sq.NotEq{"i.trash_original_path": nil}, sq.NotEq{"i.trash_thumbnail_path": nil}},
	}
}

// ListExpiredTrash returns deleted images whose trash files expired before cutoff.
func (s *Store) ListExpiredTrash(ctx context.Context, cutoff time.Time) ([]ImageRecord, error) {
	if !s.schema.HasTrashColumns {
		return []ImageRecord{}, nil
	}
	query := s.imageRecordQuery().
		Where(trashPending()).
		Where(sq.Lt{"i.trash_expiry": cutoff.UTC()}).
		OrderBy("i.trash_expiry ASC", "i.id ASC")
	records, err := s.fetchImageRecords(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired trash: %w", err)
	}
	return records, nil
}

// TrashPathInUse reports whether a deleted image other than excludeID still
// records path as one of its trash files.
func (s *Store) TrashPathInUse(ctx context.Context, path string, excludeID int64) (bool, error) {
	if !s.schema.HasTrashColumns {
		return false, nil
	}
	query := psql.Select("COUNT(*)").From(string(TableImages)).Where(sq.And{
		sq.NotEq{"id": excludeID},
		sq.NotEq{"deleted_at": nil},
		sq.Or{sq.Eq{"trash_original_path": path}, sq.Eq{"trash_thumbnail_path": path}},
	})
	n, err := s.FetchScalar(ctx, query)
	if err != nil {
		return false, fmt.Errorf("failed to check trash references of %s: %w", path, err)
	}
	return n > 0, nil
}

// ListTrash returns a user's images that still have files in the trash.
func (s *Store) ListTrash(ctx context.Context, userID int64) ([]ImageRecord, error) {
	if !s.schema.HasTrashColumns {
		return []ImageRecord{}, nil
	}
	query := s.imageRecordQuery().
		Where(trashPending()).
		Where(sq.Eq{"a.user_id": userID}).
		OrderBy("i.deleted_at DESC", "i.id DESC")
	records, err := s.fetchImageRecords(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list trash for user %d: %w", userID, err)
	}
	return records, nil
}

// ListImageRecordsByUser returns every image row under a user's albums,
// deleted or not.
func (s *Store) ListImageRecordsByUser(ctx context.Context, userID int64) ([]ImageRecord, error) {
	return s.fetchImageRecords(ctx, s.imageRecordQuery().Where(sq.Eq{"a.user_id": userID}).OrderBy("i.id ASC"))
}

func (s *Store) SoftDeleteImagesByAlbum(ctx context.Context, albumID int64) (int64, error) {
	return s.SoftDelete(ctx, TableImages, sq.Eq{"album_id": albumID})
}

func (s *Store) SoftDeleteImagesByUser(ctx context.Context, userID int64) (int64, error) {
	return s.SoftDelete(ctx, TableImages, sq.Expr("album_id IN (SELECT id FROM albums WHERE user_id = ?)", userID))
}
