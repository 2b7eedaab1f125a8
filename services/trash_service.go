package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/metrics"
)

const DefaultTrashRetention = 30 * 24 * time.Hour

// TrashService moves deleted images through the trash and reclaims expired entries.
type TrashService struct {
	store     *database.Store
	env       MediaEnv
	retention time.Duration
	now       func() time.Time
}

func NewTrashService(store *database.Store, env MediaEnv, retention time.Duration) *TrashService {
	if retention <= 0 {
		retention = DefaultTrashRetention
	}
	return &TrashService{store: store, env: env, retention: retention, now: time.Now}
}

// TrashResult describes what a soft delete did on disk.
type TrashResult struct {
	ImageID            int64     `json:"image_id"`
	TrashOriginalPath  *string   `json:"trash_original_path,omitempty"`
	TrashThumbnailPath *string   `json:"trash_thumbnail_path,omitempty"`
	TrashExpiry        time.Time `json:"trash_expiry"`
	Forced             bool      `json:"forced"`
}

// SoftTrash moves an image's original and thumbnail into the trash tree and
// marks the row deleted with an expiry. A file that cannot be moved is left
// where it is and its trash path stays NULL; the row is marked regardless.
func (s *TrashService) SoftTrash(ctx context.Context, userID, imageID int64) (TrashResult, error) {
	if !s.store.Schema().HasTrashColumns {
		log.Printf("trash: catalog has no trash columns, force deleting image %d", imageID)
		if err := s.ForceDelete(ctx, userID, imageID); err != nil {
			return TrashResult{}, err
		}
		return TrashResult{ImageID: imageID, Forced: true}, nil
	}

	rec, err := ownedImage(ctx, s.store, userID, imageID, false)
	if err != nil {
		return TrashResult{}, err
	}

	layout := s.env.Layout
	original := layout.OriginalPath(rec.AlbumPath, rec.Filename)
	thumb := layout.ThumbnailPath(rec.AlbumPath, rec.Filename)
	trashOriginal := trashTarget(layout.TrashOriginalPath(layout.RelativeName(rec.AlbumPath, rec.Filename)), imageID)
	trashThumb := trashTarget(layout.TrashThumbnailPath(rec.AlbumPath, rec.Filename), imageID)

	result := TrashResult{ImageID: imageID, TrashExpiry: s.now().Add(s.retention).UTC()}
	if s.move(original, trashOriginal) {
		result.TrashOriginalPath = &trashOriginal
	}
	if s.move(thumb, trashThumb) {
		result.TrashThumbnailPath = &trashThumb
	}
	unlinkFavorites(ctx, s.store, s.env, rec)

	err = s.store.WithTx(ctx, func(tx *database.Store) error {
		if err := tx.MarkImageTrashed(ctx, imageID, result.TrashOriginalPath, result.TrashThumbnailPath, result.TrashExpiry); err != nil {
			return notFound(err, "image", imageID)
		}
		return tx.ClearAlbumCover(ctx, imageID)
	})
	if err != nil {
		return TrashResult{}, fmt.Errorf("failed to mark image %d trashed: %w", imageID, err)
	}

	metrics.TrashOperations.WithLabelValues("soft").Inc()
	log.Printf("trash: image %d moved to trash until %s", imageID, result.TrashExpiry.Format(time.RFC3339))
	return result, nil
}

// trashTarget returns dst, or a name carrying the image id when an earlier
// trashed file with the same name already sits at dst.
func trashTarget(dst string, imageID int64) string {
	if !pathTaken(dst) {
		return dst
	}
	ext := filepath.Ext(dst)
	stem := strings.TrimSuffix(dst, ext)
	candidate := fmt.Sprintf("%s_%d%s", stem, imageID, ext)
	for n := 2; pathTaken(candidate); n++ {
		candidate = fmt.Sprintf("%s_%d_%d%s", stem, imageID, n, ext)
	}
	return candidate
}

func pathTaken(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// move renames src to dst and reports whether the file now sits at dst.
func (s *TrashService) move(src, dst string) bool {
	if err := s.env.Files.Move(src, dst); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			metrics.FilesystemErrors.WithLabelValues("trash_move").Inc()
		}
		log.Printf("trash: could not move %s: %v", src, err)
		return false
	}
	return true
}

// ForceDelete removes an image's files immediately and marks the row
// deleted without trash bookkeeping. On an image already in the trash it
// purges the trash copies instead.
func (s *TrashService) ForceDelete(ctx context.Context, userID, imageID int64) error {
	rec, err := ownedImage(ctx, s.store, userID, imageID, true)
	if err != nil {
		return err
	}

	if rec.DeletedAt != nil {
		if !rec.InTrash() {
			return fmt.Errorf("%w: image %d is already deleted", ErrNotFound, imageID)
		}
		s.purge(ctx, rec)
		if err := s.store.ClearImageTrash(ctx, imageID); err != nil {
			return fmt.Errorf("failed to clear trash of image %d: %w", imageID, err)
		}
		metrics.TrashOperations.WithLabelValues("purge").Inc()
		log.Printf("trash: image %d purged from trash", imageID)
		return nil
	}

	layout := s.env.Layout
	unlinkFavorites(ctx, s.store, s.env, rec)
	s.env.removeFile(layout.OriginalPath(rec.AlbumPath, rec.Filename), "force_delete")
	s.env.removeFile(layout.ThumbnailPath(rec.AlbumPath, rec.Filename), "force_delete")

	err = s.store.WithTx(ctx, func(tx *database.Store) error {
		if err := tx.MarkImageDeleted(ctx, imageID); err != nil {
			return notFound(err, "image", imageID)
		}
		return tx.ClearAlbumCover(ctx, imageID)
	})
	if err != nil {
		return fmt.Errorf("failed to mark image %d deleted: %w", imageID, err)
	}
	metrics.TrashOperations.WithLabelValues("force").Inc()
	log.Printf("trash: image %d force deleted", imageID)
	return nil
}

// purge unlinks a deleted image's trash files. A file another deleted row
// still records is left for that row to reclaim.
func (s *TrashService) purge(ctx context.Context, rec database.ImageRecord) {
	for _, p := range []*string{rec.TrashOriginalPath, rec.TrashThumbnailPath} {
		if p == nil {
			continue
		}
		inUse, err := s.store.TrashPathInUse(ctx, *p, rec.ID)
		if err != nil {
			log.Printf("trash: %v", err)
			continue
		}
		if inUse {
			log.Printf("trash: %s still belongs to another image, not removed", *p)
			continue
		}
		s.env.removeFile(*p, "trash_purge")
	}
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Purged int `json:"purged"`
	Failed int `json:"failed"`
}

// Sweep erases the trash files of every image whose expiry has passed and
// leaves the row as a tombstone, then prunes empty directories in the trash
// tree. It only touches expired rows, so it can run alongside requests.
func (s *TrashService) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() {
		metrics.TrashSweepDuration.Observe(time.Since(start).Seconds())
		metrics.TrashSweepLastRunTimestamp.SetToCurrentTime()
	}()

	var result SweepResult
	expired, err := s.store.ListExpiredTrash(ctx, s.now())
	if err != nil {
		return result, err
	}

	for _, rec := range expired {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s.purge(ctx, rec)
		if err := s.store.ClearImageTrash(ctx, rec.ID); err != nil {
			log.Printf("trash: failed to clear trash fields of image %d: %v", rec.ID, err)
			result.Failed++
			continue
		}
		metrics.TrashOperations.WithLabelValues("purge").Inc()
		result.Purged++
	}

	for _, root := range []string{s.env.Layout.TrashThumbsRoot, s.env.Layout.TrashUsersRoot} {
		if err := s.env.Files.PruneEmptyDirs(root); err != nil {
			metrics.FilesystemErrors.WithLabelValues("trash_prune").Inc()
			log.Printf("trash: pruning %s: %v", root, err)
		}
	}

	log.Printf("trash: sweep purged %d expired images (%d failed)", result.Purged, result.Failed)
	return result, nil
}

// Restore moves a trashed image's files back and makes the row live again.
// Images whose trash has been swept, or whose album is gone, stay deleted.
func (s *TrashService) Restore(ctx context.Context, userID, imageID int64) error {
	rec, err := ownedImage(ctx, s.store, userID, imageID, true)
	if err != nil {
		return err
	}
	if rec.DeletedAt == nil {
		return invalid("image %d is not deleted", imageID)
	}
	if !rec.InTrash() {
		return fmt.Errorf("%w: image %d is no longer in the trash", ErrNotFound, imageID)
	}
	if rec.AlbumDeleted {
		return fmt.Errorf("%w: album of image %d was deleted", ErrConflict, imageID)
	}

	layout := s.env.Layout
	original := layout.OriginalPath(rec.AlbumPath, rec.Filename)
	thumb := layout.ThumbnailPath(rec.AlbumPath, rec.Filename)
	if fileExists(original) {
		return fmt.Errorf("%w: %s already exists", ErrConflict, layout.RelativeName(rec.AlbumPath, rec.Filename))
	}

	// the row goes live first so a filename clash leaves the files in the trash
	if err := s.store.RestoreImage(ctx, imageID); err != nil {
		return conflict(notFound(err, "image", imageID), "image %d clashes with a live file", imageID)
	}
	if rec.TrashOriginalPath != nil {
		if err := s.env.Files.Move(*rec.TrashOriginalPath, original); err != nil {
			metrics.FilesystemErrors.WithLabelValues("trash_restore").Inc()
			log.Printf("trash: restoring original of image %d: %v", imageID, err)
		}
	}
	if rec.TrashThumbnailPath != nil {
		if err := s.env.Files.Move(*rec.TrashThumbnailPath, thumb); err != nil {
			log.Printf("trash: restoring thumbnail of image %d: %v", imageID, err)
		}
	}
	if !fileExists(thumb) && fileExists(original) {
		if err := s.env.renderThumbnail(ctx, original, thumb, rec.MediaType); err != nil {
			log.Printf("trash: regenerating thumbnail of image %d: %v", imageID, err)
		}
	}

	metrics.TrashOperations.WithLabelValues("restore").Inc()
	log.Printf("trash: image %d restored", imageID)
	return nil
}

// TrashEntry is one image waiting in a user's trash.
type TrashEntry struct {
	ImageID      int64     `json:"image_id"`
	AlbumID      int64     `json:"album_id"`
	Filename     string    `json:"filename"`
	MediaType    string    `json:"media_type"`
	DeletedAt    time.Time `json:"deleted_at"`
	TrashExpiry  time.Time `json:"trash_expiry"`
	HasOriginal  bool      `json:"has_original"`
	HasThumbnail bool      `json:"has_thumbnail"`
}

func (s *TrashService) ListTrash(ctx context.Context, userID int64) ([]TrashEntry, error) {
	records, err := s.store.ListTrash(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := make([]TrashEntry, 0, len(records))
	for _, rec := range records {
		e := TrashEntry{
			ImageID:      rec.ID,
			AlbumID:      rec.AlbumID,
			Filename:     rec.Filename,
			MediaType:    string(rec.MediaType),
			HasOriginal:  rec.TrashOriginalPath != nil,
			HasThumbnail: rec.TrashThumbnailPath != nil,
		}
		if rec.DeletedAt != nil {
			e.DeletedAt = *rec.DeletedAt
		}
		if rec.TrashExpiry != nil {
			e.TrashExpiry = *rec.TrashExpiry
		}
		entries = append(entries, e)
	}
	return entries, nil
}
