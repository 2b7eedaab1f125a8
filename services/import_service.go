package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/media"
	"github.com/camden-git/mediagallery/metrics"
	"github.com/camden-git/mediagallery/models"
)

// ImportService stores uploaded files from an interactive folder import.
type ImportService struct {
	store *database.Store
	env   MediaEnv
}

func NewImportService(store *database.Store, env MediaEnv) *ImportService {
	return &ImportService{store: store, env: env}
}

type ImportResult struct {
	Image   models.Image `json:"image"`
	AlbumID int64        `json:"album_id"`
	Created bool         `json:"created"`
}

// cleanRelativePath splits "Day1/../Day1/b.jpg" into ["Day1", "b.jpg"] and
// rejects anything that would climb out of the album or hide the file.
func cleanRelativePath(rel string) ([]string, error) {
	rel = strings.ReplaceAll(rel, `\`, "/")
	if rel == "" {
		return nil, invalid("relative path is required")
	}
	parts := strings.Split(strings.Trim(path.Clean("/"+rel), "/"), "/")
	for _, p := range parts {
		if p == "" || p == ".." || strings.HasPrefix(p, ".") {
			return nil, invalid("relative path %q is not allowed", rel)
		}
	}
	return parts, nil
}

// ImportUpload writes one uploaded file below albumID, creating sub-albums for
// the directories in relativePath. Uploading a file that is already cataloged
// returns the existing row and leaves the bytes on disk alone.
func (s *ImportService) ImportUpload(ctx context.Context, userID, albumID int64, relativePath string, data io.Reader) (ImportResult, error) {
	parts, err := cleanRelativePath(relativePath)
	if err != nil {
		return ImportResult{}, err
	}
	name := parts[len(parts)-1]
	mediaType, ok := s.env.Types.MediaTypeFor(name)
	if !ok {
		return ImportResult{}, invalid("unsupported file type: %s", name)
	}

	album, err := ownedAlbum(ctx, s.store, userID, albumID)
	if err != nil {
		return ImportResult{}, err
	}
	for _, dir := range parts[:len(parts)-1] {
		if album, err = s.subAlbum(ctx, album, dir); err != nil {
			return ImportResult{}, err
		}
	}

	layout := s.env.Layout
	dst := layout.OriginalPath(album.Path, name)
	relName, err := layout.RelativeToUsersRoot(dst)
	if err != nil {
		return ImportResult{}, err
	}
	if existing, err := s.store.GetImageByFilename(ctx, relName); err == nil {
		return ImportResult{Image: existing, AlbumID: existing.AlbumID}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return ImportResult{}, err
	}

	if err := s.env.Files.Save(dst, data); err != nil {
		metrics.ImportErrors.WithLabelValues("upload").Inc()
		return ImportResult{}, fmt.Errorf("failed to store upload %s: %w", relName, err)
	}
	if mediaType == models.MediaTypeImage {
		if err := s.env.Processor.AutoRotateImage(dst); err != nil {
			log.Printf("import: auto-rotate %s: %v", relName, err)
		}
	}
	if err := s.env.renderThumbnail(ctx, dst, layout.ThumbnailPath(album.Path, name), mediaType); err != nil {
		log.Printf("import: thumbnail for %s: %v", relName, err)
	}
	if mediaType == models.MediaTypeImage {
		if meta := media.GetImageMetadata(dst); meta.Width != nil && meta.Height != nil {
			log.Printf("import: %s is %dx%d", relName, *meta.Width, *meta.Height)
		}
	}

	mime := media.MimeTypeFor(name)
	id, err := s.store.InsertImage(ctx, database.NewImage{
		AlbumID:   album.ID,
		Filename:  relName,
		MediaType: mediaType,
		MimeType:  &mime,
		IsPublic:  album.IsPublic,
	})
	if errors.Is(err, database.ErrConflict) {
		// a concurrent upload of the same file won
		existing, gerr := s.store.GetImageByFilename(ctx, relName)
		if gerr != nil {
			return ImportResult{}, gerr
		}
		return ImportResult{Image: existing, AlbumID: existing.AlbumID}, nil
	}
	if err != nil {
		metrics.ImportErrors.WithLabelValues("upload").Inc()
		return ImportResult{}, fmt.Errorf("failed to catalog %s: %w", relName, err)
	}

	img, err := s.store.GetImage(ctx, id)
	if err != nil {
		return ImportResult{}, err
	}
	metrics.MediaImported.WithLabelValues("upload").Inc()
	log.Printf("import: user %d uploaded %s as image %d", userID, relName, id)
	return ImportResult{Image: img, AlbumID: album.ID, Created: true}, nil
}

// subAlbum resolves a directory of an upload to a child album, bringing a
// deleted one back.
func (s *ImportService) subAlbum(ctx context.Context, parent models.Album, dir string) (models.Album, error) {
	albumPath := path.Join(parent.Path, dir)
	album, _, err := ensureSubAlbum(ctx, s.store, parent, albumPath, dir, "upload")
	if errors.Is(err, errAlbumDeleted) {
		if err := s.store.ReviveAlbum(ctx, album.ID, albumPath, parent.IsPublic, nil); err != nil {
			return models.Album{}, fmt.Errorf("failed to revive album %d: %w", album.ID, err)
		}
		if err := s.store.SetAlbumParent(ctx, album.ID, &parent.ID); err != nil {
			return models.Album{}, err
		}
		log.Printf("import: revived deleted album %d for %s", album.ID, albumPath)
		return s.store.GetAlbum(ctx, album.ID)
	}
	if err != nil {
		return models.Album{}, fmt.Errorf("failed to prepare album for %s: %w", albumPath, err)
	}
	return album, nil
}
