package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/media"
	"github.com/camden-git/mediagallery/models"
)

// ImageService handles per-image edits that do not change the image's
// lifecycle state.
type ImageService struct {
	store *database.Store
	env   MediaEnv
}

func NewImageService(store *database.Store, env MediaEnv) *ImageService {
	return &ImageService{store: store, env: env}
}

// ImageDetail is a live image with what the viewer page needs.
type ImageDetail struct {
	models.Image
	AlbumPath    string          `json:"album_path"`
	ThumbnailURL string          `json:"thumbnail_url"`
	IsFavorite   bool            `json:"is_favorite"`
	Metadata     *media.Metadata `json:"metadata,omitempty"`
}

func (s *ImageService) GetImage(ctx context.Context, userID, imageID int64) (ImageDetail, error) {
	rec, err := s.store.GetImageRecord(ctx, imageID)
	if err != nil {
		return ImageDetail{}, notFound(err, "image", imageID)
	}
	if rec.DeletedAt != nil || rec.AlbumDeleted {
		return ImageDetail{}, fmt.Errorf("%w: image %d", ErrNotFound, imageID)
	}
	album, err := s.store.GetAlbum(ctx, rec.AlbumID)
	if err != nil {
		return ImageDetail{}, notFound(err, "album", rec.AlbumID)
	}
	if !canView(rec, album, userID) {
		return ImageDetail{}, fmt.Errorf("%w: image %d", ErrForbidden, imageID)
	}

	detail := ImageDetail{
		Image:        rec.Image,
		AlbumPath:    rec.AlbumPath,
		ThumbnailURL: s.env.Layout.ThumbnailURL(rec.AlbumPath, rec.Filename),
	}
	if rec.MediaType == models.MediaTypeImage {
		detail.Metadata = media.GetImageMetadata(s.env.Layout.OriginalPath(rec.AlbumPath, rec.Filename))
	}
	if userID > 0 {
		if detail.IsFavorite, err = s.store.IsFavorite(ctx, userID, imageID); err != nil {
			return ImageDetail{}, err
		}
	}
	return detail, nil
}

// Rotate adds degreesCW to the stored rotation and turns the thumbnail by the
// same amount. The original is left untouched; viewers apply Rotation.
func (s *ImageService) Rotate(ctx context.Context, userID, imageID int64, degreesCW int) (models.Image, error) {
	if degreesCW%90 != 0 {
		return models.Image{}, invalid("rotation must be a multiple of 90 degrees, got %d", degreesCW)
	}
	rec, err := ownedImage(ctx, s.store, userID, imageID, false)
	if err != nil {
		return models.Image{}, err
	}
	if models.NormalizeRotation(degreesCW) == 0 {
		return rec.Image, nil
	}
	rotation := models.NormalizeRotation(rec.Rotation + degreesCW)

	layout := s.env.Layout
	thumb := layout.ThumbnailPath(rec.AlbumPath, rec.Filename)
	turn := degreesCW
	if !fileExists(thumb) {
		// a fresh thumbnail has no rotation applied yet
		if err := s.env.renderThumbnail(ctx, layout.OriginalPath(rec.AlbumPath, rec.Filename), thumb, rec.MediaType); err != nil {
			log.Printf("images: regenerating thumbnail of image %d: %v", imageID, err)
		}
		turn = rotation
	}
	if fileExists(thumb) {
		if err := s.env.Processor.RotateImage(thumb, turn); err != nil {
			return models.Image{}, fmt.Errorf("failed to rotate thumbnail of image %d: %w", imageID, err)
		}
	}

	if err := s.store.UpdateImage(ctx, imageID, map[string]any{"rotation": rotation}); err != nil {
		return models.Image{}, notFound(err, "image", imageID)
	}
	log.Printf("images: image %d rotated to %d degrees", imageID, rotation)
	return s.store.GetImage(ctx, imageID)
}

func (s *ImageService) UpdateDescription(ctx context.Context, userID, imageID int64, description string) (models.Image, error) {
	if _, err := ownedImage(ctx, s.store, userID, imageID, false); err != nil {
		return models.Image{}, err
	}
	var value any
	if d := strings.TrimSpace(description); d != "" {
		value = d
	}
	if err := s.store.UpdateImage(ctx, imageID, map[string]any{"description": value}); err != nil {
		return models.Image{}, notFound(err, "image", imageID)
	}
	return s.store.GetImage(ctx, imageID)
}

func (s *ImageService) SetVisibility(ctx context.Context, userID, imageID int64, public bool) (models.Image, error) {
	if _, err := ownedImage(ctx, s.store, userID, imageID, false); err != nil {
		return models.Image{}, err
	}
	if err := s.store.UpdateImage(ctx, imageID, map[string]any{"is_public": public}); err != nil {
		return models.Image{}, notFound(err, "image", imageID)
	}
	return s.store.GetImage(ctx, imageID)
}
