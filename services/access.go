package services

import (
	"context"
	"fmt"

	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/models"
)

// ownedAlbum loads a live album and checks that userID owns it.
func ownedAlbum(ctx context.Context, store *database.Store, userID, albumID int64) (models.Album, error) {
	if albumID <= 0 {
		return models.Album{}, invalid("album id %d", albumID)
	}
	album, err := store.GetAlbum(ctx, albumID)
	if err != nil {
		return models.Album{}, notFound(err, "album", albumID)
	}
	if album.UserID != userID {
		return models.Album{}, fmt.Errorf("%w: album %d", ErrForbidden, albumID)
	}
	return album, nil
}

// ownedImage loads an image with its album and checks ownership through the
// album. Deleted images are only returned when includeDeleted is set.
func ownedImage(ctx context.Context, store *database.Store, userID, imageID int64, includeDeleted bool) (database.ImageRecord, error) {
	if imageID <= 0 {
		return database.ImageRecord{}, invalid("image id %d", imageID)
	}
	rec, err := store.GetImageRecord(ctx, imageID)
	if err != nil {
		return database.ImageRecord{}, notFound(err, "image", imageID)
	}
	if rec.DeletedAt != nil && !includeDeleted {
		return database.ImageRecord{}, fmt.Errorf("%w: image %d", ErrNotFound, imageID)
	}
	if rec.AlbumUserID != userID {
		return database.ImageRecord{}, fmt.Errorf("%w: image %d", ErrForbidden, imageID)
	}
	return rec, nil
}

// canView reports whether userID may see a live image: its owner, or anyone
// when the image and its album are public.
func canView(rec database.ImageRecord, album models.Album, userID int64) bool {
	if rec.AlbumUserID == userID {
		return true
	}
	return rec.IsPublic || album.IsPublic
}
