package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/metrics"
	"github.com/camden-git/mediagallery/models"
)

// errAlbumDeleted marks a directory whose album row was soft-deleted.
var errAlbumDeleted = errors.New("album is deleted")

// ensureSubAlbum returns the live album stored at albumPath under parent,
// creating it when missing. The parent link is written on every call so a
// moved or orphaned row is re-attached. A path that resolves to a deleted
// row yields errAlbumDeleted together with that row.
func ensureSubAlbum(ctx context.Context, store *database.Store, parent models.Album, albumPath, name, source string) (album models.Album, created bool, err error) {
	album, err = store.GetAlbumByPath(ctx, parent.UserID, albumPath)
	switch {
	case err == nil:
		if err := store.SetAlbumParent(ctx, album.ID, &parent.ID); err != nil {
			return models.Album{}, false, fmt.Errorf("failed to re-link album %d: %w", album.ID, err)
		}
		album.ParentID = &parent.ID
		return album, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.Album{}, false, err
	}

	id, created, err := store.InsertAlbum(ctx, database.NewAlbum{
		UserID:   parent.UserID,
		Name:     name,
		Path:     albumPath,
		ParentID: &parent.ID,
		IsPublic: parent.IsPublic,
	})
	if err != nil {
		return models.Album{}, false, err
	}
	album, err = store.GetAlbumAny(ctx, id)
	if err != nil {
		return models.Album{}, false, err
	}
	if album.DeletedAt != nil {
		return album, false, errAlbumDeleted
	}
	if created {
		metrics.AlbumsCreated.WithLabelValues(source).Inc()
	} else if err := store.SetAlbumParent(ctx, album.ID, &parent.ID); err != nil {
		return models.Album{}, false, fmt.Errorf("failed to re-link album %d: %w", album.ID, err)
	}
	return album, created, nil
}
