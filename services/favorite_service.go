package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path"
	"path/filepath"
	"strconv"

	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/media"
)

// FavoriteService stars images and mirrors the stars as symlinks in the
// user's favorites directory when enabled.
type FavoriteService struct {
	store    *database.Store
	env      MediaEnv
	symlinks bool
}

func NewFavoriteService(store *database.Store, env MediaEnv, symlinks bool) *FavoriteService {
	return &FavoriteService{store: store, env: env, symlinks: symlinks}
}

func (s *FavoriteService) linkPath(userID, imageID int64, filename string) string {
	return favoriteLinkPath(s.env.Layout, userID, imageID, filename)
}

func favoriteLinkPath(layout media.Layout, userID, imageID int64, filename string) string {
	return filepath.Join(layout.FavoritesDir(userID), strconv.FormatInt(imageID, 10)+"_"+path.Base(filepath.ToSlash(filename)))
}

// unlinkFavorites drops the favorites symlinks pointing at an image whose
// original is leaving the users tree. The stars themselves stay.
func unlinkFavorites(ctx context.Context, store *database.Store, env MediaEnv, rec database.ImageRecord) {
	userIDs, err := store.ListFavoriteUserIDs(ctx, rec.ID)
	if err != nil {
		log.Printf("favorites: %v", err)
		return
	}
	for _, userID := range userIDs {
		env.removeFile(favoriteLinkPath(env.Layout, userID, rec.ID, rec.Filename), "favorite_unlink")
	}
}

// Add stars an image the user can see. Starring twice is not an error.
func (s *FavoriteService) Add(ctx context.Context, userID, imageID int64) error {
	rec, err := s.store.GetImageRecord(ctx, imageID)
	if err != nil {
		return notFound(err, "image", imageID)
	}
	if rec.DeletedAt != nil || rec.AlbumDeleted {
		return fmt.Errorf("%w: image %d", ErrNotFound, imageID)
	}
	album, err := s.store.GetAlbum(ctx, rec.AlbumID)
	if err != nil {
		return notFound(err, "album", rec.AlbumID)
	}
	if !canView(rec, album, userID) {
		return fmt.Errorf("%w: image %d", ErrForbidden, imageID)
	}

	added, err := s.store.AddFavorite(ctx, userID, imageID)
	if err != nil {
		return err
	}
	if !added || !s.symlinks {
		return nil
	}

	original := s.env.Layout.OriginalPath(rec.AlbumPath, rec.Filename)
	if !fileExists(original) {
		log.Printf("favorites: original of image %d missing, no link created", imageID)
		return nil
	}
	if err := s.env.Files.EnsureDir(s.env.Layout.FavoritesDir(userID)); err != nil {
		log.Printf("favorites: %v", err)
		return nil
	}
	if err := s.env.Files.Symlink(original, s.linkPath(userID, imageID, rec.Filename)); err != nil && !errors.Is(err, fs.ErrExist) {
		log.Printf("favorites: linking image %d for user %d: %v", imageID, userID, err)
	}
	return nil
}

// Remove drops the star and its symlink. It reports whether a star existed.
func (s *FavoriteService) Remove(ctx context.Context, userID, imageID int64) (bool, error) {
	removed, err := s.store.RemoveFavorite(ctx, userID, imageID)
	if err != nil {
		return false, err
	}
	if removed && s.symlinks {
		if rec, err := s.store.GetImageRecord(ctx, imageID); err == nil {
			s.env.removeFile(s.linkPath(userID, imageID, rec.Filename), "favorite_unlink")
		}
	}
	return removed, nil
}

func (s *FavoriteService) List(ctx context.Context, userID int64) ([]ImageView, error) {
	records, err := s.store.ListFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]ImageView, 0, len(records))
	for _, rec := range records {
		views = append(views, ImageView{Image: rec.Image, ThumbnailURL: s.env.Layout.ThumbnailURL(rec.AlbumPath, rec.Filename)})
	}
	return views, nil
}
