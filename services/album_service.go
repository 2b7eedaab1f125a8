package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/media"
	"github.com/camden-git/mediagallery/metrics"
	"github.com/camden-git/mediagallery/models"
)

const maxAlbumNameLength = 255

// AlbumService owns album CRUD and the deletion cascade.
type AlbumService struct {
	store *database.Store
	env   MediaEnv
}

func NewAlbumService(store *database.Store, env MediaEnv) *AlbumService {
	return &AlbumService{store: store, env: env}
}

// slugify turns "Summer Trip '24" into "summer-trip-24".
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "album"
	}
	if len(slug) > 64 {
		slug = strings.TrimRight(slug[:64], "-")
	}
	return slug
}

func validateAlbumName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", invalid("album name is required")
	case len(name) > maxAlbumNameLength:
		return "", invalid("album name is longer than %d characters", maxAlbumNameLength)
	case strings.ContainsAny(name, `/\`) || name == "." || name == "..":
		return "", invalid("album name %q contains path separators", name)
	}
	return name, nil
}

type CreateAlbumInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	IsPublic    bool    `json:"is_public"`
	ParentID    *int64  `json:"parent_id,omitempty"`
}

// CreateAlbum adds an album with a unique storage directory. A deleted album
// with the same name at the same level is brought back instead of clashing.
func (s *AlbumService) CreateAlbum(ctx context.Context, userID int64, in CreateAlbumInput) (models.Album, error) {
	name, err := validateAlbumName(in.Name)
	if err != nil {
		return models.Album{}, err
	}

	base := media.UserPrefix(userID)
	if in.ParentID != nil {
		parent, err := ownedAlbum(ctx, s.store, userID, *in.ParentID)
		if err != nil {
			return models.Album{}, err
		}
		base = parent.Path
	}
	albumPath := path.Join(base, slugify(name)+"_"+uuid.NewString()[:8])

	existing, err := s.store.GetAlbumByName(ctx, userID, in.ParentID, name, true)
	switch {
	case err == nil && existing.DeletedAt == nil:
		return models.Album{}, fmt.Errorf("%w: album %q already exists", ErrConflict, name)
	case err == nil:
		if err := s.store.ReviveAlbum(ctx, existing.ID, albumPath, in.IsPublic, in.Description); err != nil {
			return models.Album{}, fmt.Errorf("failed to revive album %d: %w", existing.ID, err)
		}
		log.Printf("albums: revived deleted album %d (%q) for user %d", existing.ID, name, userID)
		s.ensureDirs(albumPath)
		return s.store.GetAlbum(ctx, existing.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return models.Album{}, err
	}

	id, created, err := s.store.InsertAlbum(ctx, database.NewAlbum{
		UserID:      userID,
		Name:        name,
		Path:        albumPath,
		ParentID:    in.ParentID,
		IsPublic:    in.IsPublic,
		Description: in.Description,
	})
	if err != nil {
		return models.Album{}, err
	}
	if !created {
		return models.Album{}, fmt.Errorf("%w: album %q already exists", ErrConflict, name)
	}
	s.ensureDirs(albumPath)
	metrics.AlbumsCreated.WithLabelValues("user").Inc()
	log.Printf("albums: user %d created album %d at %s", userID, id, albumPath)
	return s.store.GetAlbum(ctx, id)
}

func (s *AlbumService) ensureDirs(albumPath string) {
	for _, dir := range []string{s.env.Layout.AlbumDir(albumPath), s.env.Layout.AlbumThumbDir(albumPath)} {
		if err := s.env.Files.EnsureDir(dir); err != nil {
			metrics.FilesystemErrors.WithLabelValues("album_mkdir").Inc()
			log.Printf("albums: %v", err)
		}
	}
}

// UpdateAlbumInput carries optional changes. Delete routes the request to
// the deletion cascade and ignores the other fields.
type UpdateAlbumInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsPublic    *bool   `json:"is_public,omitempty"`
	ParentID    *int64  `json:"parent_id,omitempty"`
	MoveToRoot  bool    `json:"move_to_root,omitempty"`
	Delete      bool    `json:"delete,omitempty"`
}

type UpdateAlbumResult struct {
	Album   *models.Album      `json:"album,omitempty"`
	Deleted *DeleteAlbumReport `json:"deleted,omitempty"`
}

func (s *AlbumService) UpdateAlbum(ctx context.Context, userID, albumID int64, in UpdateAlbumInput) (UpdateAlbumResult, error) {
	if in.Delete {
		report, err := s.DeleteAlbum(ctx, userID, albumID)
		if err != nil {
			return UpdateAlbumResult{}, err
		}
		return UpdateAlbumResult{Deleted: &report}, nil
	}

	album, err := ownedAlbum(ctx, s.store, userID, albumID)
	if err != nil {
		return UpdateAlbumResult{}, err
	}

	set := map[string]any{}
	if in.Name != nil {
		name, err := validateAlbumName(*in.Name)
		if err != nil {
			return UpdateAlbumResult{}, err
		}
		set["name"] = name
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if desc == "" {
			set["description"] = nil
		} else {
			set["description"] = desc
		}
	}
	if in.IsPublic != nil {
		set["is_public"] = *in.IsPublic
	}
	switch {
	case in.MoveToRoot:
		set["parent_id"] = nil
	case in.ParentID != nil:
		if err := s.checkParent(ctx, userID, album.ID, *in.ParentID); err != nil {
			return UpdateAlbumResult{}, err
		}
		set["parent_id"] = *in.ParentID
	}

	if err := s.store.UpdateAlbum(ctx, albumID, set); err != nil {
		return UpdateAlbumResult{}, conflict(notFound(err, "album", albumID), "an album with that name already exists here")
	}
	updated, err := s.store.GetAlbum(ctx, albumID)
	if err != nil {
		return UpdateAlbumResult{}, notFound(err, "album", albumID)
	}
	return UpdateAlbumResult{Album: &updated}, nil
}

// checkParent rejects a parent the user does not own or one that would
// close a cycle.
func (s *AlbumService) checkParent(ctx context.Context, userID, albumID, parentID int64) error {
	if parentID == albumID {
		return invalid("album %d cannot be its own parent", albumID)
	}
	if _, err := ownedAlbum(ctx, s.store, userID, parentID); err != nil {
		return err
	}
	chain, err := s.store.AlbumAncestors(ctx, parentID)
	if err != nil {
		return err
	}
	for _, a := range chain {
		if a.ID == albumID {
			return invalid("album %d cannot move below its own descendant %d", albumID, parentID)
		}
	}
	return nil
}

// DeleteAlbumReport lists what the cascade did. Errors only ever hold
// filesystem problems; the catalog change is all or nothing.
type DeleteAlbumReport struct {
	AlbumID            int64    `json:"album_id"`
	ImagesDeleted      int64    `json:"images_deleted"`
	ChildrenReparented int      `json:"children_reparented"`
	Errors             []string `json:"errors,omitempty"`
}

// DeleteAlbum removes an album's files and soft-deletes the album and its
// images. Child albums move up to the deleted album's parent and their
// directories are left in place.
func (s *AlbumService) DeleteAlbum(ctx context.Context, userID, albumID int64) (DeleteAlbumReport, error) {
	album, err := ownedAlbum(ctx, s.store, userID, albumID)
	if err != nil {
		return DeleteAlbumReport{}, err
	}
	images, err := s.store.ListImagesByAlbum(ctx, albumID, database.SortFilenameAsc)
	if err != nil {
		return DeleteAlbumReport{}, err
	}

	report := DeleteAlbumReport{AlbumID: albumID}
	addErr := func(err error) {
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}

	layout := s.env.Layout
	for _, img := range images {
		thumb := layout.ThumbnailPath(album.Path, img.Filename)
		alt := layout.AltThumbnailPath(album.Path, img.Filename)
		addErr(s.env.removeFile(layout.OriginalPath(album.Path, img.Filename), "album_delete"))
		addErr(s.env.removeFile(thumb, "album_delete"))
		if alt != thumb {
			addErr(s.env.removeFile(alt, "album_delete"))
		}
	}

	// a path without a user prefix and a name would point at a whole user tree
	if strings.Count(strings.Trim(album.Path, "/"), "/") >= 1 {
		for _, dir := range []string{layout.AlbumThumbDir(album.Path), layout.AlbumDir(album.Path)} {
			if err := s.env.Files.RemoveStrayFiles(dir); err != nil {
				metrics.FilesystemErrors.WithLabelValues("album_delete").Inc()
				addErr(err)
			}
			if _, err := s.env.Files.RemoveDirIfEmpty(dir); err != nil {
				metrics.FilesystemErrors.WithLabelValues("album_delete").Inc()
				addErr(err)
			}
		}
	} else {
		addErr(fmt.Errorf("album %d has no album directory in path %q, directories left in place", albumID, album.Path))
	}

	err = s.store.WithTx(ctx, func(tx *database.Store) error {
		n, err := tx.SoftDeleteImagesByAlbum(ctx, albumID)
		if err != nil {
			return err
		}
		report.ImagesDeleted = n

		moved, skipped, err := tx.ReparentChildren(ctx, albumID, album.ParentID)
		if err != nil {
			return err
		}
		report.ChildrenReparented = moved
		for _, id := range skipped {
			log.Printf("albums: child album %d keeps deleted parent %d, its name is taken one level up", id, albumID)
		}

		if _, err := tx.SoftDeleteAlbum(ctx, albumID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return DeleteAlbumReport{}, fmt.Errorf("failed to delete album %d: %w", albumID, err)
	}

	metrics.AlbumsDeleted.Inc()
	log.Printf("albums: album %d deleted with %d images (%d filesystem errors)", albumID, report.ImagesDeleted, len(report.Errors))
	return report, nil
}

// SetCover points the album cover at one of its live images, or clears it
// when imageID is nil.
func (s *AlbumService) SetCover(ctx context.Context, userID, albumID int64, imageID *int64) error {
	if _, err := ownedAlbum(ctx, s.store, userID, albumID); err != nil {
		return err
	}
	if imageID != nil {
		img, err := s.store.GetImage(ctx, *imageID)
		if err != nil {
			return notFound(err, "image", *imageID)
		}
		if img.AlbumID != albumID {
			return invalid("image %d does not belong to album %d", *imageID, albumID)
		}
	}
	return notFound(s.store.SetAlbumCover(ctx, albumID, imageID), "album", albumID)
}

// ImageView is an image as shown in listings.
type ImageView struct {
	models.Image
	ThumbnailURL string `json:"thumbnail_url"`
}

func (s *AlbumService) imageViews(albumPath string, images []models.Image) []ImageView {
	views := make([]ImageView, 0, len(images))
	for _, img := range images {
		views = append(views, ImageView{Image: img, ThumbnailURL: s.env.Layout.ThumbnailURL(albumPath, img.Filename)})
	}
	return views
}

type AlbumView struct {
	Album    models.Album   `json:"album"`
	CoverURL string         `json:"cover_url,omitempty"`
	Children []models.Album `json:"children"`
	Images   []ImageView    `json:"images"`
}

// GetAlbum returns an album with its children and images. Other users only
// see public albums, and only the public images in them.
func (s *AlbumService) GetAlbum(ctx context.Context, userID, albumID int64, sortOrder string) (AlbumView, error) {
	album, err := s.store.GetAlbum(ctx, albumID)
	if err != nil {
		return AlbumView{}, notFound(err, "album", albumID)
	}
	owner := album.UserID == userID
	if !owner && !album.IsPublic {
		return AlbumView{}, fmt.Errorf("%w: album %d", ErrForbidden, albumID)
	}

	images, err := s.store.ListImagesByAlbum(ctx, albumID, sortOrder)
	if err != nil {
		return AlbumView{}, err
	}
	children, err := s.store.ListChildAlbums(ctx, albumID)
	if err != nil {
		return AlbumView{}, err
	}
	if !owner {
		images = filterImages(images, func(img models.Image) bool { return img.IsPublic || album.IsPublic })
		children = filterAlbums(children, func(a models.Album) bool { return a.IsPublic })
	}

	view := AlbumView{Album: album, Children: children, Images: s.imageViews(album.Path, images)}
	if album.CoverImageID != nil {
		for _, img := range images {
			if img.ID == *album.CoverImageID {
				view.CoverURL = s.env.Layout.ThumbnailURL(album.Path, img.Filename)
				break
			}
		}
	}
	return view, nil
}

func (s *AlbumService) ListAlbums(ctx context.Context, userID int64) ([]models.Album, error) {
	return s.store.ListAlbumsByUser(ctx, userID)
}

type Breadcrumb struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Breadcrumbs returns the path from the top-level album down to albumID.
func (s *AlbumService) Breadcrumbs(ctx context.Context, userID, albumID int64) ([]Breadcrumb, error) {
	album, err := s.store.GetAlbum(ctx, albumID)
	if err != nil {
		return nil, notFound(err, "album", albumID)
	}
	if album.UserID != userID && !album.IsPublic {
		return nil, fmt.Errorf("%w: album %d", ErrForbidden, albumID)
	}
	chain, err := s.store.AlbumAncestors(ctx, albumID)
	if err != nil {
		return nil, err
	}
	crumbs := make([]Breadcrumb, 0, len(chain))
	for _, a := range chain {
		crumbs = append(crumbs, Breadcrumb{ID: a.ID, Name: a.Name})
	}
	return crumbs, nil
}

func filterImages(images []models.Image, keep func(models.Image) bool) []models.Image {
	out := images[:0]
	for _, img := range images {
		if keep(img) {
			out = append(out, img)
		}
	}
	return out
}

func filterAlbums(albums []models.Album, keep func(models.Album) bool) []models.Album {
	out := albums[:0]
	for _, a := range albums {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}
