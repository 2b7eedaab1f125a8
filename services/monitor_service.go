package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/media"
	"github.com/camden-git/mediagallery/metrics"
	"github.com/camden-git/mediagallery/models"
)

// MonitorService imports media that was dropped straight into a user's
// storage tree. Files are cataloged where they sit; nothing is copied.
type MonitorService struct {
	store *database.Store
	env   MediaEnv
}

func NewMonitorService(store *database.Store, env MediaEnv) *MonitorService {
	return &MonitorService{store: store, env: env}
}

type MonitorOptions struct {
	// Rescan also walks top-level directories that already have an album.
	Rescan bool
	// UserIDs limits the run; empty means every active user.
	UserIDs []int64
}

type MonitorReport struct {
	UsersScanned   int           `json:"users_scanned"`
	AlbumsCreated  int           `json:"albums_created"`
	AlbumsSkipped  int           `json:"albums_skipped"`
	ImagesImported int           `json:"images_imported"`
	ImagesExisting int           `json:"images_existing"`
	Errors         int           `json:"errors"`
	Duration       time.Duration `json:"duration"`
}

// Run scans each user's tree. Problems with single files or directories are
// logged and counted; only a failure to list users aborts the run.
func (s *MonitorService) Run(ctx context.Context, opts MonitorOptions) (MonitorReport, error) {
	start := time.Now()
	metrics.MonitorRunsTotal.Inc()

	var report MonitorReport
	userIDs := opts.UserIDs
	if len(userIDs) == 0 {
		ids, err := s.store.ListActiveUserIDs(ctx)
		if err != nil {
			return report, err
		}
		userIDs = ids
	}

	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.scanUser(ctx, userID, opts, &report)
		report.UsersScanned++
	}

	report.Duration = time.Since(start)
	log.Printf("monitor: scanned %d users, %d albums created, %d files imported, %d already cataloged, %d errors in %v",
		report.UsersScanned, report.AlbumsCreated, report.ImagesImported, report.ImagesExisting, report.Errors, report.Duration)
	return report, nil
}

func (s *MonitorService) fail(report *MonitorReport, format string, args ...any) {
	report.Errors++
	metrics.ImportErrors.WithLabelValues("monitor").Inc()
	log.Printf("monitor: "+format, args...)
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".")
}

func (s *MonitorService) scanUser(ctx context.Context, userID int64, opts MonitorOptions, report *MonitorReport) {
	root := s.env.Layout.UserDir(userID)
	entries, err := os.ReadDir(root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.fail(report, "reading %s: %v", root, err)
		}
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || skipDir(name) || name == media.FavoritesDirName {
			continue
		}
		albumPath := path.Join(media.UserPrefix(userID), name)

		album, err := s.store.GetAlbumByPath(ctx, userID, albumPath)
		if err == nil {
			if !opts.Rescan {
				continue
			}
		} else {
			album, err = s.topLevelAlbum(ctx, userID, albumPath, name, report)
			if err != nil {
				if !errors.Is(err, errAlbumDeleted) {
					s.fail(report, "album for %s: %v", albumPath, err)
				}
				continue
			}
		}
		s.importDir(ctx, album, filepath.Join(root, name), report)
	}
}

func (s *MonitorService) topLevelAlbum(ctx context.Context, userID int64, albumPath, name string, report *MonitorReport) (models.Album, error) {
	id, created, err := s.store.InsertAlbum(ctx, database.NewAlbum{UserID: userID, Name: name, Path: albumPath})
	if err != nil {
		return models.Album{}, err
	}
	album, err := s.store.GetAlbumAny(ctx, id)
	if err != nil {
		return models.Album{}, err
	}
	if album.DeletedAt != nil {
		report.AlbumsSkipped++
		log.Printf("monitor: %s belongs to deleted album %d, skipping", albumPath, id)
		return album, errAlbumDeleted
	}
	if created {
		report.AlbumsCreated++
		metrics.AlbumsCreated.WithLabelValues("monitor").Inc()
		log.Printf("monitor: created album %d for %s", id, albumPath)
	}
	return album, nil
}

// importDir catalogs the supported files in dir and recurses into its
// subdirectories as child albums of album.
func (s *MonitorService) importDir(ctx context.Context, album models.Album, dir string, report *MonitorReport) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.fail(report, "reading %s: %v", dir, err)
		return
	}

	known, err := s.knownFiles(ctx, album)
	if err != nil {
		s.fail(report, "listing album %d: %v", album.ID, err)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		name := entry.Name()
		abs := filepath.Join(dir, name)
		if skipDir(name) || entry.Type()&fs.ModeSymlink != 0 {
			continue
		}
		rel, err := s.env.Layout.RelativeToUsersRoot(abs)
		if err != nil {
			s.fail(report, "%v", err)
			continue
		}

		if entry.IsDir() {
			sub, created, err := ensureSubAlbum(ctx, s.store, album, rel, name, "monitor")
			if errors.Is(err, errAlbumDeleted) {
				report.AlbumsSkipped++
				continue
			}
			if err != nil {
				s.fail(report, "album for %s: %v", rel, err)
				continue
			}
			if created {
				report.AlbumsCreated++
			}
			s.importDir(ctx, sub, abs, report)
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}
		mediaType, ok := s.env.Types.MediaTypeFor(name)
		if !ok {
			continue
		}
		if known[rel] {
			report.ImagesExisting++
			continue
		}
		s.importFile(ctx, album, abs, rel, mediaType, report)
	}
}

// knownFiles returns the users-root-relative names of the album's live images.
func (s *MonitorService) knownFiles(ctx context.Context, album models.Album) (map[string]bool, error) {
	images, err := s.store.ListImagesByAlbum(ctx, album.ID, database.SortFilenameAsc)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(images))
	for _, img := range images {
		known[s.env.Layout.RelativeName(album.Path, img.Filename)] = true
	}
	return known, nil
}

func (s *MonitorService) importFile(ctx context.Context, album models.Album, abs, rel string, mediaType models.MediaType, report *MonitorReport) {
	thumb := s.env.Layout.ThumbnailPath(album.Path, rel)
	if !fileExists(thumb) {
		if err := s.env.renderThumbnail(ctx, abs, thumb, mediaType); err != nil {
			log.Printf("monitor: thumbnail for %s: %v", rel, err)
		}
	}

	mime := media.MimeTypeFor(rel)
	id, err := s.store.InsertImage(ctx, database.NewImage{
		AlbumID:   album.ID,
		Filename:  rel,
		MediaType: mediaType,
		MimeType:  &mime,
		IsPublic:  album.IsPublic,
	})
	if errors.Is(err, database.ErrConflict) {
		report.ImagesExisting++
		return
	}
	if err != nil {
		s.fail(report, "%v", fmt.Errorf("failed to catalog %s: %w", rel, err))
		return
	}
	report.ImagesImported++
	metrics.MediaImported.WithLabelValues("monitor").Inc()
	log.Printf("monitor: imported %s as image %d into album %d", rel, id, album.ID)
}
