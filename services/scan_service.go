package services

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"path"
	"sort"
	"strings"

	"github.com/facette/natsort"

	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/models"
)

// ScanService compares a client-side folder listing with the catalog.
type ScanService struct {
	store *database.Store
	env   MediaEnv
	trash *TrashService
}

func NewScanService(store *database.Store, env MediaEnv, trash *TrashService) *ScanService {
	return &ScanService{store: store, env: env, trash: trash}
}

// ScanEntry is one item of the listing. RelativePath is relative to the
// scanned album; entries without a directory part belong to the album itself.
type ScanEntry struct {
	Name         string `json:"name"`
	RelativePath string `json:"relative_path"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
	IsDirectory  bool   `json:"is_directory"`
}

type ScanRequest struct {
	AlbumID       int64       `json:"album_id"`
	Entries       []ScanEntry `json:"entries"`
	SyncDeletions bool        `json:"sync_deletions"`
}

type ScanFile struct {
	Name         string           `json:"name"`
	RelativePath string           `json:"relative_path"`
	Size         int64            `json:"size"`
	MimeType     string           `json:"mime_type,omitempty"`
	MediaType    models.MediaType `json:"media_type,omitempty"`
}

type ScanExisting struct {
	ScanFile
	ImageID      int64  `json:"image_id"`
	AlbumID      int64  `json:"album_id"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type ScanDeleted struct {
	ImageID      int64  `json:"image_id"`
	AlbumID      int64  `json:"album_id"`
	Filename     string `json:"filename"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type ScanDir struct {
	Name         string `json:"name"`
	RelativePath string `json:"relative_path"`
	Exists       bool   `json:"exists"`
	AlbumID      *int64 `json:"album_id,omitempty"`
}

type ScanResult struct {
	AlbumID     int64          `json:"album_id"`
	New         []ScanFile     `json:"new"`
	Existing    []ScanExisting `json:"existing"`
	Deleted     []ScanDeleted  `json:"deleted,omitempty"`
	Directories []ScanDir      `json:"directories"`
	Skipped     []ScanFile     `json:"skipped"`
}

// albumIndex maps the base names of an album's live images to the images.
type albumIndex struct {
	album  models.Album
	byName map[string]models.Image
	seen   map[int64]bool
}

type scanState struct {
	s       *ScanService
	userID  int64
	root    models.Album
	albums  map[string]*albumIndex // keyed by directory relative to root, "." for root
	missing map[string]bool
}

func (st *scanState) index(ctx context.Context, album models.Album, dir string) (*albumIndex, error) {
	images, err := st.s.store.ListImagesByAlbum(ctx, album.ID, database.SortFilenameAsc)
	if err != nil {
		return nil, err
	}
	idx := &albumIndex{album: album, byName: make(map[string]models.Image, len(images)), seen: make(map[int64]bool)}
	for _, img := range images {
		idx.byName[path.Base(img.Filename)] = img
	}
	st.albums[dir] = idx
	return idx, nil
}

// resolve walks dir one component at a time through child albums matched by
// name. It returns nil when some component has no album yet.
func (st *scanState) resolve(ctx context.Context, dir string) (*albumIndex, error) {
	if idx, ok := st.albums[dir]; ok {
		return idx, nil
	}
	if st.missing[dir] {
		return nil, nil
	}
	parent, err := st.resolve(ctx, path.Dir(dir))
	if parent == nil || err != nil {
		return nil, err
	}
	album, err := st.s.store.GetAlbumByName(ctx, st.userID, &parent.album.ID, path.Base(dir), false)
	if errors.Is(err, sql.ErrNoRows) {
		st.missing[dir] = true
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st.index(ctx, album, dir)
}

func cleanScanPath(entry ScanEntry) string {
	rel := entry.RelativePath
	if rel == "" {
		rel = entry.Name
	}
	rel = strings.Trim(path.Clean("/"+strings.ReplaceAll(rel, `\`, "/")), "/")
	return rel
}

// ScanDirectory classifies a listing into new, existing and unsupported
// files. Files match cataloged images by exact base name within the album
// their directory resolves to.
func (s *ScanService) ScanDirectory(ctx context.Context, userID int64, req ScanRequest) (ScanResult, error) {
	root, err := ownedAlbum(ctx, s.store, userID, req.AlbumID)
	if err != nil {
		return ScanResult{}, err
	}

	st := &scanState{s: s, userID: userID, root: root, albums: map[string]*albumIndex{}, missing: map[string]bool{}}
	if _, err := st.index(ctx, root, "."); err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{AlbumID: root.ID, New: []ScanFile{}, Existing: []ScanExisting{}, Directories: []ScanDir{}, Skipped: []ScanFile{}}
	for _, entry := range req.Entries {
		rel := cleanScanPath(entry)
		if rel == "" {
			continue
		}

		if entry.IsDirectory {
			idx, err := st.resolve(ctx, rel)
			if err != nil {
				return ScanResult{}, err
			}
			d := ScanDir{Name: path.Base(rel), RelativePath: rel}
			if idx != nil {
				id := idx.album.ID
				d.Exists, d.AlbumID = true, &id
			}
			result.Directories = append(result.Directories, d)
			continue
		}

		file := ScanFile{Name: path.Base(rel), RelativePath: rel, Size: entry.Size, MimeType: entry.MimeType}
		mediaType, ok := s.env.Types.Classify(entry.MimeType, file.Name)
		if !ok {
			result.Skipped = append(result.Skipped, file)
			continue
		}
		file.MediaType = mediaType

		idx, err := st.resolve(ctx, path.Dir(rel))
		if err != nil {
			return ScanResult{}, err
		}
		if idx == nil {
			result.New = append(result.New, file)
			continue
		}
		img, found := idx.byName[file.Name]
		if !found {
			result.New = append(result.New, file)
			continue
		}
		idx.seen[img.ID] = true
		result.Existing = append(result.Existing, ScanExisting{
			ScanFile:     file,
			ImageID:      img.ID,
			AlbumID:      idx.album.ID,
			ThumbnailURL: s.env.Layout.ThumbnailURL(idx.album.Path, img.Filename),
		})
	}

	if req.SyncDeletions {
		result.Deleted = []ScanDeleted{}
		for _, idx := range st.albums {
			if idx == nil {
				continue
			}
			for _, img := range idx.byName {
				if idx.seen[img.ID] {
					continue
				}
				result.Deleted = append(result.Deleted, ScanDeleted{
					ImageID:      img.ID,
					AlbumID:      idx.album.ID,
					Filename:     img.Filename,
					ThumbnailURL: s.env.Layout.ThumbnailURL(idx.album.Path, img.Filename),
				})
			}
		}
		sort.Slice(result.Deleted, func(i, j int) bool {
			return natsort.Compare(result.Deleted[i].Filename, result.Deleted[j].Filename)
		})
	}

	sortFiles(result.New)
	sortFiles(result.Skipped)
	sort.Slice(result.Existing, func(i, j int) bool {
		return natsort.Compare(result.Existing[i].RelativePath, result.Existing[j].RelativePath)
	})
	sort.Slice(result.Directories, func(i, j int) bool {
		return natsort.Compare(result.Directories[i].RelativePath, result.Directories[j].RelativePath)
	})
	return result, nil
}

func sortFiles(files []ScanFile) {
	sort.Slice(files, func(i, j int) bool { return natsort.Compare(files[i].RelativePath, files[j].RelativePath) })
}

// DeletionReport lists the outcome of ApplyDeletions per image.
type DeletionReport struct {
	Trashed []int64          `json:"trashed"`
	Failed  map[int64]string `json:"failed,omitempty"`
}

// ApplyDeletions moves the given images to the trash. Each image must live in
// albumID or one of its descendants.
func (s *ScanService) ApplyDeletions(ctx context.Context, userID, albumID int64, imageIDs []int64) (DeletionReport, error) {
	if _, err := ownedAlbum(ctx, s.store, userID, albumID); err != nil {
		return DeletionReport{}, err
	}
	report := DeletionReport{Trashed: []int64{}}
	fail := func(id int64, err error) {
		if report.Failed == nil {
			report.Failed = map[int64]string{}
		}
		report.Failed[id] = err.Error()
		log.Printf("scan: sync deletion of image %d: %v", id, err)
	}

	for _, id := range imageIDs {
		rec, err := ownedImage(ctx, s.store, userID, id, false)
		if err != nil {
			fail(id, err)
			continue
		}
		inside, err := s.withinAlbum(ctx, rec.AlbumID, albumID)
		if err != nil {
			return report, err
		}
		if !inside {
			fail(id, invalid("image %d is not in album %d", id, albumID))
			continue
		}
		if _, err := s.trash.SoftTrash(ctx, userID, id); err != nil {
			fail(id, err)
			continue
		}
		report.Trashed = append(report.Trashed, id)
	}
	return report, nil
}

func (s *ScanService) withinAlbum(ctx context.Context, albumID, ancestorID int64) (bool, error) {
	if albumID == ancestorID {
		return true, nil
	}
	chain, err := s.store.AlbumAncestors(ctx, albumID)
	if err != nil {
		return false, err
	}
	for _, a := range chain {
		if a.ID == ancestorID {
			return true, nil
		}
	}
	return false, nil
}
