package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/media"
	"github.com/camden-git/mediagallery/models"
)

type testEnv struct {
	ctx    context.Context
	store  *database.Store
	db     *gorm.DB
	env    MediaEnv
	layout media.Layout
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	gormDB, err := database.InitGormDB(filepath.Join(root, "catalog.db"), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(gormDB))
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	schema, err := database.DetectSchema(context.Background(), sqlDB)
	require.NoError(t, err)

	layout := media.Layout{
		UsersRoot:       filepath.Join(root, "users"),
		ThumbsRoot:      filepath.Join(root, "thumbs"),
		TrashUsersRoot:  filepath.Join(root, "trash", "users"),
		TrashThumbsRoot: filepath.Join(root, "trash", "thumbs"),
		ThumbURLPrefix:  "/api/thumbs/",
	}
	files, err := media.NewLocalStorage(layout.UsersRoot, layout.ThumbsRoot, layout.TrashUsersRoot, layout.TrashThumbsRoot)
	require.NoError(t, err)

	return &testEnv{
		ctx:   context.Background(),
		store: database.NewStore(sqlDB, schema),
		db:    gormDB,
		env: MediaEnv{
			Layout: layout,
			Files:  files,
			Processor: media.NewProcessor(media.ProcessorOptions{
				Quality:     85,
				FFmpegPath:  filepath.Join(root, "missing", "ffmpeg"),
				FFprobePath: filepath.Join(root, "missing", "ffprobe"),
			}),
			Types:  media.NewTypes([]string{".jpg", ".jpeg", ".png"}, []string{".mp4", ".mov"}),
			Thumbs: ThumbnailSpec{Width: 300, Height: 200, Crop: true, VideoFrameSeconds: 1},
		},
		layout: layout,
	}
}

func (e *testEnv) createUser(t *testing.T, id int64, name string) int64 {
	t.Helper()
	u := &models.User{ID: id, Username: name, Email: name + "@example.com"}
	require.NoError(t, u.SetPassword("secret"))
	require.NoError(t, e.db.Create(u).Error)
	return u.ID
}

// createAlbum inserts an album row at albumPath and creates its directories.
func (e *testEnv) createAlbum(t *testing.T, userID int64, name, albumPath string, parentID *int64) models.Album {
	t.Helper()
	id, created, err := e.store.InsertAlbum(e.ctx, database.NewAlbum{UserID: userID, Name: name, Path: albumPath, ParentID: parentID})
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, os.MkdirAll(e.layout.AlbumDir(albumPath), 0755))
	require.NoError(t, os.MkdirAll(e.layout.AlbumThumbDir(albumPath), 0755))
	album, err := e.store.GetAlbum(e.ctx, id)
	require.NoError(t, err)
	return album
}

// addImage writes an original and its thumbnail and catalogs them.
func (e *testEnv) addImage(t *testing.T, album models.Album, name string) models.Image {
	t.Helper()
	writeJPEG(t, e.layout.OriginalPath(album.Path, name), 400, 200)
	writeJPEG(t, e.layout.ThumbnailPath(album.Path, name), 300, 200)
	id, err := e.store.InsertImage(e.ctx, database.NewImage{
		AlbumID:   album.ID,
		Filename:  e.layout.RelativeName(album.Path, name),
		MediaType: models.MediaTypeImage,
	})
	require.NoError(t, err)
	img, err := e.store.GetImage(e.ctx, id)
	require.NoError(t, err)
	return img
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, jpegBytes(t, w, h), 0644))
}

func imageSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
