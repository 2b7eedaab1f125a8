package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/mediagallery/database"
)

func newTrashService(e *testEnv, now time.Time) *TrashService {
	svc := NewTrashService(e.store, e.env, 30*24*time.Hour)
	svc.now = func() time.Time { return now }
	return svc
}

func TestSoftTrashRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	album := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	img := e.addImage(t, album, "a.jpg")

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTrashService(e, start)

	res, err := svc.SoftTrash(e.ctx, userID, img.ID)
	require.NoError(t, err)
	assert.False(t, res.Forced)
	assert.Equal(t, start.Add(30*24*time.Hour), res.TrashExpiry)

	trashOriginal := filepath.Join(e.layout.TrashUsersRoot, "user_1", "trip", "a.jpg")
	trashThumb := filepath.Join(e.layout.TrashThumbsRoot, "user_1", "trip", "a.jpg")
	assert.NoFileExists(t, e.layout.OriginalPath(album.Path, "a.jpg"))
	assert.NoFileExists(t, e.layout.ThumbnailPath(album.Path, "a.jpg"))
	assert.FileExists(t, trashOriginal)
	assert.FileExists(t, trashThumb)

	rec, err := e.store.GetImageRecord(e.ctx, img.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.DeletedAt)
	require.NotNil(t, rec.TrashExpiry)
	assert.True(t, rec.TrashExpiry.Equal(start.Add(30*24*time.Hour)))
	require.NotNil(t, rec.TrashOriginalPath)
	assert.Equal(t, trashOriginal, *rec.TrashOriginalPath)

	svc.now = func() time.Time { return start.Add(24 * time.Hour) }
	swept, err := svc.Sweep(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, swept.Purged)
	rec, err = e.store.GetImageRecord(e.ctx, img.ID)
	require.NoError(t, err)
	assert.NotNil(t, rec.TrashOriginalPath)
	assert.FileExists(t, trashOriginal)

	svc.now = func() time.Time { return start.Add(31 * 24 * time.Hour) }
	swept, err = svc.Sweep(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept.Purged)

	rec, err = e.store.GetImageRecord(e.ctx, img.ID)
	require.NoError(t, err)
	assert.NotNil(t, rec.DeletedAt)
	assert.Nil(t, rec.TrashOriginalPath)
	assert.Nil(t, rec.TrashThumbnailPath)
	assert.Nil(t, rec.TrashExpiry)
	assert.NoFileExists(t, trashOriginal)
	assert.NoFileExists(t, trashThumb)

	swept, err = svc.Sweep(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, swept.Purged)
}

func TestSweepPrunesEmptyTrashDirectories(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, 3, "carol")
	album := e.createAlbum(t, 3, "AlbumX", "user_3/AlbumX", nil)
	img := e.addImage(t, album, "photo.jpg")

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTrashService(e, start)
	_, err := svc.SoftTrash(e.ctx, 3, img.ID)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(e.layout.TrashThumbsRoot, "user_3", "AlbumX"))

	svc.now = func() time.Time { return start.Add(40 * 24 * time.Hour) }
	_, err = svc.Sweep(e.ctx)
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(e.layout.TrashThumbsRoot, "user_3", "AlbumX"))
	assert.NoDirExists(t, filepath.Join(e.layout.TrashUsersRoot, "user_3"))
	assert.DirExists(t, e.layout.TrashThumbsRoot)
	assert.DirExists(t, e.layout.TrashUsersRoot)
}

func TestSoftTrashToleratesMissingOriginal(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	album := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	img := e.addImage(t, album, "a.jpg")
	require.NoError(t, os.Remove(e.layout.OriginalPath(album.Path, "a.jpg")))

	res, err := newTrashService(e, time.Now()).SoftTrash(e.ctx, userID, img.ID)
	require.NoError(t, err)
	assert.Nil(t, res.TrashOriginalPath)
	require.NotNil(t, res.TrashThumbnailPath)
	assert.FileExists(t, *res.TrashThumbnailPath)

	rec, err := e.store.GetImageRecord(e.ctx, img.ID)
	require.NoError(t, err)
	assert.NotNil(t, rec.DeletedAt)
	assert.Nil(t, rec.TrashOriginalPath)
	assert.True(t, rec.InTrash())
}

func TestSoftTrashClearsCoverAndChecksOwnership(t *testing.T) {
	e := newTestEnv(t)
	owner := e.createUser(t, 0, "alice")
	other := e.createUser(t, 0, "bob")
	album := e.createAlbum(t, owner, "Trip", "user_1/trip", nil)
	img := e.addImage(t, album, "a.jpg")
	require.NoError(t, e.store.SetAlbumCover(e.ctx, album.ID, &img.ID))

	svc := newTrashService(e, time.Now())
	_, err := svc.SoftTrash(e.ctx, other, img.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.SoftTrash(e.ctx, owner, img.ID)
	require.NoError(t, err)
	got, err := e.store.GetAlbum(e.ctx, album.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CoverImageID)

	_, err = svc.SoftTrash(e.ctx, owner, img.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestForceDeleteNeverPopulatesTrash(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	album := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	img := e.addImage(t, album, "a.jpg")

	svc := newTrashService(e, time.Now())
	require.NoError(t, svc.ForceDelete(e.ctx, userID, img.ID))

	assert.NoFileExists(t, e.layout.OriginalPath(album.Path, "a.jpg"))
	assert.NoFileExists(t, e.layout.ThumbnailPath(album.Path, "a.jpg"))
	assert.NoFileExists(t, filepath.Join(e.layout.TrashUsersRoot, "user_1", "trip", "a.jpg"))

	rec, err := e.store.GetImageRecord(e.ctx, img.ID)
	require.NoError(t, err)
	assert.NotNil(t, rec.DeletedAt)
	assert.Nil(t, rec.TrashOriginalPath)
	assert.Nil(t, rec.TrashThumbnailPath)
	assert.Nil(t, rec.TrashExpiry)

	assert.ErrorIs(t, svc.ForceDelete(e.ctx, userID, img.ID), ErrNotFound)
}

func TestForceDeleteOfTrashedImagePurges(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	album := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	img := e.addImage(t, album, "a.jpg")

	svc := newTrashService(e, time.Now())
	res, err := svc.SoftTrash(e.ctx, userID, img.ID)
	require.NoError(t, err)
	require.NoError(t, svc.ForceDelete(e.ctx, userID, img.ID))

	assert.NoFileExists(t, *res.TrashOriginalPath)
	assert.NoFileExists(t, *res.TrashThumbnailPath)
	rec, err := e.store.GetImageRecord(e.ctx, img.ID)
	require.NoError(t, err)
	assert.False(t, rec.InTrash())
}

func TestSoftTrashWithoutTrashColumnsForceDeletes(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	album := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	img := e.addImage(t, album, "a.jpg")

	sqlDB, err := e.db.DB()
	require.NoError(t, err)
	store := database.NewStore(sqlDB, database.SchemaInfo{HasAlbumParents: true})
	svc := NewTrashService(store, e.env, 0)

	res, err := svc.SoftTrash(e.ctx, userID, img.ID)
	require.NoError(t, err)
	assert.True(t, res.Forced)
	assert.NoFileExists(t, e.layout.OriginalPath(album.Path, "a.jpg"))
	assert.NoFileExists(t, filepath.Join(e.layout.TrashUsersRoot, "user_1", "trip", "a.jpg"))
}

func TestRestore(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	album := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	img := e.addImage(t, album, "a.jpg")

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTrashService(e, start)
	_, err := svc.SoftTrash(e.ctx, userID, img.ID)
	require.NoError(t, err)

	entries, err := svc.ListTrash(e.ctx, userID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, img.ID, entries[0].ImageID)
	assert.True(t, entries[0].HasOriginal)

	require.NoError(t, svc.Restore(e.ctx, userID, img.ID))
	assert.FileExists(t, e.layout.OriginalPath(album.Path, "a.jpg"))
	assert.FileExists(t, e.layout.ThumbnailPath(album.Path, "a.jpg"))
	_, err = e.store.GetImage(e.ctx, img.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Restore(e.ctx, userID, img.ID), ErrInvalidInput)

	entries, err = svc.ListTrash(e.ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRestoreRefusedAfterSweep(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	album := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	img := e.addImage(t, album, "a.jpg")

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTrashService(e, start)
	_, err := svc.SoftTrash(e.ctx, userID, img.ID)
	require.NoError(t, err)
	svc.now = func() time.Time { return start.Add(31 * 24 * time.Hour) }
	_, err = svc.Sweep(e.ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Restore(e.ctx, userID, img.ID), ErrNotFound)
}

func TestRestoreRefusedWhenOriginalReappeared(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	album := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	img := e.addImage(t, album, "a.jpg")

	svc := newTrashService(e, time.Now())
	_, err := svc.SoftTrash(e.ctx, userID, img.ID)
	require.NoError(t, err)
	writeJPEG(t, e.layout.OriginalPath(album.Path, "a.jpg"), 10, 10)

	assert.ErrorIs(t, svc.Restore(e.ctx, userID, img.ID), ErrConflict)
}

func TestSoftTrashSameNameTwiceKeepsBothCopies(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	album := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	first := e.addImage(t, album, "a.jpg")

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTrashService(e, start)
	firstRes, err := svc.SoftTrash(e.ctx, userID, first.ID)
	require.NoError(t, err)

	// same name uploaded again and trashed twenty days later
	second := e.addImage(t, album, "a.jpg")
	writeJPEG(t, e.layout.OriginalPath(album.Path, "a.jpg"), 640, 320)
	svc.now = func() time.Time { return start.Add(20 * 24 * time.Hour) }
	secondRes, err := svc.SoftTrash(e.ctx, userID, second.ID)
	require.NoError(t, err)

	require.NotNil(t, firstRes.TrashOriginalPath)
	require.NotNil(t, secondRes.TrashOriginalPath)
	assert.NotEqual(t, *firstRes.TrashOriginalPath, *secondRes.TrashOriginalPath)
	assert.Equal(t, filepath.Join(e.layout.TrashUsersRoot, "user_1", "trip", "a_2.jpg"), *secondRes.TrashOriginalPath)
	require.NotNil(t, secondRes.TrashThumbnailPath)
	assert.NotEqual(t, *firstRes.TrashThumbnailPath, *secondRes.TrashThumbnailPath)
	w, h := imageSize(t, *firstRes.TrashOriginalPath)
	assert.Equal(t, 400, w)
	assert.Equal(t, 200, h)

	svc.now = func() time.Time { return start.Add(31 * 24 * time.Hour) }
	swept, err := svc.Sweep(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept.Purged)
	assert.NoFileExists(t, *firstRes.TrashOriginalPath)
	assert.FileExists(t, *secondRes.TrashOriginalPath)
	assert.FileExists(t, *secondRes.TrashThumbnailPath)

	require.NoError(t, svc.Restore(e.ctx, userID, second.ID))
	w, h = imageSize(t, e.layout.OriginalPath(album.Path, "a.jpg"))
	assert.Equal(t, 640, w)
	assert.Equal(t, 320, h)
}

func TestSweepLeavesFileStillRecordedByAnotherImage(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	album := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	old := e.addImage(t, album, "a.jpg")
	fresh := e.addImage(t, album, "b.jpg")

	shared := filepath.Join(e.layout.TrashUsersRoot, "user_1", "trip", "a.jpg")
	writeJPEG(t, shared, 10, 10)
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, e.store.MarkImageTrashed(e.ctx, old.ID, &shared, nil, start))
	require.NoError(t, e.store.MarkImageTrashed(e.ctx, fresh.ID, &shared, nil, start.Add(30*24*time.Hour)))

	svc := newTrashService(e, start.Add(24*time.Hour))
	swept, err := svc.Sweep(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept.Purged)
	assert.FileExists(t, shared)

	svc.now = func() time.Time { return start.Add(31 * 24 * time.Hour) }
	swept, err = svc.Sweep(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept.Purged)
	assert.NoFileExists(t, shared)
}

func TestSoftTrashUnlinksFavoriteSymlinks(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	album := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	trashed := e.addImage(t, album, "a.jpg")
	forced := e.addImage(t, album, "b.jpg")
	favs := NewFavoriteService(e.store, e.env, true)
	require.NoError(t, favs.Add(e.ctx, userID, trashed.ID))
	require.NoError(t, favs.Add(e.ctx, userID, forced.ID))

	trashedLink := filepath.Join(e.layout.FavoritesDir(userID), "1_a.jpg")
	forcedLink := filepath.Join(e.layout.FavoritesDir(userID), "2_b.jpg")
	require.True(t, exists(trashedLink))
	require.True(t, exists(forcedLink))

	svc := newTrashService(e, time.Now())
	_, err := svc.SoftTrash(e.ctx, userID, trashed.ID)
	require.NoError(t, err)
	require.NoError(t, svc.ForceDelete(e.ctx, userID, forced.ID))

	assert.False(t, exists(trashedLink))
	assert.False(t, exists(forcedLink))
	starred, err := e.store.IsFavorite(e.ctx, userID, trashed.ID)
	require.NoError(t, err)
	assert.True(t, starred)
}
