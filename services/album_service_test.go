package services

import (
	"database/sql"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "summer-trip-24", slugify("Summer Trip '24"))
	assert.Equal(t, "album", slugify("!!!"))
	assert.Equal(t, "caf", slugify("Café"))
}

func TestCreateAlbumBuildsPathAndDirectories(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	svc := NewAlbumService(e.store, e.env)

	album, err := svc.CreateAlbum(e.ctx, userID, CreateAlbumInput{Name: "Summer Trip"})
	require.NoError(t, err)

	prefix := "user_1/summer-trip_"
	require.True(t, strings.HasPrefix(album.Path, prefix), album.Path)
	assert.Len(t, strings.TrimPrefix(album.Path, prefix), 8)
	assert.DirExists(t, e.layout.AlbumDir(album.Path))
	assert.DirExists(t, e.layout.AlbumThumbDir(album.Path))

	child, err := svc.CreateAlbum(e.ctx, userID, CreateAlbumInput{Name: "Day 1", ParentID: &album.ID})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(child.Path, album.Path+"/day-1_"))
	require.NotNil(t, child.ParentID)
	assert.Equal(t, album.ID, *child.ParentID)
}

func TestCreateAlbumValidatesName(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	svc := NewAlbumService(e.store, e.env)

	for _, name := range []string{"", "   ", "a/b", "..", strings.Repeat("x", 256)} {
		_, err := svc.CreateAlbum(e.ctx, userID, CreateAlbumInput{Name: name})
		assert.ErrorIs(t, err, ErrInvalidInput, "name %q", name)
	}
}

func TestCreateAlbumConflictsWithLiveSibling(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	svc := NewAlbumService(e.store, e.env)

	_, err := svc.CreateAlbum(e.ctx, userID, CreateAlbumInput{Name: "Trip"})
	require.NoError(t, err)
	_, err = svc.CreateAlbum(e.ctx, userID, CreateAlbumInput{Name: "Trip"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateAlbumRevivesDeletedSibling(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	svc := NewAlbumService(e.store, e.env)

	first, err := svc.CreateAlbum(e.ctx, userID, CreateAlbumInput{Name: "Trip"})
	require.NoError(t, err)
	_, err = svc.DeleteAlbum(e.ctx, userID, first.ID)
	require.NoError(t, err)

	again, err := svc.CreateAlbum(e.ctx, userID, CreateAlbumInput{Name: "Trip", IsPublic: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Nil(t, again.DeletedAt)
	assert.True(t, again.IsPublic)
	assert.NotEqual(t, first.Path, again.Path)
	assert.DirExists(t, e.layout.AlbumDir(again.Path))
}

func TestDeleteAlbumCascade(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	svc := NewAlbumService(e.store, e.env)

	album := e.createAlbum(t, userID, "Trip", "user_1/trip_abc", nil)
	child := e.createAlbum(t, userID, "Day1", "user_1/trip_abc/Day1", &album.ID)
	var originals []string
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		e.addImage(t, album, name)
		originals = append(originals, e.layout.OriginalPath(album.Path, name))
	}
	childImage := e.addImage(t, child, "d.jpg")
	require.NoError(t, os.WriteFile(e.layout.AlbumThumbDir(album.Path)+"/stray.tmp", []byte("x"), 0644))
	require.NoError(t, os.Remove(originals[1]))

	report, err := svc.DeleteAlbum(e.ctx, userID, album.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.ImagesDeleted)
	assert.Equal(t, 1, report.ChildrenReparented)
	assert.Empty(t, report.Errors)

	for _, p := range originals {
		assert.NoFileExists(t, p)
	}
	assert.NoFileExists(t, e.layout.AlbumThumbDir(album.Path)+"/stray.tmp")
	// the child's directories keep both album directories alive
	assert.DirExists(t, e.layout.AlbumThumbDir(album.Path))
	assert.DirExists(t, e.layout.AlbumDir(album.Path))
	assert.FileExists(t, e.layout.OriginalPath(child.Path, "d.jpg"))

	_, err = e.store.GetAlbum(e.ctx, album.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	live, err := e.store.CountImagesByAlbum(e.ctx, album.ID, false)
	require.NoError(t, err)
	assert.Zero(t, live)
	all, err := e.store.CountImagesByAlbum(e.ctx, album.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all)

	movedChild, err := e.store.GetAlbum(e.ctx, child.ID)
	require.NoError(t, err)
	assert.Nil(t, movedChild.ParentID)
	_, err = e.store.GetImage(e.ctx, childImage.ID)
	assert.NoError(t, err)
}

func TestDeleteAlbumRemovesEmptyDirectories(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	svc := NewAlbumService(e.store, e.env)

	album := e.createAlbum(t, userID, "Trip", "user_1/trip_abc", nil)
	e.addImage(t, album, "a.jpg")

	report, err := svc.DeleteAlbum(e.ctx, userID, album.ID)
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.NoDirExists(t, e.layout.AlbumDir(album.Path))
	assert.NoDirExists(t, e.layout.AlbumThumbDir(album.Path))
	assert.DirExists(t, e.layout.UserDir(userID))
}

func TestDeleteAlbumChecksOwnership(t *testing.T) {
	e := newTestEnv(t)
	owner := e.createUser(t, 0, "alice")
	other := e.createUser(t, 0, "bob")
	svc := NewAlbumService(e.store, e.env)

	album := e.createAlbum(t, owner, "Trip", "user_1/trip_abc", nil)
	e.addImage(t, album, "a.jpg")

	_, err := svc.DeleteAlbum(e.ctx, other, album.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.FileExists(t, e.layout.OriginalPath(album.Path, "a.jpg"))

	_, err = svc.DeleteAlbum(e.ctx, owner, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAlbum(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	svc := NewAlbumService(e.store, e.env)

	parent := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	child := e.createAlbum(t, userID, "Day1", "user_1/trip/Day1", &parent.ID)

	name, desc, public := "Road Trip", "  two weeks  ", true
	res, err := svc.UpdateAlbum(e.ctx, userID, parent.ID, UpdateAlbumInput{Name: &name, Description: &desc, IsPublic: &public})
	require.NoError(t, err)
	require.NotNil(t, res.Album)
	assert.Equal(t, "Road Trip", res.Album.Name)
	require.NotNil(t, res.Album.Description)
	assert.Equal(t, "two weeks", *res.Album.Description)
	assert.True(t, res.Album.IsPublic)

	_, err = svc.UpdateAlbum(e.ctx, userID, parent.ID, UpdateAlbumInput{ParentID: &child.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.UpdateAlbum(e.ctx, userID, parent.ID, UpdateAlbumInput{ParentID: &parent.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)

	res, err = svc.UpdateAlbum(e.ctx, userID, child.ID, UpdateAlbumInput{MoveToRoot: true})
	require.NoError(t, err)
	assert.Nil(t, res.Album.ParentID)

	taken := "Road Trip"
	_, err = svc.UpdateAlbum(e.ctx, userID, child.ID, UpdateAlbumInput{Name: &taken})
	assert.ErrorIs(t, err, ErrConflict)

	res, err = svc.UpdateAlbum(e.ctx, userID, child.ID, UpdateAlbumInput{Delete: true})
	require.NoError(t, err)
	require.NotNil(t, res.Deleted)
	assert.Equal(t, child.ID, res.Deleted.AlbumID)
}

func TestSetCover(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	svc := NewAlbumService(e.store, e.env)

	album := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	other := e.createAlbum(t, userID, "Other", "user_1/other", nil)
	img := e.addImage(t, album, "a.jpg")
	foreign := e.addImage(t, other, "b.jpg")

	require.NoError(t, svc.SetCover(e.ctx, userID, album.ID, &img.ID))
	assert.ErrorIs(t, svc.SetCover(e.ctx, userID, album.ID, &foreign.ID), ErrInvalidInput)

	view, err := svc.GetAlbum(e.ctx, userID, album.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "/api/thumbs/user_1/trip/a.jpg", view.CoverURL)

	require.NoError(t, svc.SetCover(e.ctx, userID, album.ID, nil))
	got, err := e.store.GetAlbum(e.ctx, album.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CoverImageID)
}

func TestGetAlbumVisibility(t *testing.T) {
	e := newTestEnv(t)
	owner := e.createUser(t, 0, "alice")
	other := e.createUser(t, 0, "bob")
	svc := NewAlbumService(e.store, e.env)

	album := e.createAlbum(t, owner, "Trip", "user_1/trip", nil)
	e.createAlbum(t, owner, "Day1", "user_1/trip/Day1", &album.ID)
	e.addImage(t, album, "img10.jpg")
	e.addImage(t, album, "img2.jpg")

	view, err := svc.GetAlbum(e.ctx, owner, album.ID, "")
	require.NoError(t, err)
	require.Len(t, view.Images, 2)
	assert.Equal(t, "user_1/trip/img2.jpg", view.Images[0].Filename)
	assert.Equal(t, "/api/thumbs/user_1/trip/img2.jpg", view.Images[0].ThumbnailURL)
	assert.Len(t, view.Children, 1)

	_, err = svc.GetAlbum(e.ctx, other, album.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	public := true
	_, err = svc.UpdateAlbum(e.ctx, owner, album.ID, UpdateAlbumInput{IsPublic: &public})
	require.NoError(t, err)
	view, err = svc.GetAlbum(e.ctx, other, album.ID, "")
	require.NoError(t, err)
	assert.Len(t, view.Images, 2)
	assert.Empty(t, view.Children)
}

func TestBreadcrumbs(t *testing.T) {
	e := newTestEnv(t)
	userID := e.createUser(t, 0, "alice")
	svc := NewAlbumService(e.store, e.env)

	a := e.createAlbum(t, userID, "Trip", "user_1/trip", nil)
	b := e.createAlbum(t, userID, "Day1", "user_1/trip/Day1", &a.ID)
	c := e.createAlbum(t, userID, "Morning", "user_1/trip/Day1/Morning", &b.ID)

	crumbs, err := svc.Breadcrumbs(e.ctx, userID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []Breadcrumb{{a.ID, "Trip"}, {b.ID, "Day1"}, {c.ID, "Morning"}}, crumbs)

	albums, err := svc.ListAlbums(e.ctx, userID)
	require.NoError(t, err)
	assert.Len(t, albums, 3)
}
