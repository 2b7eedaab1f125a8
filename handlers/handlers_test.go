package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/media"
	"github.com/camden-git/mediagallery/models"
	"github.com/camden-git/mediagallery/repository"
	"github.com/camden-git/mediagallery/services"
	"github.com/camden-git/mediagallery/workers"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []workers.MonitorJob
}

func (q *fakeQueue) Enqueue(job workers.MonitorJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.UserID == job.UserID {
			return false
		}
	}
	q.jobs = append(q.jobs, job)
	return true
}

type testServer struct {
	srv    *httptest.Server
	layout media.Layout
	queue  *fakeQueue
}

func newTestServer(t *testing.T) *testServer {
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
	store := database.NewStore(sqlDB, schema)

	layout := media.Layout{
		UsersRoot:       filepath.Join(root, "users"),
		ThumbsRoot:      filepath.Join(root, "thumbs"),
		TrashUsersRoot:  filepath.Join(root, "trash", "users"),
		TrashThumbsRoot: filepath.Join(root, "trash", "thumbs"),
		ThumbURLPrefix:  "/api/thumbs/",
	}
	files, err := media.NewLocalStorage(layout.UsersRoot, layout.ThumbsRoot, layout.TrashUsersRoot, layout.TrashThumbsRoot)
	require.NoError(t, err)
	env := services.MediaEnv{
		Layout: layout,
		Files:  files,
		Processor: media.NewProcessor(media.ProcessorOptions{
			Quality:     85,
			FFmpegPath:  filepath.Join(root, "missing", "ffmpeg"),
			FFprobePath: filepath.Join(root, "missing", "ffprobe"),
		}),
		Types:  media.NewTypes([]string{".jpg", ".jpeg", ".png"}, []string{".mp4"}),
		Thumbs: services.ThumbnailSpec{Width: 300, Height: 200, Crop: true, VideoFrameSeconds: 1},
	}

	users := repository.NewGormUserRepository(gormDB)
	trash := services.NewTrashService(store, env, 0)
	queue := &fakeQueue{}
	router := NewRouter(RouterConfig{
		UserRepo: users,
		Auth:     NewAuthHandler(users, services.NewAccountService(store, users, env)),
		Albums: &AlbumHandler{
			Albums:   services.NewAlbumService(store, env),
			Scanner:  services.NewScanService(store, env, trash),
			Importer: services.NewImportService(store, env),
		},
		Images: &ImageHandler{
			Images:    services.NewImageService(store, env),
			Trash:     trash,
			Favorites: services.NewFavoriteService(store, env, false),
		},
		Monitor:        &MonitorHandler{Queue: queue},
		ThumbsRoot:     layout.ThumbsRoot,
		ThumbURLPrefix: layout.ThumbURLPrefix,
		AllowedOrigins: []string{"http://localhost:5173"},
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, layout: layout, queue: queue}
}

type envelope struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
	Errors  []APIErrorDetail `json:"errors"`
}

func (ts *testServer) do(t *testing.T, method, path, user string, body io.Reader, contentType string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, body)
	require.NoError(t, err)
	if user != "" {
		req.SetBasicAuth(user, "secret")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (ts *testServer) doJSON(t *testing.T, method, path, user string, payload any) (int, envelope) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return ts.do(t, method, path, user, body, "application/json")
}

func (ts *testServer) register(t *testing.T, name string) models.User {
	t.Helper()
	status, env := ts.doJSON(t, http.MethodPost, "/api/auth/register", "", RegisterPayload{
		Username: name, Email: name + "@example.com", Password: "secret",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var u models.User
	require.NoError(t, json.Unmarshal(env.Data, &u))
	return u
}

func (ts *testServer) createAlbum(t *testing.T, user, name string, public bool) models.Album {
	t.Helper()
	status, env := ts.doJSON(t, http.MethodPost, "/api/albums", user, services.CreateAlbumInput{Name: name, IsPublic: public})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var a models.Album
	require.NoError(t, json.Unmarshal(env.Data, &a))
	return a
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: 40, B: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func (ts *testServer) upload(t *testing.T, user string, albumID int64, files map[string][]byte) (int, []uploadOutcome) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for rel, data := range files {
		require.NoError(t, mw.WriteField("paths", rel))
		fw, err := mw.CreateFormFile("files", filepath.Base(rel))
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	status, env := ts.do(t, http.MethodPost, fmt.Sprintf("/api/albums/%d/upload", albumID), user, &buf, mw.FormDataContentType())
	var outcomes []uploadOutcome
	if len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, &outcomes))
	}
	return status, outcomes
}

func TestRegisterAndBasicAuth(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	assert.NotZero(t, alice.ID)

	status, env := ts.doJSON(t, http.MethodPost, "/api/auth/register", "", RegisterPayload{
		Username: "alice", Email: "other@example.com", Password: "x",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, env.Success)

	status, env = ts.doJSON(t, http.MethodGet, "/api/auth/me", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, _ = ts.doJSON(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/auth/me", nil)
	require.NoError(t, err)
	req.SetBasicAuth("alice", "wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAlbumVisibility(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	ts.register(t, "bob")

	private := ts.createAlbum(t, "alice", "Private", false)
	public := ts.createAlbum(t, "alice", "Public", true)

	status, _ := ts.doJSON(t, http.MethodGet, fmt.Sprintf("/api/albums/%d", private.ID), "alice", nil)
	assert.Equal(t, http.StatusOK, status)

	status, env := ts.doJSON(t, http.MethodGet, fmt.Sprintf("/api/albums/%d", private.ID), "bob", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Message)

	status, _ = ts.doJSON(t, http.MethodGet, fmt.Sprintf("/api/albums/%d", public.ID), "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = ts.doJSON(t, http.MethodGet, "/api/albums/999", "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.doJSON(t, http.MethodGet, "/api/albums/abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.doJSON(t, http.MethodPost, "/api/albums", "alice", services.CreateAlbumInput{Name: "Private"})
	assert.Equal(t, http.StatusConflict, status)
}

func TestUploadTrashAndRestore(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	album := ts.createAlbum(t, "alice", "Vacation", false)

	status, outcomes := ts.upload(t, "alice", album.ID, map[string][]byte{
		"Day1/a.jpg": jpegBytes(t, 400, 200),
	})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, outcomes, 1)
	require.Empty(t, outcomes[0].Error)
	require.NotNil(t, outcomes[0].Result)
	img := outcomes[0].Result.Image
	assert.True(t, outcomes[0].Result.Created)
	assert.NotEqual(t, album.ID, outcomes[0].Result.AlbumID)

	status, env := ts.doJSON(t, http.MethodGet, fmt.Sprintf("/api/images/%d", img.ID), "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var detail services.ImageDetail
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	require.NotEmpty(t, detail.ThumbnailURL)

	thumbResp, err := http.Get(ts.srv.URL + detail.ThumbnailURL)
	require.NoError(t, err)
	thumbResp.Body.Close()
	assert.Equal(t, http.StatusOK, thumbResp.StatusCode)

	status, _ = ts.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/images/%d", img.ID), "alice", nil)
	require.Equal(t, http.StatusOK, status)

	status, env = ts.doJSON(t, http.MethodGet, "/api/trash", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var entries []services.TrashEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, img.ID, entries[0].ImageID)
	assert.True(t, entries[0].HasOriginal)

	status, _ = ts.doJSON(t, http.MethodGet, fmt.Sprintf("/api/images/%d", img.ID), "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.doJSON(t, http.MethodPost, fmt.Sprintf("/api/images/%d/restore", img.ID), "alice", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = ts.doJSON(t, http.MethodGet, fmt.Sprintf("/api/images/%d", img.ID), "alice", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = ts.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/images/%d?force=true", img.ID), "alice", nil)
	require.Equal(t, http.StatusOK, status)
	status, env = ts.doJSON(t, http.MethodGet, "/api/trash", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	assert.Empty(t, entries)
}

func TestUploadRejectsUnsupportedFiles(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	album := ts.createAlbum(t, "alice", "Docs", false)

	status, outcomes := ts.upload(t, "alice", album.ID, map[string][]byte{"notes.txt": []byte("hello")})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, outcomes, 1)
	assert.NotEmpty(t, outcomes[0].Error)
	assert.Nil(t, outcomes[0].Result)
}

func TestRotateValidatesAngle(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	album := ts.createAlbum(t, "alice", "Rotations", false)
	_, outcomes := ts.upload(t, "alice", album.ID, map[string][]byte{"a.jpg": jpegBytes(t, 400, 200)})
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Result)
	imgID := outcomes[0].Result.Image.ID

	status, _ := ts.doJSON(t, http.MethodPost, fmt.Sprintf("/api/images/%d/rotate", imgID), "alice", map[string]int{"degrees": 45})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env := ts.doJSON(t, http.MethodPost, fmt.Sprintf("/api/images/%d/rotate", imgID), "alice", map[string]int{"degrees": 90})
	require.Equal(t, http.StatusOK, status)
	var img models.Image
	require.NoError(t, json.Unmarshal(env.Data, &img))
	assert.Equal(t, 90, img.Rotation)
}

func TestMonitorTrigger(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")

	status, env := ts.doJSON(t, http.MethodPost, "/api/monitor?rescan=true", "alice", nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.True(t, env.Success)
	require.Len(t, ts.queue.jobs, 1)
	assert.Equal(t, workers.MonitorJob{UserID: alice.ID, Rescan: true}, ts.queue.jobs[0])

	status, _ = ts.doJSON(t, http.MethodPost, "/api/monitor", "alice", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.doJSON(t, http.MethodGet, "/api/auth/me", "", nil)

	resp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "mediagallery_http_requests_total")
}

func TestAssetServer(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "user_1", "Trip"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "user_1", "Trip", "a.jpg"), []byte("jpeg"), 0644))
	handler := AssetServer(base, "/api/thumbs/")

	tests := []struct {
		path   string
		status int
	}{
		{"/api/thumbs/user_1/Trip/a.jpg", http.StatusOK},
		{"/api/thumbs/user_1/Trip/missing.jpg", http.StatusNotFound},
		{"/api/thumbs/user_1/Trip", http.StatusNotFound},
		{"/api/thumbs/../secret", http.StatusBadRequest},
		{"/api/thumbs/", http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
		req.URL.Path = tt.path
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, tt.status, rec.Code, tt.path)
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: bad angle", services.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: private", services.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: image 3", services.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: clash", services.ErrConflict), http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)
		assert.Equal(t, tt.status, rec.Code)

		var env envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.False(t, env.Success)
		if tt.status == http.StatusInternalServerError {
			assert.NotContains(t, env.Message, "disk on fire")
		}
	}
}
