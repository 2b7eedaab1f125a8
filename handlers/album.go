package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/mediagallery/services"
)

// maxUploadMemory bounds the part of a multipart upload kept in memory.
const maxUploadMemory = 32 << 20

type AlbumHandler struct {
	Albums   *services.AlbumService
	Scanner  *services.ScanService
	Importer *services.ImportService
}

func urlID(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", services.ErrInvalidInput, key, raw)
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", services.ErrInvalidInput, err)
	}
	return nil
}

func (ah *AlbumHandler) ListAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := ah.Albums.ListAlbums(r.Context(), currentUserID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", albums)
}

func (ah *AlbumHandler) CreateAlbum(w http.ResponseWriter, r *http.Request) {
	var req services.CreateAlbumInput
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	album, err := ah.Albums.CreateAlbum(r.Context(), currentUserID(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Album created successfully", album)
}

func (ah *AlbumHandler) GetAlbum(w http.ResponseWriter, r *http.Request) {
	albumID, err := urlID(r, "album_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	view, err := ah.Albums.GetAlbum(r.Context(), currentUserID(r), albumID, r.URL.Query().Get("sort"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", view)
}

func (ah *AlbumHandler) UpdateAlbum(w http.ResponseWriter, r *http.Request) {
	albumID, err := urlID(r, "album_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req services.UpdateAlbumInput
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	result, err := ah.Albums.UpdateAlbum(r.Context(), currentUserID(r), albumID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	message := "Album updated successfully"
	if result.Deleted != nil {
		message = "Album deleted successfully"
	}
	writeOK(w, http.StatusOK, message, result)
}

func (ah *AlbumHandler) DeleteAlbum(w http.ResponseWriter, r *http.Request) {
	albumID, err := urlID(r, "album_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	report, err := ah.Albums.DeleteAlbum(r.Context(), currentUserID(r), albumID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Album deleted successfully", report)
}

func (ah *AlbumHandler) SetCover(w http.ResponseWriter, r *http.Request) {
	albumID, err := urlID(r, "album_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req struct {
		ImageID *int64 `json:"image_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := ah.Albums.SetCover(r.Context(), currentUserID(r), albumID, req.ImageID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Cover updated", nil)
}

func (ah *AlbumHandler) Breadcrumbs(w http.ResponseWriter, r *http.Request) {
	albumID, err := urlID(r, "album_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	crumbs, err := ah.Albums.Breadcrumbs(r.Context(), currentUserID(r), albumID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", crumbs)
}

// Scan classifies a client-side directory listing against the album tree.
func (ah *AlbumHandler) Scan(w http.ResponseWriter, r *http.Request) {
	albumID, err := urlID(r, "album_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req services.ScanRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	req.AlbumID = albumID
	result, err := ah.Scanner.ScanDirectory(r.Context(), currentUserID(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", result)
}

// SyncDeletions trashes the images a scan reported as gone.
func (ah *AlbumHandler) SyncDeletions(w http.ResponseWriter, r *http.Request) {
	albumID, err := urlID(r, "album_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req struct {
		ImageIDs []int64 `json:"image_ids"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	report, err := ah.Scanner.ApplyDeletions(r.Context(), currentUserID(r), albumID, req.ImageIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, fmt.Sprintf("%d images moved to trash", len(report.Trashed)), report)
}

type uploadOutcome struct {
	RelativePath string                 `json:"relative_path"`
	Result       *services.ImportResult `json:"result,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Upload imports the "files" parts of a multipart form. A "paths" value at
// the same index carries the file's path relative to the album, so a dropped
// folder keeps its sub-albums.
func (ah *AlbumHandler) Upload(w http.ResponseWriter, r *http.Request) {
	albumID, err := urlID(r, "album_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		WriteAPIError(w, http.StatusBadRequest, "invalid_input", "No files uploaded")
		return
	}
	paths := r.MultipartForm.Value["paths"]

	userID := currentUserID(r)
	outcomes := make([]uploadOutcome, 0, len(files))
	imported := 0
	for i, fh := range files {
		rel := fh.Filename
		if i < len(paths) && paths[i] != "" {
			rel = paths[i]
		}
		outcome := uploadOutcome{RelativePath: rel}

		f, err := fh.Open()
		if err != nil {
			outcome.Error = "could not read upload"
			log.Printf("handlers: opening upload %s: %v", rel, err)
			outcomes = append(outcomes, outcome)
			continue
		}
		result, err := ah.Importer.ImportUpload(r.Context(), userID, albumID, rel, f)
		f.Close()
		if err != nil {
			outcome.Error = err.Error()
			log.Printf("handlers: importing %s into album %d: %v", rel, albumID, err)
		} else {
			outcome.Result = &result
			if result.Created {
				imported++
			}
		}
		outcomes = append(outcomes, outcome)
	}

	writeOK(w, http.StatusOK, fmt.Sprintf("%d of %d files imported", imported, len(files)), outcomes)
}
