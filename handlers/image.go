package handlers

import (
	"net/http"
	"strconv"

	"github.com/camden-git/mediagallery/models"
	"github.com/camden-git/mediagallery/services"
)

type ImageHandler struct {
	Images    *services.ImageService
	Trash     *services.TrashService
	Favorites *services.FavoriteService
}

func (ih *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	imageID, err := urlID(r, "image_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	detail, err := ih.Images.GetImage(r.Context(), currentUserID(r), imageID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", detail)
}

// UpdateImage changes the description and/or visibility of an image.
func (ih *ImageHandler) UpdateImage(w http.ResponseWriter, r *http.Request) {
	imageID, err := urlID(r, "image_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req struct {
		Description *string `json:"description"`
		IsPublic    *bool   `json:"is_public"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Description == nil && req.IsPublic == nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_input", "Nothing to update")
		return
	}

	userID := currentUserID(r)
	var img models.Image
	if req.Description != nil {
		if img, err = ih.Images.UpdateDescription(r.Context(), userID, imageID, *req.Description); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if req.IsPublic != nil {
		if img, err = ih.Images.SetVisibility(r.Context(), userID, imageID, *req.IsPublic); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	writeOK(w, http.StatusOK, "Image updated successfully", img)
}

func (ih *ImageHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	imageID, err := urlID(r, "image_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req struct {
		Degrees int `json:"degrees"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	img, err := ih.Images.Rotate(r.Context(), currentUserID(r), imageID, req.Degrees)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Image rotated", img)
}

// DeleteImage moves an image to the trash, or removes it outright with ?force=true.
func (ih *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	imageID, err := urlID(r, "image_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	userID := currentUserID(r)

	if force {
		if err := ih.Trash.ForceDelete(r.Context(), userID, imageID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "Image permanently deleted", nil)
		return
	}

	result, err := ih.Trash.SoftTrash(r.Context(), userID, imageID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	message := "Image moved to trash"
	if result.Forced {
		message = "Image permanently deleted"
	}
	writeOK(w, http.StatusOK, message, result)
}

func (ih *ImageHandler) Restore(w http.ResponseWriter, r *http.Request) {
	imageID, err := urlID(r, "image_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := ih.Trash.Restore(r.Context(), currentUserID(r), imageID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Image restored", nil)
}

func (ih *ImageHandler) ListTrash(w http.ResponseWriter, r *http.Request) {
	entries, err := ih.Trash.ListTrash(r.Context(), currentUserID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", entries)
}

func (ih *ImageHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	imageID, err := urlID(r, "image_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := ih.Favorites.Add(r.Context(), currentUserID(r), imageID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Added to favorites", nil)
}

func (ih *ImageHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	imageID, err := urlID(r, "image_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	removed, err := ih.Favorites.Remove(r.Context(), currentUserID(r), imageID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !removed {
		WriteAPIError(w, http.StatusNotFound, "not_found", "Image is not a favorite")
		return
	}
	writeOK(w, http.StatusOK, "Removed from favorites", nil)
}

func (ih *ImageHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	views, err := ih.Favorites.List(r.Context(), currentUserID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", views)
}
