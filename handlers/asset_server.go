package handlers

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AssetServer serves files below baseDir for requests under routePrefix, e.g.
//
//	r.Get("/api/thumbs/*", AssetServer(cfg.ThumbsRoot, "/api/thumbs/"))
//
// maps /api/thumbs/user_7/Vacation/a.jpg to <ThumbsRoot>/user_7/Vacation/a.jpg.
func AssetServer(baseDir, routePrefix string) http.HandlerFunc {
	baseDir = filepath.Clean(baseDir)
	log.Printf("Serving assets for '%s*' from directory: %s", routePrefix, baseDir)

	return func(w http.ResponseWriter, r *http.Request) {
		relativePath := strings.TrimPrefix(r.URL.Path, routePrefix)
		if relativePath == "" || relativePath == r.URL.Path || strings.Contains(relativePath, "..") {
			WriteAPIError(w, http.StatusBadRequest, "invalid_path", "Invalid asset path")
			return
		}

		cleanedAssetPath := filepath.Clean(filepath.Join(baseDir, filepath.FromSlash(relativePath)))
		if !strings.HasPrefix(cleanedAssetPath, baseDir+string(filepath.Separator)) {
			WriteAPIError(w, http.StatusForbidden, "forbidden", "Forbidden")
			log.Printf("SECURITY: Attempted asset access outside designated directory: Request='%s', Resolved='%s', Allowed Base='%s'",
				r.URL.Path, cleanedAssetPath, baseDir)
			return
		}

		info, err := os.Stat(cleanedAssetPath)
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
			log.Printf("Error stating asset file %s: %v", cleanedAssetPath, err)
			return
		}
		if info.IsDir() {
			http.NotFound(w, r)
			return
		}

		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))

		http.ServeFile(w, r, cleanedAssetPath)
	}
}
