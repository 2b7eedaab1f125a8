// media/types.go
package media

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/camden-git/mediagallery/models"
)

// Types is the extension allowlist for importable media.
type Types struct {
	image map[string]bool
	video map[string]bool
}

func NewTypes(imageExts, videoExts []string) Types {
	t := Types{image: make(map[string]bool), video: make(map[string]bool)}
	for _, ext := range imageExts {
		t.image[strings.ToLower(ext)] = true
	}
	for _, ext := range videoExts {
		t.video[strings.ToLower(ext)] = true
	}
	return t
}

// MediaTypeFor determines the media type from the filename extension
func (t Types) MediaTypeFor(filename string) (models.MediaType, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case t.image[ext]:
		return models.MediaTypeImage, true
	case t.video[ext]:
		return models.MediaTypeVideo, true
	}
	return "", false
}

func (t Types) IsSupported(filename string) bool {
	_, ok := t.MediaTypeFor(filename)
	return ok
}

// Classify prefers the declared MIME type and falls back to the extension.
func (t Types) Classify(declaredMime, filename string) (models.MediaType, bool) {
	switch {
	case strings.HasPrefix(declaredMime, "image/"):
		return models.MediaTypeImage, true
	case strings.HasPrefix(declaredMime, "video/"):
		return models.MediaTypeVideo, true
	}
	return t.MediaTypeFor(filename)
}

var knownMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".3gp":  "video/3gpp",
}

// MimeTypeFor maps a filename to its MIME type, "" when unknown.
func MimeTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if m, ok := knownMimeTypes[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension(ext); m != "" {
		return strings.SplitN(m, ";", 2)[0]
	}
	return ""
}

// Metadata contains EXIF and dimension information
type Metadata struct {
	Width        *int     `json:"width,omitempty"`
	Height       *int     `json:"height,omitempty"`
	TakenAt      *int64   `json:"taken_at,omitempty"` // Unix timestamp
	CameraMake   *string  `json:"camera_make,omitempty"`
	CameraModel  *string  `json:"camera_model,omitempty"`
	LensModel    *string  `json:"lens_model,omitempty"`
	ShutterSpeed *string  `json:"shutter_speed,omitempty"`
	Aperture     *float64 `json:"aperture,omitempty"`
	ISO          *int     `json:"iso,omitempty"`
	FocalLength  *float64 `json:"focal_length,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	GPSFormatted *string  `json:"gps,omitempty"`
}
