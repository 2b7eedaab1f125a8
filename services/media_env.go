package services

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/camden-git/mediagallery/media"
	"github.com/camden-git/mediagallery/metrics"
	"github.com/camden-git/mediagallery/models"
)

// ThumbnailSpec is the configured thumbnail geometry.
type ThumbnailSpec struct {
	Width             int
	Height            int
	Crop              bool
	VideoFrameSeconds float64
}

// MediaEnv bundles the filesystem side the services share.
type MediaEnv struct {
	Layout    media.Layout
	Files     media.Store
	Processor *media.Processor
	Types     media.Types
	Thumbs    ThumbnailSpec
}

// renderThumbnail writes the thumbnail for src at dst. Videos that cannot be
// decoded get a placeholder; the returned error is only set when nothing
// could be written.
func (e MediaEnv) renderThumbnail(ctx context.Context, src, dst string, mediaType models.MediaType) error {
	start := time.Now()
	defer func() {
		metrics.ThumbnailDuration.WithLabelValues(string(mediaType)).Observe(time.Since(start).Seconds())
	}()

	if err := e.Files.EnsureDir(filepath.Dir(dst)); err != nil {
		metrics.ThumbnailsGenerated.WithLabelValues(string(mediaType), "failed").Inc()
		return err
	}

	t := e.Thumbs
	if mediaType == models.MediaTypeVideo {
		err := e.Processor.CreateVideoThumbnail(ctx, src, dst, t.Width, t.Height, t.VideoFrameSeconds, t.Crop)
		if err == nil {
			metrics.ThumbnailsGenerated.WithLabelValues(string(mediaType), "ok").Inc()
			return nil
		}
		log.Printf("thumbnails: video frame for %s unavailable, using placeholder: %v", src, err)
		if perr := e.Processor.WritePlaceholderThumbnail(dst, t.Width, t.Height); perr != nil {
			metrics.ThumbnailsGenerated.WithLabelValues(string(mediaType), "failed").Inc()
			return perr
		}
		metrics.ThumbnailsGenerated.WithLabelValues(string(mediaType), "placeholder").Inc()
		return nil
	}

	if err := e.Processor.CreateThumbnail(src, dst, t.Width, t.Height, t.Crop); err != nil {
		metrics.ThumbnailsGenerated.WithLabelValues(string(mediaType), "failed").Inc()
		return err
	}
	metrics.ThumbnailsGenerated.WithLabelValues(string(mediaType), "ok").Inc()
	return nil
}

// removeFile deletes path and reports anything other than "already gone".
func (e MediaEnv) removeFile(path, operation string) error {
	err := e.Files.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	metrics.FilesystemErrors.WithLabelValues(operation).Inc()
	log.Printf("%s: %v", operation, err)
	return err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
