package media

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"
)

const (
	DefaultThumbnailQuality = 85
	RotationJpegQuality     = 95
	DefaultCommandTimeout   = 30 * time.Second
)

// ErrUnsupportedImage is returned when a source cannot be decoded.
var ErrUnsupportedImage = errors.New("unsupported or unreadable image")

type ProcessorOptions struct {
	Quality         int
	FFmpegPath      string
	FFprobePath     string
	PlaceholderPath string
	CommandTimeout  time.Duration
}

// Processor handles media transformations: thumbnailing, rotation, metadata
// extraction and video frame grabs.
type Processor struct {
	opts ProcessorOptions

	ffmpegOnce      sync.Once
	ffmpegAvailable bool
}

func NewProcessor(opts ProcessorOptions) *Processor {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultThumbnailQuality
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	return &Processor{opts: opts}
}

// decodeFile returns the decoded image and the encoding format it was stored in.
func decodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, path, err)
	}
	return img, format, nil
}

// CropRect is the largest region of a srcW x srcH image, centred, with the
// aspect ratio of dstW x dstH.
func CropRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rect(0, 0, maxInt(srcW, 0), maxInt(srcH, 0))
	}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)

	if srcAspect > dstAspect {
		cw := int(math.Round(float64(srcH) * dstAspect))
		cw = maxInt(1, cw)
		x := (srcW - cw) / 2
		return image.Rect(x, 0, x+cw, srcH)
	}
	ch := int(math.Round(float64(srcW) / dstAspect))
	ch = maxInt(1, ch)
	y := (srcH - ch) / 2
	return image.Rect(0, y, srcW, y+ch)
}

// CreateThumbnail renders src into dst at width x height. With crop the output
// is exactly width x height; otherwise the image is fit inside the box. The
// thumbnail is encoded in the source's format. If encoding fails the source is
// copied verbatim, so the only error cases are an unreadable source or an
// unwritable destination.
func (p *Processor) CreateThumbnail(src, dst string, width, height int, crop bool) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid thumbnail size %dx%d", width, height)
	}
	img, formatName, err := decodeFile(src)
	if err != nil {
		return err
	}

	var thumb image.Image
	if crop {
		b := img.Bounds()
		rect := CropRect(b.Dx(), b.Dy(), width, height).Add(b.Min)
		thumb = imaging.Resize(imaging.Crop(img, rect), width, height, imaging.Lanczos)
	} else {
		thumb = imaging.Fit(img, width, height, imaging.Lanczos)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory for %s: %w", dst, err)
	}

	format, err := imaging.FormatFromExtension(formatName)
	if err == nil {
		err = writeImage(dst, thumb, format, p.opts.Quality)
	}
	if err != nil {
		log.Printf("processor: Could not encode thumbnail for %s (%v), copying original", src, err)
		if cerr := copyFile(src, dst); cerr != nil {
			return fmt.Errorf("failed to write thumbnail %s: %w", dst, cerr)
		}
	}
	return nil
}

// RotateImage rotates the file at path clockwise in place.
func (p *Processor) RotateImage(path string, degreesCW int) error {
	degreesCW = ((degreesCW % 360) + 360) % 360
	if degreesCW == 0 {
		return nil
	}
	img, formatName, err := decodeFile(path)
	if err != nil {
		return err
	}
	format, err := imaging.FormatFromExtension(formatName)
	if err != nil {
		return fmt.Errorf("failed to rotate %s: %w", path, err)
	}

	// imaging rotates counter-clockwise
	rotated := imaging.Rotate(img, float64(-degreesCW), color.Transparent)
	if err := writeImage(path, rotated, format, RotationJpegQuality); err != nil {
		return fmt.Errorf("failed to save rotated image %s: %w", path, err)
	}
	return nil
}

// AutoRotateImage applies the EXIF orientation of a JPEG to its pixels.
// Missing or unreadable EXIF is not an error.
func (p *Processor) AutoRotateImage(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".jpg" && ext != ".jpeg" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	x, err := exif.Decode(f)
	f.Close()
	if err != nil {
		return nil
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return nil
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return nil
	}

	var degreesCW int
	switch orientation {
	case 3:
		degreesCW = 180
	case 6:
		degreesCW = 90
	case 8:
		degreesCW = 270
	default:
		return nil
	}
	log.Printf("processor: Auto-rotating %s by %d degrees (EXIF orientation %d)", path, degreesCW, orientation)
	return p.RotateImage(path, degreesCW)
}
