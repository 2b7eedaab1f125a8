package media

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const placeholderLabel = "VIDEO"

var (
	placeholderBackground = color.RGBA{R: 0x2b, G: 0x2d, B: 0x31, A: 0xff}
	placeholderForeground = color.RGBA{R: 0xe8, G: 0xe8, B: 0xe8, A: 0xff}
)

// WritePlaceholderThumbnail stands in for a video frame. The configured
// placeholder file is thumbnailed when present, otherwise a plain "VIDEO"
// card is drawn as a JPEG.
func (p *Processor) WritePlaceholderThumbnail(dst string, width, height int) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory for %s: %w", dst, err)
	}
	if p.opts.PlaceholderPath != "" {
		if _, err := os.Stat(p.opts.PlaceholderPath); err == nil {
			err := p.CreateThumbnail(p.opts.PlaceholderPath, dst, width, height, true)
			if err == nil {
				return nil
			}
			log.Printf("video: Placeholder %s unusable: %v", p.opts.PlaceholderPath, err)
		}
	}
	return writeImage(dst, RenderPlaceholder(width, height), imaging.JPEG, p.opts.Quality)
}

// RenderPlaceholder draws the label centred on a dark card.
func RenderPlaceholder(width, height int) image.Image {
	width, height = maxInt(width, 1), maxInt(height, 1)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderBackground}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(placeholderForeground),
		Face: face,
	}
	textWidth := d.MeasureString(placeholderLabel).Ceil()
	x := (width - textWidth) / 2
	y := (height+face.Ascent)/2 - 1
	d.Dot = fixed.P(x, y)
	d.DrawString(placeholderLabel)
	return img
}
