package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrFFmpegUnavailable is returned when the ffmpeg tools cannot be found.
var ErrFFmpegUnavailable = errors.New("ffmpeg is not available")

// IsFFmpegAvailable looks ffmpeg up once per process and caches the answer.
func (p *Processor) IsFFmpegAvailable() bool {
	p.ffmpegOnce.Do(func() {
		path, err := exec.LookPath(p.opts.FFmpegPath)
		if err != nil {
			log.Printf("video: ffmpeg not found (%s): %v", p.opts.FFmpegPath, err)
			return
		}
		log.Printf("video: Using ffmpeg at %s", path)
		p.ffmpegAvailable = true
	})
	return p.ffmpegAvailable
}

func (p *Processor) runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.CommandTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w, stderr: %s", filepath.Base(name), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// GetVideoDuration returns the container duration in seconds as reported by ffprobe.
func (p *Processor) GetVideoDuration(ctx context.Context, path string) (float64, error) {
	if !p.IsFFmpegAvailable() {
		return 0, ErrFFmpegUnavailable
	}
	out, err := p.runCommand(ctx, p.opts.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration for %s: %w", path, err)
	}
	return duration, nil
}

// CreateVideoThumbnail grabs one frame at frameSeconds (or the midpoint of a
// shorter video) and thumbnails it into dst. The frame is always encoded as
// JPEG, whatever dst is named.
func (p *Processor) CreateVideoThumbnail(ctx context.Context, videoPath, dst string, width, height int, frameSeconds float64, crop bool) error {
	if !p.IsFFmpegAvailable() {
		return ErrFFmpegUnavailable
	}
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("video %s: %w", videoPath, err)
	}

	position := frameSeconds
	if duration, err := p.GetVideoDuration(ctx, videoPath); err == nil {
		if duration > 0 && duration < position {
			position = duration / 2
		}
	} else {
		log.Printf("video: Could not read duration of %s, using %.2fs: %v", videoPath, position, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory for %s: %w", dst, err)
	}
	frame, err := os.CreateTemp(filepath.Dir(dst), ".frame-*.jpg")
	if err != nil {
		return fmt.Errorf("failed to create temp frame file: %w", err)
	}
	framePath := frame.Name()
	frame.Close()
	defer os.Remove(framePath)

	_, err = p.runCommand(ctx, p.opts.FFmpegPath,
		"-y",
		"-ss", strconv.FormatFloat(position, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		framePath,
	)
	if err != nil {
		return fmt.Errorf("failed to extract frame from %s: %w", videoPath, err)
	}
	if fi, err := os.Stat(framePath); err != nil || fi.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no output for %s", videoPath)
	}

	return p.CreateThumbnail(framePath, dst, width, height, crop)
}
