package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/camden-git/mediagallery/media"
)

const (
	DefaultTrashUsersSubDir  = "users"
	DefaultTrashThumbsSubDir = "thumbs"
)

const (
	defaultThumbnailWidth      = 300
	defaultThumbnailHeight     = 200
	defaultThumbnailQuality    = 85
	defaultTrashRetentionDays  = 30
	defaultVideoFrameSeconds   = 1
	defaultExternalCmdTimeout  = 30
	defaultThumbnailURLPrefix  = "/api/thumbs/"
	defaultImageExtensionsList = ".jpg,.jpeg,.png,.gif,.bmp,.tif,.tiff,.webp"
	defaultVideoExtensionsList = ".mp4,.mov,.m4v,.avi,.mkv,.webm,.3gp"
)

type Config struct {
	// storage roots
	UsersRoot       string // originals, <UsersRoot>/user_<id>/<album path>/...
	ThumbsRoot      string // thumbnails mirror the users tree
	TrashRoot       string
	TrashUsersRoot  string // <TrashRoot>/users
	TrashThumbsRoot string // <TrashRoot>/thumbs

	// database path
	DatabasePath string

	// thumbnail generation settings
	ThumbnailWidth     int
	ThumbnailHeight    int
	ThumbnailQuality   int
	ThumbnailCrop      bool
	ThumbnailURLPrefix string

	// trash settings
	TrashRetention     time.Duration
	TrashSweepInterval time.Duration // 0 disables the in-process sweeper

	// supported media
	ImageExtensions []string
	VideoExtensions []string

	// video handling
	VideoPlaceholderPath   string
	FFmpegPath             string
	FFprobePath            string
	VideoFrameSeconds      float64
	ExternalCommandTimeout time.Duration

	EnableFavoriteSymlinks bool

	// folder monitor
	NumMonitorWorkers int
	MonitorQueueSize  int
	MonitorOnStart    bool

	// http
	Port               string
	CORSAllowedOrigins []string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val < 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %t. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

// splitList turns ".jpg, .PNG,mp4" into [".jpg" ".png" ".mp4"]
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, part)
	}
	return out
}

func absPath(label, p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s '%s': %w", label, p, err)
	}
	return abs, nil
}

func LoadConfig() (Config, error) {
	usersRoot, err := absPath("users root", getEnvOrDefault("USERS_ROOT", filepath.Join(".", "storage", "users")))
	if err != nil {
		return Config{}, err
	}
	thumbsRoot, err := absPath("thumbs root", getEnvOrDefault("THUMBS_ROOT", filepath.Join(".", "storage", "thumbs")))
	if err != nil {
		return Config{}, err
	}
	trashRoot, err := absPath("trash root", getEnvOrDefault("TRASH_ROOT", filepath.Join(".", "storage", "trash")))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		UsersRoot:       usersRoot,
		ThumbsRoot:      thumbsRoot,
		TrashRoot:       trashRoot,
		TrashUsersRoot:  filepath.Join(trashRoot, DefaultTrashUsersSubDir),
		TrashThumbsRoot: filepath.Join(trashRoot, DefaultTrashThumbsSubDir),

		DatabasePath: getEnvOrDefault("DATABASE_PATH", "gallery.db"),

		ThumbnailWidth:     getEnvIntOrDefault("THUMBNAIL_WIDTH", defaultThumbnailWidth),
		ThumbnailHeight:    getEnvIntOrDefault("THUMBNAIL_HEIGHT", defaultThumbnailHeight),
		ThumbnailQuality:   getEnvIntOrDefault("THUMBNAIL_QUALITY", defaultThumbnailQuality),
		ThumbnailCrop:      getEnvBoolOrDefault("THUMBNAIL_CROP", true),
		ThumbnailURLPrefix: getEnvOrDefault("THUMBNAIL_URL_PREFIX", defaultThumbnailURLPrefix),

		TrashRetention:     time.Duration(getEnvIntOrDefault("TRASH_RETENTION_DAYS", defaultTrashRetentionDays)) * 24 * time.Hour,
		TrashSweepInterval: time.Duration(getEnvIntOrDefault("TRASH_SWEEP_INTERVAL_MINUTES", 0)) * time.Minute,

		ImageExtensions: splitList(getEnvOrDefault("IMAGE_EXTENSIONS", defaultImageExtensionsList)),
		VideoExtensions: splitList(getEnvOrDefault("VIDEO_EXTENSIONS", defaultVideoExtensionsList)),

		VideoPlaceholderPath:   getEnvOrDefault("VIDEO_PLACEHOLDER_PATH", filepath.Join(".", "assets", "video-placeholder.jpg")),
		FFmpegPath:             getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:            getEnvOrDefault("FFPROBE_PATH", "ffprobe"),
		VideoFrameSeconds:      float64(getEnvIntOrDefault("VIDEO_FRAME_SECONDS", defaultVideoFrameSeconds)),
		ExternalCommandTimeout: time.Duration(getEnvIntOrDefault("EXTERNAL_COMMAND_TIMEOUT_SECONDS", defaultExternalCmdTimeout)) * time.Second,

		EnableFavoriteSymlinks: getEnvBoolOrDefault("FAVORITE_SYMLINKS", runtime.GOOS != "windows"),

		NumMonitorWorkers: getEnvIntOrDefault("MONITOR_WORKERS", 1),
		MonitorQueueSize:  getEnvIntOrDefault("MONITOR_QUEUE_SIZE", 100),
		MonitorOnStart:    getEnvBoolOrDefault("MONITOR_ON_START", false),

		Port:               getEnvOrDefault("PORT", "8080"),
		CORSAllowedOrigins: strings.Split(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173"), ","),
	}

	if cfg.ThumbnailWidth == 0 || cfg.ThumbnailHeight == 0 {
		return Config{}, fmt.Errorf("thumbnail dimensions must be positive, got %dx%d", cfg.ThumbnailWidth, cfg.ThumbnailHeight)
	}
	if cfg.ThumbnailQuality == 0 || cfg.ThumbnailQuality > 100 {
		log.Printf("Warning: THUMBNAIL_QUALITY %d out of range, using %d", cfg.ThumbnailQuality, defaultThumbnailQuality)
		cfg.ThumbnailQuality = defaultThumbnailQuality
	}

	return cfg, nil
}

// Layout builds the path resolver for the configured roots.
func (c Config) Layout() media.Layout {
	return media.Layout{
		UsersRoot:       c.UsersRoot,
		ThumbsRoot:      c.ThumbsRoot,
		TrashUsersRoot:  c.TrashUsersRoot,
		TrashThumbsRoot: c.TrashThumbsRoot,
		ThumbURLPrefix:  c.ThumbnailURLPrefix,
	}
}

// MediaTypes builds the extension allowlist used by the scanner and importer.
func (c Config) MediaTypes() media.Types {
	return media.NewTypes(c.ImageExtensions, c.VideoExtensions)
}

// StorageDirs lists the directories that must exist before serving.
func (c Config) StorageDirs() []string {
	return []string{c.UsersRoot, c.ThumbsRoot, c.TrashRoot, c.TrashUsersRoot, c.TrashThumbsRoot, filepath.Dir(c.DatabasePath)}
}
