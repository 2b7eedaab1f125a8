package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/mediagallery/config"
	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/handlers"
	"github.com/camden-git/mediagallery/media"
	"github.com/camden-git/mediagallery/repository"
	"github.com/camden-git/mediagallery/services"
	"github.com/camden-git/mediagallery/workers"
)

const usage = `usage: mediagallery [command] [flags]

commands:
  serve                      run the HTTP server (default)
  sweep                      purge expired trash once and exit
  monitor [-rescan] [-users] import the users tree once and exit
`

type app struct {
	cfg      config.Config
	db       *gorm.DB
	users    repository.UserRepository
	albums   *services.AlbumService
	images   *services.ImageService
	trash    *services.TrashService
	favs     *services.FavoriteService
	scanner  *services.ScanService
	importer *services.ImportService
	monitor  *services.MonitorService
	accounts *services.AccountService
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	for _, p := range cfg.StorageDirs() {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath, logger.Warn)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrateModels(db); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	schema, err := database.DetectSchema(ctx, sqlDB)
	if err != nil {
		return nil, err
	}
	store := database.NewStore(sqlDB, schema)

	layout := cfg.Layout()
	files, err := media.NewLocalStorage(layout.UsersRoot, layout.ThumbsRoot, layout.TrashUsersRoot, layout.TrashThumbsRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize media store: %w", err)
	}
	env := services.MediaEnv{
		Layout: layout,
		Files:  files,
		Processor: media.NewProcessor(media.ProcessorOptions{
			Quality:         cfg.ThumbnailQuality,
			FFmpegPath:      cfg.FFmpegPath,
			FFprobePath:     cfg.FFprobePath,
			PlaceholderPath: cfg.VideoPlaceholderPath,
			CommandTimeout:  cfg.ExternalCommandTimeout,
		}),
		Types: cfg.MediaTypes(),
		Thumbs: services.ThumbnailSpec{
			Width:             cfg.ThumbnailWidth,
			Height:            cfg.ThumbnailHeight,
			Crop:              cfg.ThumbnailCrop,
			VideoFrameSeconds: cfg.VideoFrameSeconds,
		},
	}

	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Originals under: %s", cfg.UsersRoot)
	log.Printf("Thumbnails under: %s (%dx%d, crop=%t)", cfg.ThumbsRoot, cfg.ThumbnailWidth, cfg.ThumbnailHeight, cfg.ThumbnailCrop)
	log.Printf("Trash under: %s (retention %v)", cfg.TrashRoot, cfg.TrashRetention)

	users := repository.NewGormUserRepository(db)
	trash := services.NewTrashService(store, env, cfg.TrashRetention)
	return &app{
		cfg:      cfg,
		db:       db,
		users:    users,
		albums:   services.NewAlbumService(store, env),
		images:   services.NewImageService(store, env),
		trash:    trash,
		favs:     services.NewFavoriteService(store, env, cfg.EnableFavoriteSymlinks),
		scanner:  services.NewScanService(store, env, trash),
		importer: services.NewImportService(store, env),
		monitor:  services.NewMonitorService(store, env),
		accounts: services.NewAccountService(store, users, env),
	}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve", "sweep", "monitor":
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	defer a.close()

	switch command {
	case "serve":
		err = a.serve(ctx)
	case "sweep":
		err = a.sweep(ctx)
	case "monitor":
		err = a.runMonitor(ctx, args)
	}
	if err != nil {
		log.Fatalf("FATAL: %s: %v", command, err)
	}
}

func (a *app) sweep(ctx context.Context) error {
	result, err := a.trash.Sweep(ctx)
	if err != nil {
		return err
	}
	log.Printf("Sweep finished: %d purged, %d failed", result.Purged, result.Failed)
	return nil
}

// parseMonitorArgs reads the monitor command's flags.
func parseMonitorArgs(args []string) (services.MonitorOptions, error) {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	rescan := fs.Bool("rescan", false, "revisit albums that are already imported")
	userList := fs.String("users", "", "comma-separated user ids (default: every user directory)")
	if err := fs.Parse(args); err != nil {
		return services.MonitorOptions{}, err
	}

	opts := services.MonitorOptions{Rescan: *rescan}
	for _, raw := range strings.Split(*userList, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return services.MonitorOptions{}, fmt.Errorf("invalid user id %q: %w", raw, err)
		}
		opts.UserIDs = append(opts.UserIDs, id)
	}
	return opts, nil
}

func monitorSummary(report services.MonitorReport) string {
	return fmt.Sprintf("Monitor finished in %v: %d users, %d albums created, %d images imported, %d errors",
		report.Duration, report.UsersScanned, report.AlbumsCreated, report.ImagesImported, report.Errors)
}

func (a *app) runMonitor(ctx context.Context, args []string) error {
	opts, err := parseMonitorArgs(args)
	if err != nil {
		return err
	}
	report, err := a.monitor.Run(ctx, opts)
	if err != nil {
		return err
	}
	log.Print(monitorSummary(report))
	return nil
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	log.Printf("Initializing monitor worker pool (Workers: %d, Queue Size: %d)...", cfg.NumMonitorWorkers, cfg.MonitorQueueSize)
	queue := workers.NewMonitorQueue(a.monitor, cfg.MonitorQueueSize, cfg.NumMonitorWorkers)
	defer queue.Stop()

	sweeper := workers.NewTrashSweeper(a.trash, cfg.TrashSweepInterval)
	defer sweeper.Stop()

	if cfg.MonitorOnStart {
		go func() {
			if _, err := a.monitor.Run(ctx, services.MonitorOptions{}); err != nil {
				log.Printf("monitor: startup scan failed: %v", err)
			}
		}()
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		UserRepo: a.users,
		Auth:     handlers.NewAuthHandler(a.users, a.accounts),
		Albums: &handlers.AlbumHandler{
			Albums:   a.albums,
			Scanner:  a.scanner,
			Importer: a.importer,
		},
		Images: &handlers.ImageHandler{
			Images:    a.images,
			Trash:     a.trash,
			Favorites: a.favs,
		},
		Monitor:        &handlers.MonitorHandler{Queue: queue},
		ThumbsRoot:     cfg.ThumbsRoot,
		ThumbURLPrefix: cfg.ThumbnailURLPrefix,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Println("Server stopped")
	return nil
}
