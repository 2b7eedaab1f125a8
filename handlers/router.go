package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/camden-git/mediagallery/repository"
)

type RouterConfig struct {
	UserRepo       repository.UserRepository
	Auth           *AuthHandler
	Albums         *AlbumHandler
	Images         *ImageHandler
	Monitor        *MonitorHandler
	ThumbsRoot     string
	ThumbURLPrefix string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(rc RouterConfig) http.Handler {
	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   rc.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	timeout := rc.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(corsHandler.Handler)
	r.Use(MetricsMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	thumbPrefix := "/" + strings.Trim(rc.ThumbURLPrefix, "/") + "/"
	r.Get(thumbPrefix+"*", AssetServer(rc.ThumbsRoot, thumbPrefix))

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(rc.UserRepo))

		r.Post("/auth/register", rc.Auth.Register)

		r.Route("/albums", func(r chi.Router) {
			r.With(RequireUser).Get("/", rc.Albums.ListAlbums)
			r.With(RequireUser).Post("/", rc.Albums.CreateAlbum)
			r.Route("/{album_id}", func(r chi.Router) {
				// anonymous callers may read public albums
				r.Get("/", rc.Albums.GetAlbum)
				r.Group(func(r chi.Router) {
					r.Use(RequireUser)
					r.Put("/", rc.Albums.UpdateAlbum)
					r.Delete("/", rc.Albums.DeleteAlbum)
					r.Put("/cover", rc.Albums.SetCover)
					r.Get("/breadcrumbs", rc.Albums.Breadcrumbs)
					r.Post("/scan", rc.Albums.Scan)
					r.Post("/sync-deletions", rc.Albums.SyncDeletions)
					r.Post("/upload", rc.Albums.Upload)
				})
			})
		})

		r.Route("/images/{image_id}", func(r chi.Router) {
			r.Get("/", rc.Images.GetImage)
			r.Group(func(r chi.Router) {
				r.Use(RequireUser)
				r.Put("/", rc.Images.UpdateImage)
				r.Delete("/", rc.Images.DeleteImage)
				r.Post("/rotate", rc.Images.Rotate)
				r.Post("/restore", rc.Images.Restore)
				r.Post("/favorite", rc.Images.AddFavorite)
				r.Delete("/favorite", rc.Images.RemoveFavorite)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)
			r.Get("/auth/me", rc.Auth.CurrentUser)
			r.Delete("/account", rc.Auth.DeleteAccount)
			r.Get("/trash", rc.Images.ListTrash)
			r.Get("/favorites", rc.Images.ListFavorites)
			if rc.Monitor != nil {
				r.Post("/monitor", rc.Monitor.TriggerScan)
			}
		})
	})

	return r
}
