package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bjarke-xyz/appstore-api/internal/metrics"
	"github.com/bjarke-xyz/appstore-api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const defaultMaxBodyBytes = 1 << 20

type Options struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
}

type server struct {
	logger *slog.Logger

	store *store.Store
	feed  *Feed

	allowedOrigins []string
	maxBodyBytes   int64
}

func NewServer(logger *slog.Logger, st *store.Store, feed *Feed, opts Options) *server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &server{
		logger:         logger,
		store:          st,
		feed:           feed,
		allowedOrigins: opts.AllowedOrigins,
		maxBodyBytes:   opts.MaxBodyBytes,
	}
}

func (s *server) Server(port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-Request-Id"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)

		apps := s.records(s.store.Apps)
		r.Route("/apps", func(r chi.Router) {
			r.Get("/", apps.list)
			r.Post("/", apps.create)
			r.Get(apps.idPattern(), apps.get)
			r.Put(apps.idPattern(), apps.update)
			r.Delete(apps.idPattern(), apps.delete)
		})

		users := s.records(s.store.Users)
		r.Route("/users", func(r chi.Router) {
			r.Get("/", users.list)
			r.Post("/", users.create)
			r.Get(users.idPattern(), users.get)
		})
	})
	return r
}
