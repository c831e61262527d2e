package server

import (
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goware/cors"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pressly/lg"
	"github.com/pressly/nativeimg"
	"github.com/pressly/nativeimg/backends"
	"golang.org/x/sync/singleflight"
)

var (
	respond = NewResponder()
)

type Server struct {
	Config   *Config
	Registry *nativeimg.Registry
	Fetcher  *Fetcher

	sizersOnce sync.Once
	sizers     chan struct{}

	cacheOnce sync.Once
	cache     *lru.Cache[string, *Image]
	flight    singleflight.Group
}

func New(conf *Config) *Server {
	return &Server{Config: conf, Registry: backends.Default}
}

func (srv *Server) Configure() (err error) {
	cf := srv.Config

	if err := cf.Apply(); err != nil {
		return err
	}
	if err := cf.SetupStatsD(); err != nil {
		return err
	}

	// must be set before the magick backend is first resolved
	if cf.TmpDir != "" {
		os.Setenv("MAGICK_TMPDIR", cf.TmpDir)
	}

	srv.Fetcher = NewFetcher()
	srv.Fetcher.Throughput = cf.Limits.MaxFetchers
	srv.Fetcher.MaxBodySize = cf.Limits.MaxBodySize
	srv.Fetcher.ReqTimeout = cf.Fetcher.Timeout
	if cf.Fetcher.UserAgent != "" {
		srv.Fetcher.UserAgent = cf.Fetcher.UserAgent
	}

	respond.CacheMaxAge = cf.CacheMaxAge

	if _, err := srv.Registry.Resolve(cf.DefaultBackend); err != nil {
		return err
	}
	return nil
}

// Close signals to the server that should deny new requests
// and finish up requests in progress.
func (srv *Server) Close() {
	lg.Info("closing server..")
}

// Shutdown will release the loaded backends.
func (srv *Server) Shutdown() {
	for _, b := range srv.Registry.Loaded() {
		switch t := b.(type) {
		case interface{ Terminate() }:
			t.Terminate()
		case interface{ Shutdown() }:
			t.Shutdown()
		}
	}
	if cache := srv.imageCache(); cache != nil {
		cache.Purge()
	}
	lg.Info("server shutdown.")
}

func (srv *Server) NewRouter() http.Handler {
	cf := srv.Config

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(lg.RequestLogger(lg.DefaultLogger))
	r.Use(lg.PrintPanics)

	r.Use(middleware.ThrottleBacklog(cf.Limits.MaxRequests, cf.Limits.BacklogSize, cf.Limits.BacklogTimeout))
	r.Use(middleware.Timeout(cf.Limits.RequestTimeout))

	r.Use(middleware.Heartbeat("/ping"))

	if cf.Profiler {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Get("/", Index)
	r.With(trackRoute("backends")).Get("/backends", srv.ListBackends)

	r.Route("/info", func(r chi.Router) {
		r.Use(trackRoute("imageInfo"))
		r.Get("/", srv.GetImageInfo)
		r.Post("/", srv.PostImageInfo)
	})

	r.Route("/{backend}", func(r chi.Router) {
		r.Use(srv.BackendCtx)

		r.With(trackRoute("sizeImage")).Post("/size", srv.SizeImage)

		r.Group(func(r chi.Router) {
			cors := cors.New(cors.Options{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type"},
				ExposedHeaders: []string{"X-Meta-Width", "X-Meta-Height", "X-Err"},
				MaxAge:         300, // Maximum value not ignored by any of major browsers
			})
			r.Use(cors.Handler)
			r.Use(trackRoute("fetchImage"))

			r.Get("/fetch", srv.FetchImage)
		})
	})

	return r
}

func Index(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(200)
	w.Write([]byte(`.`))
}
