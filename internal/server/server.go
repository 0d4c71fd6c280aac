// Package server exposes the transfer pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmorgan81/hairswap/internal/catalog"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/feed"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/dmorgan81/hairswap/internal/metrics"
	"github.com/dmorgan81/hairswap/internal/publish"
	"github.com/dmorgan81/hairswap/internal/transfer"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/do"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

type Deps struct {
	Config       *config.Config
	Orchestrator *transfer.Orchestrator
	Catalog      catalog.Catalog
	Publisher    *publish.Publisher
	Metrics      *metrics.Metrics // optional
	Feed         *feed.Generator  // optional
}

type Server struct {
	cfg          *config.Config
	orchestrator *transfer.Orchestrator
	catalog      catalog.Catalog
	publisher    *publish.Publisher
	metrics      *metrics.Metrics
	feed         *feed.Generator
	visitors     *visitors
}

func New(d Deps) *Server {
	return &Server{
		cfg:          d.Config,
		orchestrator: d.Orchestrator,
		catalog:      d.Catalog,
		publisher:    d.Publisher,
		metrics:      d.Metrics,
		feed:         d.Feed,
		visitors:     newVisitors(rate.Limit(d.Config.RateLimit), d.Config.RateBurst),
	}
}

func NewServer(i *do.Injector) (*Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	d := Deps{
		Config:       cfg,
		Orchestrator: do.MustInvoke[*transfer.Orchestrator](i),
		Catalog:      do.MustInvoke[catalog.Catalog](i),
		Publisher:    do.MustInvoke[*publish.Publisher](i),
		Metrics:      do.MustInvoke[*metrics.Metrics](i),
	}
	if cfg.Bucket != "" {
		d.Feed = do.MustInvoke[*feed.Generator](i)
	}
	return New(d), nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, accessLog)

	r.Get("/v1/healthz", s.health)
	r.Get("/v1/model", s.modelInfo)
	r.Get("/v1/history", s.history)
	r.Get("/v1/transfers/{id}", s.getTransfer)

	r.Route("/v1/catalog", func(r chi.Router) {
		r.Get("/", s.categories)
		r.Get("/{category}", s.items)
	})
	r.Get("/v1/examples", s.examples)

	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(s.visitors.middleware)
		}
		r.Post("/v1/transfers", s.createTransfer)
	})

	if s.feed != nil {
		r.Get("/v1/feed.rss", s.rss)
	} else if s.cfg.OutputDir != "" {
		r.Handle("/results/*", http.FileServer(http.Dir(s.cfg.OutputDir)))
	}
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	logger := log.FromContextOrDiscard(ctx).WithGroup("server")
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				s.visitors.sweep(now.Add(-10 * time.Minute))
			}
		}
	}()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
