// SPDX-License-Identifier: MIT

// Package api exposes the recording index over HTTP.
package api

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/reovod/reovod/internal/cache"
	"github.com/reovod/reovod/internal/log"
	"github.com/reovod/reovod/internal/vod"
)

// Options configure the HTTP server.
type Options struct {
	// RateRPM limits general API requests per client IP per minute.
	RateRPM int
	// RefreshRPM limits manual refresh triggers per client IP per minute.
	RefreshRPM int
	// SnapshotTTL is how long live snapshots are cached.
	SnapshotTTL time.Duration
	// TrustedProxies is a comma separated CIDR list of proxies whose
	// forwarding headers are honored for client IP resolution.
	TrustedProxies string
	// Version is reported by the health endpoint.
	Version string
}

// Server routes HTTP requests to the recording service.
type Server struct {
	svc         *vod.Service
	cache       cache.Cache
	opts        Options
	logger      zerolog.Logger
	trustedNets []*net.IPNet
	refreshing  atomic.Bool
	ready       atomic.Bool
	started     time.Time
}

// New builds a server. responses is used for snapshot caching and may be a
// noop cache.
func New(svc *vod.Service, responses cache.Cache, opts Options) *Server {
	if opts.RateRPM <= 0 {
		opts.RateRPM = 600
	}
	if opts.RefreshRPM <= 0 {
		opts.RefreshRPM = 10
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = 30 * time.Second
	}
	return &Server{
		svc:         svc,
		cache:       responses,
		opts:        opts,
		logger:      log.WithComponent("api"),
		trustedNets: parseTrustedProxies(opts.TrustedProxies),
		started:     time.Now(),
	}
}

// SetReady flips the readiness probe, typically after the first refresh.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Router assembles the middleware stack and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(metrics)
	r.Use(log.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit(s.opts.RateRPM))
		r.Get("/cameras", s.handleCameras)
		r.Route("/cameras/{camera}/channels/{channel}", func(r chi.Router) {
			r.Get("/months/{month}", s.handleMonth)
			r.Get("/recordings", s.handleRecordings)
			r.Get("/recordings/latest", s.handleLatest)
		})
		r.With(s.rateLimit(s.opts.RefreshRPM)).Post("/refresh", s.handleRefresh)
	})

	r.Get("/snapshot/{camera}/{channel}", s.handleSnapshot)
	r.Get("/vod/{camera}/{channel}/*", s.handlePlayback)

	return r
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", listen).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
