/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/timedimension/internal/api"
	"github.com/friendsincode/timedimension/internal/cache"
	"github.com/friendsincode/timedimension/internal/config"
	"github.com/friendsincode/timedimension/internal/db"
	"github.com/friendsincode/timedimension/internal/eventbus"
	"github.com/friendsincode/timedimension/internal/events"
	"github.com/friendsincode/timedimension/internal/export"
	"github.com/friendsincode/timedimension/internal/logbuffer"
	"github.com/friendsincode/timedimension/internal/storage"
	"github.com/friendsincode/timedimension/internal/telemetry"
	"github.com/friendsincode/timedimension/internal/timeline"
	"github.com/friendsincode/timedimension/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db        *gorm.DB
	cache     *cache.Cache
	logBuffer *logbuffer.Buffer
	bus       events.Publisher
	timelines *timeline.Service
	exports   *export.Service
	updates   *version.Checker
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("timedimension-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Timeline streams are long-lived; everything else gets a deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Streams write indefinitely; the middleware timeout covers the rest.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.MetricsBind != "" && cfg.MetricsBind != cfg.HTTPAddr() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")
		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database

	if s.cfg.CacheEnabled {
		resolutionCache, err := cache.New(cache.ConfigFrom(s.cfg), s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			s.cache = resolutionCache
			s.DeferClose(func() error { return resolutionCache.Close() })
		}
	}

	if s.cfg.NATSEnabled {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.NodeID = s.cfg.InstanceID
		nb, err := eventbus.NewNATSBus(natsCfg, s.logger)
		if err != nil {
			return fmt.Errorf("create nats event bus: %w", err)
		}
		s.bus = nb
		s.DeferClose(nb.Close)
	} else {
		s.bus = events.NewBus()
	}

	store, err := storage.New(context.Background(), s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("initialize export storage: %w", err)
	}

	resolver := timeline.NewResolver(s.cfg.DefaultPeriod, s.cfg.MaxGridPoints, s.cfg.DateMode)
	s.timelines = timeline.NewService(database, resolver, s.cache, s.bus, s.logger)
	s.exports = export.NewService(database, s.timelines, store, s.bus, s.logger)

	s.api = api.New(s.timelines, s.exports, s.bus, s.logBuffer, []byte(s.cfg.JWTSigningKey), s.cfg.DateMode, s.logger)
	s.api.SetCache(s.cache)

	if s.cfg.ReleaseFeed != "" {
		checker, err := version.NewChecker(version.CheckerConfig{
			Feed:     s.cfg.ReleaseFeed,
			Interval: s.cfg.ReleaseCheckInterval,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("release checker: %w", err)
		}
		s.updates = checker
		s.api.SetUpdateChecker(checker)
	}

	if s.cfg.JWTSigningKey == "" {
		s.logger.Warn().Msg("no JWT signing key configured, mutating endpoints are unauthenticated")
	}
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer returns the dedicated metrics listener, or nil when metrics
// are only served on the main router.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// LogBuffer returns the server's log buffer for attaching to zerolog.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()

	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Other nodes publish over NATS; their changes must evict our cache too.
	if s.cache != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.timelines.WatchInvalidations(ctx)
		}()
	}

	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}

	if s.updates != nil {
		s.updates.Start(ctx)
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`
		if nb, ok := s.bus.(*eventbus.NATSBus); ok {
			if nb.Connected() {
				response += `,"nats":true`
			} else {
				response += `,"nats":false`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	// Local exports are served from disk; S3 exports link to the bucket.
	if !s.cfg.UsesS3() && s.cfg.ExportRoot != "" {
		files := http.StripPrefix("/exports/", http.FileServer(http.Dir(s.cfg.ExportRoot)))
		s.router.Get("/exports/*", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			files.ServeHTTP(w, r)
		})
	}

	s.api.Routes(s.router)
}
