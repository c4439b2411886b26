/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/gradehall/internal/api"
	"github.com/friendsincode/gradehall/internal/cache"
	"github.com/friendsincode/gradehall/internal/calendar"
	"github.com/friendsincode/gradehall/internal/config"
	"github.com/friendsincode/gradehall/internal/db"
	"github.com/friendsincode/gradehall/internal/eventbus"
	"github.com/friendsincode/gradehall/internal/events"
	"github.com/friendsincode/gradehall/internal/leadership"
	"github.com/friendsincode/gradehall/internal/schedule"
	"github.com/friendsincode/gradehall/internal/scheduler"
	schedulerstate "github.com/friendsincode/gradehall/internal/scheduler/state"
	"github.com/friendsincode/gradehall/internal/slot"
	"github.com/friendsincode/gradehall/internal/telemetry"
	"github.com/friendsincode/gradehall/internal/timetable"
	"github.com/friendsincode/gradehall/internal/version"
)

// bus covers both the in-process event bus and the NATS fan-out.
type bus interface {
	Subscribe(events.EventType) events.Subscriber
	Unsubscribe(events.EventType, events.Subscriber)
	Publish(events.EventType, events.Payload)
}

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db                   *gorm.DB
	cache                *cache.Cache
	bus                  bus
	api                  *api.API
	calendarSvc          *calendar.Service
	exportSvc            *schedule.ExportService
	scheduler            *scheduler.Service
	leaderAwareScheduler *scheduler.LeaderAwareScheduler
	updateChecker        *version.Checker
	metricsServer        *http.Server

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("gradehall-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // the middleware timeout bounds handlers
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		frameAncestors := "'none'"
		xFrameOptions := "DENY"
		if isPrintableGridPath(r.URL.Path) {
			// Hallway display boards embed the printable grid in a
			// same-origin iframe.
			frameAncestors = "'self'"
			xFrameOptions = "SAMEORIGIN"
		}
		w.Header().Set("X-Frame-Options", xFrameOptions)
		w.Header().Set("Content-Security-Policy", "default-src 'self' 'unsafe-inline' data:; frame-ancestors "+frameAncestors+"; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func isPrintableGridPath(path string) bool {
	return strings.HasSuffix(path, "/export.html")
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	// Redis cache for composed grids and class lists
	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	entityCache, err := cache.New(cacheCfg, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
	} else {
		s.cache = entityCache
		s.DeferClose(func() error { return s.cache.Close() })
	}

	// Event bus: NATS fan-out when configured, in-process otherwise
	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsBus, err := eventbus.NewNATSBus(natsCfg, s.logger)
		if err != nil {
			return fmt.Errorf("create NATS event bus: %w", err)
		}
		s.bus = natsBus
		s.DeferClose(func() error { return natsBus.Close() })
	} else {
		s.bus = events.NewBus()
	}

	codec := slot.NewCodec(s.cfg.LunchStart, s.cfg.LunchEnd)

	periods := timetable.DefaultPeriods()
	if s.cfg.PeriodTablePath != "" {
		loaded, err := timetable.LoadPeriods(s.cfg.PeriodTablePath)
		if err != nil {
			return fmt.Errorf("load period table %s: %w", s.cfg.PeriodTablePath, err)
		}
		periods = loaded
	}
	composer := timetable.NewComposer(periods, codec)

	s.calendarSvc = calendar.NewService(database, codec, composer, s.cache, s.bus, s.logger)

	stateStore := schedulerstate.NewStore()
	s.scheduler = scheduler.New(database, codec, stateStore, s.cfg.SchedulerLookahead, s.cfg.SchedulerInterval, s.logger)
	if s.cache != nil {
		s.scheduler.SetCache(s.cache)
	}
	s.scheduler.SetBus(s.bus)

	if s.cfg.LeaderElectionEnabled {
		electionConfig := leadership.ElectionConfig{
			RedisAddr:       s.cfg.RedisAddr,
			RedisPassword:   s.cfg.RedisPassword,
			RedisDB:         s.cfg.RedisDB,
			ElectionKey:     "gradehall:leader:materializer",
			LeaseDuration:   15 * time.Second,
			RenewalInterval: 5 * time.Second,
			RetryInterval:   2 * time.Second,
			InstanceID:      s.cfg.InstanceID,
		}

		election, err := leadership.NewElection(electionConfig, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}

		s.leaderAwareScheduler = scheduler.NewLeaderAware(s.scheduler, election, s.logger)
		s.DeferClose(func() error { return s.leaderAwareScheduler.Stop() })

		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Str("instance_id", electionConfig.InstanceID).
			Msg("leader election enabled for materializer")
	}

	s.exportSvc = schedule.NewExportService(database, s.calendarSvc, codec, s.logger)

	s.api = api.New(s.db, []byte(s.cfg.JWTSigningKey), s.calendarSvc, s.scheduler, s.exportSvc, s.cache, s.bus, s.logger)

	s.updateChecker = version.NewChecker(s.logger)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("metrics server shutdown error")
		}
		cancel()
	}
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Announce the instance on the bus; with NATS this reaches the peers.
	s.bus.Publish(events.EventHealth, events.Payload{
		"instance": s.cfg.InstanceID,
		"version":  version.Version,
	})

	// Materializer, leader-aware when configured
	if s.leaderAwareScheduler != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.leaderAwareScheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("leader-aware materializer exited")
			}
		}()
	} else if s.scheduler != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("materializer loop exited")
			}
		}()
	}

	if s.cache != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}

	if s.updateChecker != nil {
		s.updateChecker.Start(ctx)
	}

	// Standalone metrics listener, kept off the public port
	if s.cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		s.metricsServer = &http.Server{
			Addr:              s.cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.logger.Info().Str("addr", s.cfg.MetricsBind).Msg("metrics listener started")
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("metrics listener exited")
			}
		}()
	}
}

// runCacheInvalidationListener subscribes to bus events and drops the cache
// entries they invalidate. With the NATS bus this also covers writes made by
// other instances.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	classCreated := s.bus.Subscribe(events.EventClassCreated)
	classUpdated := s.bus.Subscribe(events.EventClassUpdated)
	classDeleted := s.bus.Subscribe(events.EventClassDeleted)
	weekTouched := s.bus.Subscribe(events.EventWeekTouched)
	examApplied := s.bus.Subscribe(events.EventExamPlanApplied)
	holidayApplied := s.bus.Subscribe(events.EventHolidayApplied)

	defer func() {
		s.bus.Unsubscribe(events.EventClassCreated, classCreated)
		s.bus.Unsubscribe(events.EventClassUpdated, classUpdated)
		s.bus.Unsubscribe(events.EventClassDeleted, classDeleted)
		s.bus.Unsubscribe(events.EventWeekTouched, weekTouched)
		s.bus.Unsubscribe(events.EventExamPlanApplied, examApplied)
		s.bus.Unsubscribe(events.EventHolidayApplied, holidayApplied)
	}()

	s.logger.Info().Msg("cache invalidation listener started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return

		case <-classCreated:
			s.cache.InvalidateClassList(ctx)
		case <-classUpdated:
			s.cache.InvalidateClassList(ctx)
		case <-classDeleted:
			s.cache.InvalidateClassList(ctx)

		case payload := <-weekTouched:
			if classCode, ok := payload["class_code"].(string); ok && classCode != "" {
				s.logger.Debug().Str("class_code", classCode).Msg("invalidating week grids (calendar write)")
				s.cache.InvalidateClassWeeks(ctx, classCode)
			}

		case payload := <-examApplied:
			if classCode, ok := payload["class_code"].(string); ok && classCode != "" {
				s.cache.InvalidateClassWeeks(ctx, classCode)
			}
			s.cache.InvalidateUpcoming(ctx, "exams")
		case payload := <-holidayApplied:
			if classCode, ok := payload["class_code"].(string); ok && classCode != "" {
				s.cache.InvalidateClassWeeks(ctx, classCode)
			}
			s.cache.InvalidateUpcoming(ctx, "holidays")
		}
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

		response := `{"status":"ok","version":"` + version.Version + `"`
		if s.updateChecker != nil {
			if info := s.updateChecker.Info(); info.UpdateAvailable {
				response += `,"latest":"` + info.LatestVersion + `"`
			}
		}
		if s.leaderAwareScheduler != nil {
			if s.leaderAwareScheduler.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.api.Routes(s.router)
}
