// Package server contains the HTTP handlers for the confessions API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"confessions/internal/affiliation"
	"confessions/internal/cache"
	"confessions/internal/config"
	"confessions/internal/database"
	"confessions/internal/featureflags"
	"confessions/internal/middleware"
	"confessions/internal/models"
	"confessions/internal/notifications"
	"confessions/internal/repository"
	"confessions/internal/service"
	"confessions/internal/validation"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	confessionRepo repository.ConfessionRepository
	commentRepo    repository.CommentRepository
	notifier       *notifications.Notifier
	featureFlags   *featureflags.Manager
	catalog        *affiliation.Catalog
	validator      *validation.Validator
	confessions    *service.ConfessionService
	comments       *service.CommentService
}

// NewServer connects to the database and Redis and builds a Server on top.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; snapshots, cross-instance events and rate limits
// are then disabled.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	middleware.InitMiddleware(cfg)

	catalog := affiliation.Default()
	if cfg.AffiliationCatalogPath != "" {
		loaded, err := affiliation.Load(cfg.AffiliationCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load affiliation catalog: %w", err)
		}
		catalog = loaded
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("confessions-api"),
		confessionRepo: repository.NewConfessionRepository(db),
		commentRepo:    repository.NewCommentRepository(db),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		catalog:        catalog,
		validator:      validation.New(),
	}

	deps := service.ConfessionDeps{
		Repo:           server.confessionRepo,
		Flags:          server.featureFlags,
		Catalog:        catalog,
		Logger:         middleware.Logger,
		Retry:          retryPolicy(cfg),
		ReconcileLikes: cfg.SyncReconcileLikes,
	}
	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
		deps.Publisher = server.notifier
		deps.Snapshots = cache.NewSnapshotStore(redisClient, cfg.SnapshotNamespace)
	}
	server.confessions = service.NewConfessionService(deps)
	server.comments = service.NewCommentService(server.commentRepo, server.confessions, nil)
	server.confessions.SetCommentCounter(server.comments)

	return server, nil
}

func retryPolicy(cfg *config.Config) service.RetryPolicy {
	p := service.DefaultRetryPolicy()
	if cfg.RemoteTimeoutMS > 0 {
		p.Timeout = cfg.RemoteTimeout()
	}
	if cfg.RemoteMaxAttempts > 0 {
		p.MaxAttempts = cfg.RemoteMaxAttempts
	}
	return p
}

// Confessions exposes the state container for bootstrap code.
func (s *Server) Confessions() *service.ConfessionService {
	return s.confessions
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// propagates request and user ids into the logger context
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}
	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/flags", middleware.OptionalAuth, s.GetFeatureFlags)
	api.Get("/catalog", s.GetCatalog)

	confessions := api.Group("/confessions")
	confessions.Get("/", middleware.OptionalAuth, s.GetFeed)
	confessions.Post("/", middleware.AuthRequired, middleware.RateLimit(
		s.redis, s.submitLimit(), s.submitWindow(), "submit_confession"), s.SubmitConfession)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	confessions.Post("/:id/like", middleware.AuthRequired, s.ToggleLike)
	confessions.Get("/:id/comments", s.GetComments)
	confessions.Post("/:id/comments", middleware.AuthRequired, middleware.RateLimit(
		s.redis, 10, time.Minute, "create_comment"), s.CreateComment)
	confessions.Get("/:id", middleware.OptionalAuth, s.GetConfession)

	me := api.Group("/me", middleware.AuthRequired)
	me.Get("/likes", s.GetMyLikes)

	moderation := api.Group("/moderation", middleware.AuthRequired, middleware.ModeratorRequired)
	moderation.Get("/queue", s.GetModerationQueue)
	moderation.Post("/sync", s.SyncConfessions)
	moderation.Post("/confessions/:id/approve", s.ApproveConfession)
	moderation.Post("/confessions/:id/reject", s.RejectConfession)
	moderation.Get("/confessions/:id/log", s.GetModerationLog)
}

func (s *Server) submitLimit() int {
	if s.config.SubmitRateLimit > 0 {
		return s.config.SubmitRateLimit
	}
	return 5
}

func (s *Server) submitWindow() time.Duration {
	if s.config.SubmitRateWindowSec > 0 {
		return s.config.SubmitRateWindow()
	}
	return 10 * time.Minute
}

// LivenessCheck answers the liveness endpoint
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports database and Redis health. Redis is optional, so
// only the database decides the status code.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus != "healthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Confessions API",
		BodyLimit: 1 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start warms the confession state, wires cross-instance sync and serves
// HTTP until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	if err := s.confessions.Warm(ctx); err != nil {
		// serve the snapshot (or nothing) and let the sync loop catch up
		middleware.Logger.Warn("initial refresh failed", slog.String("error", err.Error()))
	}

	if s.notifier != nil {
		if err := s.notifier.StartEventSubscriber(ctx, s.confessions.HandleSyncEvent); err != nil {
			middleware.Logger.Warn("event subscriber not started", slog.String("error", err.Error()))
		}
	}
	go s.confessions.Run(ctx, time.Duration(s.config.SyncIntervalSeconds)*time.Second)

	s.app = s.NewApp()
	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// stops the subscriber and the sync loop
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
