// Package server contains HTTP and WebSocket handlers for the station's API endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"youniverse/internal/cache"
	"youniverse/internal/commentary"
	"youniverse/internal/config"
	"youniverse/internal/database"
	"youniverse/internal/election"
	"youniverse/internal/engine"
	"youniverse/internal/middleware"
	"youniverse/internal/models"
	"youniverse/internal/notifications"
	"youniverse/internal/observability"
	"youniverse/internal/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers. Each running instance
// is one radio node: it serves the API, fans events out to its websocket
// listeners, and competes for leadership of the game loop.
type Server struct {
	config     *config.Config
	db         *gorm.DB
	redis      *redis.Client
	nodeID     string
	songs      repository.SongRepository
	profiles   repository.ProfileRepository
	broadcasts repository.BroadcastRepository
	votes      repository.VoteRepository
	notifier   *notifications.Notifier
	hub        *notifications.RadioHub
	elector    *election.Elector
	engine     *engine.Engine
	announcer  *commentary.Announcer

	app       *fiber.App
	runCancel context.CancelFunc
}

// NewServer creates a new server instance with all dependencies wired.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	middleware.InitMiddleware(cfg)

	nodeID := uuid.NewString()

	songRepo := repository.NewSongRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	broadcastRepo := repository.NewBroadcastRepository(db)

	server := &Server{
		config:     cfg,
		db:         db,
		redis:      redisClient,
		nodeID:     nodeID,
		songs:      songRepo,
		profiles:   profileRepo,
		broadcasts: broadcastRepo,
	}

	var gen commentary.Generator = commentary.StaticGenerator{}
	if cfg.CommentaryURL != "" {
		gen = commentary.NewHTTPGenerator(cfg.CommentaryURL, cfg.CommentaryTimeout())
	}

	// All three tolerate a nil Redis client: publishes and casts become
	// no-ops, so a node without Redis still runs the station loop.
	server.votes = repository.NewVoteRepository(redisClient)
	server.notifier = notifications.NewNotifier(redisClient)
	server.hub = notifications.NewRadioHub()

	engineLog := observability.NewEngineLogger(nodeID)
	server.engine = engine.New(
		songRepo, profileRepo, broadcastRepo, server.votes,
		server.notifier, gen,
		engine.Config{
			BoxSize:          cfg.BoxSize,
			StickyBox:        cfg.StickyBox,
			VotingWindow:     cfg.VotingWindow(),
			RoundDebounce:    cfg.RoundDebounce(),
			PostSongDelay:    cfg.PostSongDelay(),
			EmptyRetry:       cfg.EmptyRetry(),
			ZombieMargin:     cfg.ZombieMargin(),
			DebutThreshold:   cfg.DebutThreshold,
			DebutRetryWindow: cfg.DebutRetryWindow(),
			UserVoteWeight:   cfg.UserVoteWeight,
			SimVoteInterval:  cfg.SimVoteInterval(),
		},
		engineLog,
	)

	server.elector = election.New(broadcastRepo, nodeID,
		cfg.HeartbeatInterval(), cfg.LeaderDeadThreshold(),
		election.Callbacks{
			OnElected:   server.engine.Start,
			HealthCheck: server.engine.CheckRadioHealth,
		},
		middleware.Logger,
	)

	server.announcer = commentary.NewAnnouncer(songRepo, gen,
		cfg.CommentaryURL, cfg.AnnouncerPoll(), middleware.Logger)

	return server, nil
}

// NodeID returns this node's election identity.
func (s *Server) NodeID() string {
	return s.nodeID
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Security headers
	app.Use(helmet.New())

	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.RequestLogger())

	// Prometheus HTTP metrics
	prom := middleware.InitMetrics("youniverse")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)

	// Global rate limiting (200 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        200,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health check
	api.Get("/", s.HealthCheck)

	api.Get("/monitor", monitor.New(monitor.Config{
		Title: "Youniverse Radio Metrics",
	}))

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", s.Register)
	auth.Post("/guest", s.GuestSession)

	// Public radio state
	radio := api.Group("/radio")
	radio.Get("/now", s.NowPlaying)
	radio.Get("/box", s.CurrentBox)

	// Voting needs a stable identity for per-round dedup
	radio.Post("/vote", middleware.AuthRequired, s.CastVote)
	radio.Post("/rate", middleware.AuthRequired, s.RateDebut)

	// Song catalog
	songs := api.Group("/songs")
	songs.Get("/", s.ListSongs)
	songs.Get("/:id", s.GetSong)
	songs.Post("/", middleware.AuthRequired, s.UploadSong)

	// Admin
	admin := api.Group("/admin")
	admin.Post("/reboot", s.RebootStation)

	// Websocket listener feed; anonymous connections allowed
	api.Get("/ws/radio", s.RadioWebsocketUpgrade, s.RadioWebsocketHandler())
}

// HealthCheck handles health check requests
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"message":   "Youniverse Radio",
		"node_id":   s.nodeID,
		"is_leader": s.elector.IsLeader(),
		"listeners": s.listenerCount(),
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

func (s *Server) listenerCount() int {
	if s.hub == nil {
		return 0
	}
	return s.hub.ListenerCount()
}

// Start starts the server
func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName: "Youniverse Radio API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	runCtx, cancel := context.WithCancel(context.Background())
	s.app = app
	s.runCancel = cancel

	// Wire the listener hub to Redis so mutations on any node reach sockets
	// connected to this one.
	if s.hub != nil && s.notifier != nil {
		go func() {
			if err := s.hub.StartWiring(runCtx, s.notifier); err != nil {
				log.Printf("failed to start radio hub wiring: %v", err)
			}
		}()
	}

	// Every node competes for leadership; the winner runs the game loop.
	go s.elector.Run(runCtx)

	// The DJ announcer polls on every node; the announced flag keeps a dead
	// song from being roasted twice.
	go s.announcer.Run(runCtx)

	log.Printf("Node %s starting on port %s...", s.nodeID, s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.runCancel != nil {
		s.runCancel()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("fiber shutdown error: %v", err)
		}
	}

	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			log.Printf("error shutting down radio hub: %v", err)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
