package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"canvas-backend/internal/auth"
	"canvas-backend/internal/config"
	"canvas-backend/internal/document"
	"canvas-backend/internal/handler"
	"canvas-backend/internal/logx"
	"canvas-backend/internal/presence"
	"canvas-backend/internal/room"
)

// Server wraps the Fiber app and the sync core it serves.
type Server struct {
	app            *fiber.App
	cfg            *config.Config
	db             *gorm.DB
	router         *room.Router
	registry       *presence.Registry
	flusher        *document.Flusher
	jwtManager     *auth.JWTManager
	canvasHandler  *handler.CanvasWSHandler
	projectHandler *handler.ProjectHandler
	healthHandler  *handler.HealthHandler
}

// New builds the server. mirror may be nil when the redis presence
// mirror is disabled.
func New(cfg *config.Config, db *gorm.DB, mirror *presence.Mirror) *Server {
	app := fiber.New(fiber.Config{
		AppName:         "Canvas Sync Backend",
		ServerHeader:    "Fiber",
		StrictRouting:   true,
		CaseSensitive:   true,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		Prefork:         false, // incompatible with WebSocket state
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		BodyLimit:       10 * 1024 * 1024,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	router := room.NewRouter()
	registry := presence.NewRegistry(mirror)
	docs := document.NewDBStore(db)
	flusher := document.NewFlusher(docs, cfg.Sync.SaveDebounce)

	return &Server{
		app:        app,
		cfg:        cfg,
		db:         db,
		router:     router,
		registry:   registry,
		flusher:    flusher,
		jwtManager: jwtManager,
		canvasHandler: handler.NewCanvasWSHandler(
			router, registry, docs, flusher, jwtManager, cfg.Sync.HistoryCapacity,
		),
		projectHandler: handler.NewProjectHandler(db, docs, router),
		healthHandler:  handler.NewHealthHandler(db, mirror),
	}
}

// SetupMiddleware installs the global middleware chain.
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes wires the REST surface and the WebSocket endpoint.
func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Live)

	writeLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	projectGroup := s.app.Group("/api/projects", auth.Middleware(s.jwtManager))
	projectGroup.Post("/", writeLimiter, s.projectHandler.CreateProject)
	projectGroup.Get("/", s.projectHandler.ListProjects)
	projectGroup.Get("/:id", s.projectHandler.GetProject)
	projectGroup.Get("/:id/document", s.projectHandler.GetDocument)
	projectGroup.Get("/:id/document/export", s.projectHandler.ExportDocument)
	projectGroup.Post("/:id/document/import", writeLimiter, s.projectHandler.ImportDocument)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// the credential travels in the join-room frame, not the upgrade
	// request, so the socket itself is open
	s.app.Get("/ws/canvas", websocket.New(s.canvasHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:   s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  s.cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: s.cfg.WebSocket.HandshakeTimeout,
	}))
}

// Start runs the server and blocks until shutdown. On SIGINT/SIGTERM
// every dirty document is flushed before the listener closes.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logx.L().Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		s.flusher.FlushAll(ctx)
		cancel()

		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			logx.L().Fatalf("server shutdown error: %v", err)
		}
	}()

	logx.L().Infof("canvas sync backend starting on %s", s.cfg.Server.Port)
	logx.L().Infof("websocket endpoint: ws://localhost%s/ws/canvas", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown flushes pending documents and stops the listener.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.flusher.FlushAll(ctx)
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
