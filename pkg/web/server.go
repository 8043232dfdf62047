// Package web provides a real-time dashboard and control surface for an
// earpiece session: REST endpoints for status and annotations, start/stop
// controls, and a websocket stream of session snapshots.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/earshot-ai/go-earpiece/pkg/bridge"
	"github.com/earshot-ai/go-earpiece/pkg/hub"
)

// snapshotInterval is how often the status hub broadcasts a fresh
// session snapshot to connected dashboards.
const snapshotInterval = 250 * time.Millisecond

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	session *bridge.Session

	// Hub for websocket status broadcast
	statusHub *hub.Hub

	quit chan struct{}
}

// NewServer creates a dashboard server bound to one session.
func NewServer(port string, session *bridge.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		port:      port,
		logger:    logger,
		session:   session,
		statusHub: hub.New("status", logger),
		quit:      make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Earpiece Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// Static files
	app.Static("/", "./web")

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/annotations", s.handleAnnotations)
	api.Post("/session/start", s.handleSessionStart)
	api.Post("/session/stop", s.handleSessionStop)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Start starts the server and the snapshot broadcast loop. It blocks.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", "http://localhost:"+s.port)

	go s.statusHub.Run()
	go s.broadcastLoop()

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard server error", "error", err)
		}
	}()
}

// broadcastLoop pushes session snapshots to all dashboard clients.
func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if err := s.statusHub.BroadcastJSON(s.session.Snapshot()); err != nil {
				s.logger.Warn("snapshot broadcast failed", "error", err)
			}
		}
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.quit)
	s.statusHub.Stop()
	return s.app.ShutdownWithContext(ctx)
}
