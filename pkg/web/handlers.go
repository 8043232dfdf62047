package web

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/earshot-ai/go-earpiece/pkg/bridge"
	"github.com/earshot-ai/go-earpiece/pkg/hub"
)

// handleStatus returns the current session snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.session.Snapshot())
}

// handleAnnotations returns the live whisper annotations in creation
// order.
func (s *Server) handleAnnotations(c *fiber.Ctx) error {
	anns := s.session.Annotations()
	if anns == nil {
		anns = []bridge.Annotation{}
	}
	return c.JSON(anns)
}

// handleSessionStart issues the start intent.
func (s *Server) handleSessionStart(c *fiber.Ctx) error {
	// The session outlives the request, so it gets its own context.
	if err := s.session.Start(context.Background()); err != nil {
		if errors.Is(err, bridge.ErrAlreadyStarted) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "session already active",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(s.session.Snapshot())
}

// handleSessionStop issues the stop intent. Stopping an idle session is
// not an error.
func (s *Server) handleSessionStop(c *fiber.Ctx) error {
	if err := s.session.Stop(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(s.session.Snapshot())
}

// handleStatusWS streams session snapshots over a websocket.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	// Send the current snapshot before joining the broadcast stream.
	if err := c.WriteJSON(s.session.Snapshot()); err != nil {
		c.Close()
		return
	}

	client := hub.NewClient(s.statusHub, c)
	client.Run()
}
