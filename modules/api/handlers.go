package api

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	domain "github.com/example/multiroom-chat/domain/chat"
	"github.com/example/multiroom-chat/modules/activity"
	"github.com/example/multiroom-chat/modules/chat"
)

const (
	maxRoomNameLength   = 100
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	// Health check
	app.Get("/health", m.healthHandler)

	// WebSocket endpoint
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handleWebSocket, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}))

	// REST API v1
	api := app.Group("/api/v1")
	api.Get("/rooms", m.listRooms)
	api.Post("/rooms", m.createRoom)
	api.Get("/rooms/:name/history", m.getHistory)
	api.Get("/rooms/:name/members", m.getMembers)
	api.Get("/stats", m.getStats)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.router.ClientCount(),
		},
	})
}

// listRooms handles GET /api/v1/rooms.
func (m *APIModule) listRooms(c *fiber.Ctx) error {
	rooms, err := m.chatAdapter.ListRooms(c.UserContext())
	if err != nil {
		m.logger.Error("Failed to list rooms", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list rooms",
		})
	}
	return c.JSON(RoomListResponse{Rooms: rooms})
}

// createRoom handles POST /api/v1/rooms.
func (m *APIModule) createRoom(c *fiber.Ctx) error {
	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "Room name is required",
		})
	}
	if len(name) > maxRoomNameLength {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "Room name too long (max 100 characters)",
		})
	}

	err := m.chatAdapter.CreateRoom(c.UserContext(), name)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrRoomAlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error:   "already_exists",
			Message: "Room already exists",
		})
	case errors.Is(err, chat.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "Room name is required",
		})
	default:
		m.logger.Error("Failed to create room", "room", name, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "create_failed",
			Message: "Failed to create room",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(domain.RoomSummary{Name: name})
}

// getHistory handles GET /api/v1/rooms/:name/history.
func (m *APIModule) getHistory(c *fiber.Ctx) error {
	room := c.Params("name")
	limit := defaultHistoryLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxHistoryLimit {
			limit = parsed
		}
	}

	messages, err := m.chatAdapter.GetHistory(c.UserContext(), room, limit)
	if err != nil {
		return m.roomLookupError(c, room, err)
	}
	return c.JSON(HistoryResponse{Room: room, Messages: messages})
}

// getMembers handles GET /api/v1/rooms/:name/members.
func (m *APIModule) getMembers(c *fiber.Ctx) error {
	room := c.Params("name")

	members, err := m.chatAdapter.GetMembers(c.UserContext(), room)
	if err != nil {
		return m.roomLookupError(c, room, err)
	}
	return c.JSON(MembersResponse{Room: room, Members: members})
}

// getStats handles GET /api/v1/stats.
func (m *APIModule) getStats(c *fiber.Ctx) error {
	// Concurrent stats requests share one activity round trip.
	v, err, _ := m.stats.Do("summary", func() (any, error) {
		return m.activityAdapter.Summary(c.UserContext())
	})
	if err != nil {
		m.logger.Error("Failed to get activity", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "stats_failed",
			Message: "Failed to get statistics",
		})
	}
	return c.JSON(StatsResponse{
		ConnectedClients: m.router.ClientCount(),
		Activity:         v.(activity.Summary),
	})
}

func (m *APIModule) roomLookupError(c *fiber.Ctx, room string, err error) error {
	if errors.Is(err, chat.ErrRoomNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Room not found",
		})
	}
	m.logger.Error("Room lookup failed", "room", room, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "lookup_failed",
		Message: "Failed to read room",
	})
}
