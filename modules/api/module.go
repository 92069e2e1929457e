// Package api serves the chat over Fiber: the WebSocket endpoint that drives
// the coordination engine and a small REST surface for rooms and stats.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/singleflight"

	"github.com/example/multiroom-chat/config"
	"github.com/example/multiroom-chat/modules/activity"
	"github.com/example/multiroom-chat/modules/broadcast"
	"github.com/example/multiroom-chat/modules/chat"
	"github.com/example/multiroom-chat/modules/ratelimit"
)

const startupGrace = 100 * time.Millisecond

// APIModule is the HTTP API module with WebSocket support.
type APIModule struct {
	app             *fiber.App
	addr            string
	allowedOrigins  string
	outboxSize      int
	chatAdapter     chat.ChatPort
	activityAdapter activity.ActivityPort
	engine          *chat.Engine
	router          *broadcast.Router
	limiter         ratelimit.Limiter
	stats           singleflight.Group
	logger          types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
)

// NewModule creates a new APIModule.
func NewModule(cfg config.Config, logger types.Logger) *APIModule {
	return &APIModule{
		addr:           cfg.Addr(),
		allowedOrigins: cfg.CORSAllowedOrigins,
		outboxSize:     cfg.OutboxSize,
		limiter:        ratelimit.Unlimited{},
		logger:         logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"chat", "activity"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "chat":
		m.chatAdapter = chat.NewChatAdapter(container)
	case "activity":
		m.activityAdapter = activity.NewActivityAdapter(container)
	}
}

// SetEngine sets the coordination engine driven by WebSocket sessions
// (called from main.go).
func (m *APIModule) SetEngine(engine *chat.Engine) {
	m.engine = engine
}

// SetRouter sets the broadcast router (called from main.go).
func (m *APIModule) SetRouter(router *broadcast.Router) {
	m.router = router
}

// SetLimiter sets the message rate limiter. The module closes it on Stop.
func (m *APIModule) SetLimiter(l ratelimit.Limiter) {
	if l != nil {
		m.limiter = l
	}
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.chatAdapter == nil {
		return fmt.Errorf("chat adapter dependency not set")
	}
	if m.activityAdapter == nil {
		return fmt.Errorf("activity adapter dependency not set")
	}
	if m.engine == nil {
		return fmt.Errorf("chat engine not set")
	}
	if m.router == nil {
		return fmt.Errorf("broadcast router not set")
	}

	m.app = m.newApp()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(startupGrace):
	}

	m.logger.Info("HTTP server started", "addr", m.addr)
	return nil
}

// newApp builds the Fiber application with middleware and routes.
func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		UnescapePath:          true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		// Skip logging for WebSocket upgrade requests
		Next:   isUpgrade,
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.setupRoutes(app)
	return app
}

// Stop closes live sockets, then shuts down the Fiber HTTP server.
// Upgraded connections are not tracked by Fiber's shutdown, so they are
// closed through the router while the engine can still process leaves.
func (m *APIModule) Stop(ctx context.Context) error {
	var errs []error
	if m.router != nil {
		if n := m.router.CloseAll(); n > 0 {
			m.logger.Info("Closed WebSocket connections", "count", n)
		}
	}
	if m.app != nil {
		m.logger.Info("Shutting down HTTP server")
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown server: %w", err))
		}
	}
	if err := m.limiter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close rate limiter: %w", err))
	}
	return errors.Join(errs...)
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"addr": m.addr}
	if m.router != nil {
		details["connected_clients"] = m.router.ClientCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

// errorHandler handles Fiber errors.
func (m *APIModule) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}
	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

func isUpgrade(c *fiber.Ctx) bool {
	return c.Get(fiber.HeaderUpgrade) == "websocket"
}
