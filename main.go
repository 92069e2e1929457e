package main

import (
	"context"
	"log"
	"os"
	"slices"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/multiroom-chat/config"
	"github.com/example/multiroom-chat/modules/activity"
	"github.com/example/multiroom-chat/modules/api"
	"github.com/example/multiroom-chat/modules/broadcast"
	"github.com/example/multiroom-chat/modules/chat"
	"github.com/example/multiroom-chat/modules/ratelimit"
)

func main() {
	log.Println("=== Multi-Room Chat - Fiber + WebSocket ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logLevel, err := cfg.Level()
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(logLevel),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// The initial room is always seeded first.
	rooms := cfg.DefaultRooms
	if !slices.Contains(rooms, chat.DefaultInitialRoom) {
		rooms = append([]string{chat.DefaultInitialRoom}, rooms...)
	}

	broadcastModule := broadcast.NewModule(logger.WithModule("broadcast"))
	chatModule := chat.NewModule(
		broadcastModule.Router(),
		logger.WithModule("chat"),
		chat.WithDefaultRooms(rooms...),
		chat.WithMaxHistory(cfg.MaxHistory),
	)
	activityModule := activity.NewModule(logger.WithModule("activity"))
	apiModule := api.NewModule(cfg, logger.WithModule("api"))

	limiter, err := ratelimit.New(context.Background(), ratelimit.Config{
		Limit:         cfg.RateLimitMessages,
		Window:        cfg.RateLimitWindow,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("Failed to create rate limiter: %v", err)
	}

	// The socket path talks to the engine directly; REST goes through services.
	apiModule.SetEngine(chatModule.Engine())
	apiModule.SetRouter(broadcastModule.Router())
	apiModule.SetLimiter(limiter)

	// Order: delivery first, then the engine, its consumers, and the server.
	app.Register(broadcastModule)
	app.Register(chatModule)
	app.Register(activityModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg, rooms)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg config.Config, rooms []string) {
	if !cfg.Verbose() {
		return
	}

	limiter := "disabled"
	switch {
	case cfg.RateLimitMessages > 0 && cfg.RedisAddr != "":
		limiter = "redis (" + cfg.RedisAddr + ")"
	case cfg.RateLimitMessages > 0:
		limiter = "in-process"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("Rooms: %v (history cap %d)", rooms, cfg.MaxHistory)
	log.Printf("Message rate limit: %s", limiter)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", cfg.Port)
	log.Println("  GET    /health                        - Health check")
	log.Println("  GET    /api/v1/rooms                  - List rooms with member counts")
	log.Println("  POST   /api/v1/rooms                  - Create a room")
	log.Println("  GET    /api/v1/rooms/:name/history    - Recent messages")
	log.Println("  GET    /api/v1/rooms/:name/members    - Room roster")
	log.Println("  GET    /api/v1/stats                  - Activity statistics")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", cfg.Port)
	log.Println("  Client events: join, room:join, room:create, message:send, typing:start, typing:stop")
	log.Println("  Terminal client: go run ./cmd/chatclient --username alice")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
