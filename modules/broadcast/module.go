package broadcast

import (
	"context"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// BroadcastModule owns the router that delivers chat events to WebSocket
// connections.
type BroadcastModule struct {
	router *Router
	logger types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a new BroadcastModule.
func NewModule(logger types.Logger) *BroadcastModule {
	return &BroadcastModule{
		router: NewRouter(logger),
		logger: logger,
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start initializes the module.
func (m *BroadcastModule) Start(_ context.Context) error {
	m.logger.Info("Broadcast router ready")
	return nil
}

// Stop closes every connection outbox so write loops drain and exit.
func (m *BroadcastModule) Stop(_ context.Context) error {
	n := m.router.CloseAll()
	m.logger.Info("Broadcast router stopped", "connections", n)
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.router.ClientCount(),
		},
	}
}

// Router returns the router for the chat and api modules.
func (m *BroadcastModule) Router() *Router {
	return m.router
}
