package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ActivityPort reads activity counters.
type ActivityPort interface {
	Summary(ctx context.Context) (Summary, error)
}

// ActivityAdapter implements ActivityPort using the service container.
type ActivityAdapter struct {
	container mono.ServiceContainer
}

// NewActivityAdapter creates a new ActivityAdapter.
func NewActivityAdapter(container mono.ServiceContainer) ActivityPort {
	if container == nil {
		panic("activity: ServiceContainer is nil")
	}
	return &ActivityAdapter{container: container}
}

// Summary fetches the server-wide activity summary.
func (a *ActivityAdapter) Summary(ctx context.Context) (Summary, error) {
	req := GetActivityRequest{}
	var resp Summary
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetActivity,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return Summary{}, fmt.Errorf("failed to get activity: %w", err)
	}
	return resp, nil
}
