package output

import (
	"context"

	"access-assistant/internal/domain/entity"
)

// ActionReport is what the port says happened. Success=false is a
// reported failure and is retryable; a non-nil error from Execute is a
// fault (the collaborator itself misbehaved) and is not.
type ActionReport struct {
	Success bool
	Payload map[string]any
	Error   string
}

// ActionPort executes a single action against the live page and can
// capture a visual snapshot of it. Both calls are bounded by ctx.
type ActionPort interface {
	Execute(ctx context.Context, action *entity.Action) (*ActionReport, error)
	Snapshot(ctx context.Context) (*entity.Snapshot, error)
}
