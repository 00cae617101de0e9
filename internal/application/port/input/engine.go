package input

import (
	"context"

	"access-assistant/internal/application/port/output"
	"access-assistant/internal/domain/entity"
)

// Engine is the only boundary the rest of the application (HTTP layer,
// CLIs) may call. It does not depend on any particular transport.
type Engine interface {
	// SubmitIntent creates the session on first use, obtains a plan from
	// the planning port and stores it as the session's active plan.
	SubmitIntent(ctx context.Context, sessionID, userID, intent string, page output.PageContext) (*entity.Plan, error)

	// SubmitClarification fails with entity.ErrSessionNotFound when the
	// session has no active plan. A replanning revision replaces the
	// active plan atomically; otherwise the existing plan is returned.
	SubmitClarification(ctx context.Context, sessionID, clarification string) (*entity.Plan, error)

	// Execute streams one ExecutionResult per attempted action, in plan
	// order. Re-executing a fully terminal plan replays stored results
	// without touching any port.
	Execute(ctx context.Context, planID string) (<-chan entity.ExecutionResult, error)

	// Resume releases a checkpoint suspension.
	Resume(planID string) error

	// Cancel stops a running plan; the in-flight action is marked
	// cancelled if it had not reached a terminal state.
	Cancel(planID string) error

	// Summary reports which actions ran, which succeeded, and the first
	// failure's reason, including unattempted trailing actions.
	Summary(planID string) (*entity.ExecutionSummary, error)
}
