package output

import (
	"context"

	"access-assistant/internal/domain/entity"
)

// PageContext is the preprocessed page state handed to the planner.
// Ingestion and preprocessing happen outside the engine.
type PageContext struct {
	URL   string
	Title string
	Text  string
}

// Revision is the planner's answer to a clarification. When
// RequiresReplanning is false the clarification was informational and
// Plan is nil.
type Revision struct {
	RequiresReplanning bool
	Plan               *entity.Plan
}

// PlanningPort turns intent plus context into an ordered action plan,
// or an incremental revision of the active one.
type PlanningPort interface {
	Generate(ctx context.Context, intent string, page PageContext, conv *entity.ConversationContext) (*entity.Plan, error)
	Revise(ctx context.Context, clarification string, conv *entity.ConversationContext, current *entity.Plan) (*Revision, error)
}
