package entity

import "time"

// Disposition describes what happened to an action from the caller's
// point of view. Actions after a terminal failure keep "not_attempted"
// rather than being relabelled cancelled.
type Disposition string

const (
	DispositionCompleted    Disposition = "completed"
	DispositionFailed       Disposition = "failed"
	DispositionCancelled    Disposition = "cancelled"
	DispositionNotAttempted Disposition = "not_attempted"
)

// ExecutionResult is the append-only record of one attempted action.
type ExecutionResult struct {
	ActionID    string         `json:"action_id"`
	Success     bool           `json:"success"`
	Payload     map[string]any `json:"payload,omitempty"`
	Error       string         `json:"error,omitempty"`
	SnapshotRef string         `json:"snapshot_ref,omitempty"`
	Elapsed     time.Duration  `json:"elapsed_ms"`
	Attempts    int            `json:"attempts"`
}

// ActionOutcome is one line of an ExecutionSummary.
type ActionOutcome struct {
	ActionID    string      `json:"action_id"`
	Kind        ActionKind  `json:"kind"`
	Disposition Disposition `json:"disposition"`
	Error       string      `json:"error,omitempty"`
}

// ExecutionSummary reports a plan run without dropping information about
// unattempted trailing actions.
type ExecutionSummary struct {
	PlanID          string          `json:"plan_id"`
	PlanStatus      PlanStatus      `json:"plan_status"`
	ExecutedCount   int             `json:"executed_count"`
	SuccessfulCount int             `json:"successful_count"`
	FirstFailure    string          `json:"first_failure,omitempty"`
	Actions         []ActionOutcome `json:"actions"`
}
