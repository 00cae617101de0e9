package entity

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type ActionKind string

const (
	ActionClick          ActionKind = "click"
	ActionType           ActionKind = "type"
	ActionScroll         ActionKind = "scroll"
	ActionWait           ActionKind = "wait"
	ActionNavigate       ActionKind = "navigate"
	ActionExtractInfo    ActionKind = "extract_info"
	ActionSummarize      ActionKind = "summarize"
	ActionAnswerQuestion ActionKind = "answer_question"
)

func ParseActionKind(s string) (ActionKind, error) {
	switch ActionKind(s) {
	case ActionClick, ActionType, ActionScroll, ActionWait,
		ActionNavigate, ActionExtractInfo, ActionSummarize, ActionAnswerQuestion:
		return ActionKind(s), nil
	}
	return "", fmt.Errorf("unknown action kind: %q", s)
}

// RequiredParams returns the parameter keys an action of this kind must
// carry. The target selector is tracked separately on the Action itself.
func (k ActionKind) RequiredParams() []string {
	switch k {
	case ActionType:
		return []string{"text"}
	case ActionScroll:
		return []string{"direction"}
	case ActionWait:
		return []string{"duration_ms"}
	case ActionNavigate:
		return []string{"url"}
	case ActionAnswerQuestion:
		return []string{"question"}
	}
	return nil
}

type ActionStatus string

const (
	ActionStatusPending    ActionStatus = "pending"
	ActionStatusInProgress ActionStatus = "in_progress"
	ActionStatusCompleted  ActionStatus = "completed"
	ActionStatusFailed     ActionStatus = "failed"
	ActionStatusCancelled  ActionStatus = "cancelled"
)

func (s ActionStatus) Terminal() bool {
	return s == ActionStatusCompleted || s == ActionStatusFailed || s == ActionStatusCancelled
}

// legalTransitions is the single source of truth for the action lifecycle.
// in_progress -> pending is the retry edge.
var legalTransitions = map[ActionStatus][]ActionStatus{
	ActionStatusPending:    {ActionStatusInProgress, ActionStatusCancelled},
	ActionStatusInProgress: {ActionStatusCompleted, ActionStatusPending, ActionStatusFailed, ActionStatusCancelled},
}

func (s ActionStatus) CanTransitionTo(to ActionStatus) bool {
	for _, t := range legalTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

const DefaultMaxRetries = 3

// Action is one atomic step of a Plan. It is owned by exactly one Plan.
// The identity fields and MaxRetries are fixed before the plan is
// published; status and retry count change only through the methods
// below, which are safe to use from the executor goroutine and
// concurrent readers (summaries, transport DTOs) alike.
type Action struct {
	ID              string
	Kind            ActionKind
	Target          string
	Parameters      map[string]any
	ExpectedOutcome string
	MaxRetries      int

	mu         sync.Mutex
	status     ActionStatus
	retryCount int
}

func NewAction(kind ActionKind, target string, params map[string]any, expectedOutcome string) *Action {
	if params == nil {
		params = map[string]any{}
	}
	return &Action{
		ID:              uuid.NewString(),
		Kind:            kind,
		Target:          target,
		Parameters:      params,
		ExpectedOutcome: expectedOutcome,
		MaxRetries:      DefaultMaxRetries,
		status:          ActionStatusPending,
	}
}

func (a *Action) Status() ActionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Action) RetryCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.retryCount
}

func (a *Action) transitionLocked(to ActionStatus) error {
	if !a.status.CanTransitionTo(to) {
		return fmt.Errorf("illegal action transition %s -> %s (action %s)", a.status, to, a.ID)
	}
	a.status = to
	return nil
}

func (a *Action) transition(to ActionStatus) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transitionLocked(to)
}

// Begin marks the start of one attempt.
func (a *Action) Begin() error {
	return a.transition(ActionStatusInProgress)
}

func (a *Action) Complete() error {
	return a.transition(ActionStatusCompleted)
}

func (a *Action) Fail() error {
	return a.transition(ActionStatusFailed)
}

// Retry returns the action to pending and charges the retry counter.
// Retrying past the ceiling is illegal.
func (a *Action) Retry() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.retryCount >= a.MaxRetries {
		return fmt.Errorf("action %s has exhausted retries (%d/%d)", a.ID, a.retryCount, a.MaxRetries)
	}
	if err := a.transitionLocked(ActionStatusPending); err != nil {
		return err
	}
	a.retryCount++
	return nil
}

func (a *Action) CanRetry() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.retryCount < a.MaxRetries
}

// Cancel is legal from any non-terminal state and a no-op error otherwise.
func (a *Action) Cancel() error {
	return a.transition(ActionStatusCancelled)
}
