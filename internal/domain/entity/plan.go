package entity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type PlanStatus string

const (
	PlanStatusPending   PlanStatus = "pending"
	PlanStatusRunning   PlanStatus = "running"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusFailed    PlanStatus = "failed"
	PlanStatusCancelled PlanStatus = "cancelled"
)

// Plan is an ordered sequence of actions satisfying one user intent.
// The action list and checkpoint set are fixed at creation; only the
// plan status and the child action statuses change afterwards. A revised
// intent produces a new Plan, never an in-place edit. Status access is
// synchronized so summaries and transport DTOs can read it while a run
// is in flight.
type Plan struct {
	ID                string
	SessionID         string
	Intent            string
	Actions           []*Action
	CreatedAt         time.Time
	EstimatedDuration time.Duration
	checkpoints       map[string]struct{}

	mu     sync.Mutex
	status PlanStatus
}

func NewPlan(sessionID, intent string, actions []*Action, checkpoints ...string) *Plan {
	cp := make(map[string]struct{}, len(checkpoints))
	for _, id := range checkpoints {
		cp[id] = struct{}{}
	}
	return &Plan{
		ID:                uuid.NewString(),
		SessionID:         sessionID,
		Intent:            intent,
		Actions:           actions,
		CreatedAt:         time.Now(),
		EstimatedDuration: estimateDuration(actions),
		checkpoints:       cp,
		status:            PlanStatusPending,
	}
}

func (p *Plan) Status() PlanStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Plan) SetStatus(s PlanStatus) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Start moves a pending plan to running; any other state is kept.
func (p *Plan) Start() {
	p.mu.Lock()
	if p.status == PlanStatusPending {
		p.status = PlanStatusRunning
	}
	p.mu.Unlock()
}

// HasCheckpoint reports whether execution must pause for explicit
// confirmation before the given action runs.
func (p *Plan) HasCheckpoint(actionID string) bool {
	_, ok := p.checkpoints[actionID]
	return ok
}

func (p *Plan) Checkpoints() []string {
	out := make([]string, 0, len(p.checkpoints))
	for id := range p.checkpoints {
		out = append(out, id)
	}
	return out
}

// CancelRemaining cancels every action that has not reached a terminal
// state. Used when a plan is replaced by re-planning or cancelled.
func (p *Plan) CancelRemaining() {
	for _, a := range p.Actions {
		if !a.Status().Terminal() {
			_ = a.Cancel()
		}
	}
	p.mu.Lock()
	if p.status == PlanStatusPending || p.status == PlanStatusRunning {
		p.status = PlanStatusCancelled
	}
	p.mu.Unlock()
}

// AllTerminal reports whether every action reached a terminal state.
func (p *Plan) AllTerminal() bool {
	for _, a := range p.Actions {
		if !a.Status().Terminal() {
			return false
		}
	}
	return true
}

// estimateDuration is a coarse per-kind cost model used only for the
// user-facing estimate; the executor never consults it.
func estimateDuration(actions []*Action) time.Duration {
	var total time.Duration
	for _, a := range actions {
		switch a.Kind {
		case ActionNavigate:
			total += 5 * time.Second
		case ActionWait:
			if ms, ok := a.Parameters["duration_ms"].(float64); ok {
				total += time.Duration(ms) * time.Millisecond
			} else {
				total += time.Second
			}
		case ActionExtractInfo, ActionSummarize, ActionAnswerQuestion:
			total += 4 * time.Second
		default:
			total += 2 * time.Second
		}
	}
	return total
}
