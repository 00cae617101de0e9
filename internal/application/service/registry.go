package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"access-assistant/internal/application/port/output"
	"access-assistant/internal/domain/entity"
)

const (
	defaultSessionCapacity = 1024
	defaultSessionTTL      = 30 * time.Minute
	defaultPlanningTimeout = 60 * time.Second
)

type RegistryConfig struct {
	// SessionCapacity and SessionTTL bound the session map: least
	// recently used sessions past capacity, and sessions idle past the
	// TTL, are evicted together with their plan index entries.
	SessionCapacity int
	SessionTTL      time.Duration

	// PlanningTimeout bounds PlanningPort calls. A planning timeout is a
	// hard fault surfaced to the caller; no partial plan is stored.
	PlanningTimeout time.Duration
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		SessionCapacity: defaultSessionCapacity,
		SessionTTL:      defaultSessionTTL,
		PlanningTimeout: defaultPlanningTimeout,
	}
}

// session pairs a conversation context with the single active plan. The
// per-session mutex serializes replace-on-clarify against reads from a
// concurrently running executor; unrelated sessions never contend.
type session struct {
	mu      sync.Mutex
	context *entity.ConversationContext
	plan    *entity.Plan
}

// SessionRegistry maps session ids to their active plan and conversation
// context, and drives re-planning through the PlanningPort.
type SessionRegistry struct {
	planner output.PlanningPort
	logger  output.LoggerPort
	cfg     RegistryConfig

	// sessions does its own locking; createMu only serializes
	// create-if-absent so two first intents for one session id cannot
	// race. mu guards the plan index alone, keeping onEvict (which the
	// LRU may invoke from inside Add) deadlock-free.
	createMu sync.Mutex
	sessions *expirable.LRU[string, *session]

	mu    sync.Mutex
	plans map[string]string // plan id -> session id

	// onPlanDiscard, when set, is told every plan id the registry stops
	// tracking through eviction, so the caller can drop whatever state it
	// keeps per plan. Set once during wiring, before the registry serves.
	onPlanDiscard func(planID string)
}

func NewSessionRegistry(planner output.PlanningPort, logger output.LoggerPort, cfg RegistryConfig) *SessionRegistry {
	if cfg.SessionCapacity <= 0 {
		cfg.SessionCapacity = defaultSessionCapacity
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.PlanningTimeout <= 0 {
		cfg.PlanningTimeout = defaultPlanningTimeout
	}

	r := &SessionRegistry{
		planner: planner,
		logger:  logger,
		cfg:     cfg,
		plans:   make(map[string]string),
	}
	r.sessions = expirable.NewLRU[string, *session](cfg.SessionCapacity, r.onEvict, cfg.SessionTTL)
	return r
}

// OnPlanDiscard registers the eviction notification hook.
func (r *SessionRegistry) OnPlanDiscard(fn func(planID string)) {
	r.onPlanDiscard = fn
}

// onEvict drops the evicted session's plan index entries. A run already
// in flight keeps its own plan reference and finishes undisturbed; the
// registry just refuses new work for the evicted id.
func (r *SessionRegistry) onEvict(sessionID string, s *session) {
	var discarded []string
	r.mu.Lock()
	for planID, sid := range r.plans {
		if sid == sessionID {
			delete(r.plans, planID)
			discarded = append(discarded, planID)
		}
	}
	r.mu.Unlock()
	if r.onPlanDiscard != nil {
		for _, planID := range discarded {
			r.onPlanDiscard(planID)
		}
	}
	r.logger.Debug("Session evicted", "sessionId", sessionID, "plans", len(discarded))
}

// SubmitIntent creates the session on first use, obtains a plan from the
// planner and stores it as the session's active plan.
func (r *SessionRegistry) SubmitIntent(ctx context.Context, sessionID, userID, intent string, page output.PageContext) (*entity.Plan, error) {
	r.createMu.Lock()
	s, ok := r.sessions.Get(sessionID)
	if !ok {
		s = &session{context: entity.NewConversationContext(sessionID, userID, page.URL)}
		r.sessions.Add(sessionID, s)
	}
	r.createMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.context.Append(entity.Message{Role: entity.RoleUser, Content: intent})
	if page.URL != "" {
		s.context.SetCurrentURL(page.URL)
	}

	planCtx, cancel := context.WithTimeout(ctx, r.cfg.PlanningTimeout)
	defer cancel()

	plan, err := r.planner.Generate(planCtx, intent, page, s.context)
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}
	if plan == nil || len(plan.Actions) == 0 {
		return nil, fmt.Errorf("planner returned an empty plan for intent %q", intent)
	}
	plan.SessionID = sessionID

	old := s.plan
	s.plan = plan

	r.mu.Lock()
	if old != nil {
		delete(r.plans, old.ID)
	}
	r.plans[plan.ID] = sessionID
	r.mu.Unlock()

	s.context.Append(entity.Message{
		Role:    entity.RoleAssistant,
		Content: fmt.Sprintf("I'll help you with that. I've broken it down into %d steps.", len(plan.Actions)),
		PlanID:  plan.ID,
	})

	r.logger.Info("Plan created", "sessionId", sessionID, "planId", plan.ID, "actions", len(plan.Actions))
	return plan, nil
}

// SubmitClarification consults the planner with the clarification. An
// informational clarification leaves the active plan untouched; a
// replanning revision replaces it atomically. The registry only swaps
// the pointer and index entry; cancelling the replaced plan's remaining
// actions is the engine's job, through the executor that owns the run,
// so the registry never mutates action state a run goroutine may be
// touching.
func (r *SessionRegistry) SubmitClarification(ctx context.Context, sessionID, clarification string) (*entity.Plan, error) {
	s, ok := r.sessions.Get(sessionID)
	if !ok {
		return nil, entity.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plan == nil {
		return nil, entity.ErrSessionNotFound
	}

	s.context.Append(entity.Message{Role: entity.RoleUser, Content: clarification})

	planCtx, cancel := context.WithTimeout(ctx, r.cfg.PlanningTimeout)
	defer cancel()

	revision, err := r.planner.Revise(planCtx, clarification, s.context, s.plan)
	if err != nil {
		return nil, fmt.Errorf("plan revision failed: %w", err)
	}

	if !revision.RequiresReplanning {
		r.logger.Debug("Clarification was informational", "sessionId", sessionID, "planId", s.plan.ID)
		return s.plan, nil
	}
	if revision.Plan == nil || len(revision.Plan.Actions) == 0 {
		return nil, fmt.Errorf("planner required replanning but returned no plan")
	}

	old := s.plan
	newPlan := revision.Plan
	newPlan.SessionID = sessionID

	s.plan = newPlan

	r.mu.Lock()
	delete(r.plans, old.ID)
	r.plans[newPlan.ID] = sessionID
	r.mu.Unlock()

	s.context.Append(entity.Message{
		Role:    entity.RoleAssistant,
		Content: fmt.Sprintf("Understood. I've updated the plan; it now has %d steps.", len(newPlan.Actions)),
		PlanID:  newPlan.ID,
	})

	r.logger.Info("Plan replaced after clarification",
		"sessionId", sessionID, "oldPlanId", old.ID, "newPlanId", newPlan.ID)
	return newPlan, nil
}

// ActivePlan returns the session's current plan under the session lock,
// so a caller observes either the fully-old or fully-new plan.
func (r *SessionRegistry) ActivePlan(sessionID string) (*entity.Plan, error) {
	s, ok := r.sessions.Get(sessionID)
	if !ok {
		return nil, entity.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return nil, entity.ErrPlanNotFound
	}
	return s.plan, nil
}

// PlanByID resolves a plan id to the plan, failing when the plan was
// replaced, evicted or never existed.
func (r *SessionRegistry) PlanByID(planID string) (*entity.Plan, error) {
	r.mu.Lock()
	sessionID, ok := r.plans[planID]
	r.mu.Unlock()
	if !ok {
		return nil, entity.ErrPlanNotFound
	}

	plan, err := r.ActivePlan(sessionID)
	if err != nil {
		return nil, entity.ErrPlanNotFound
	}
	if plan.ID != planID {
		return nil, entity.ErrPlanNotFound
	}
	return plan, nil
}

// Context exposes a session's conversation context.
func (r *SessionRegistry) Context(sessionID string) (*entity.ConversationContext, error) {
	s, ok := r.sessions.Get(sessionID)
	if !ok {
		return nil, entity.ErrSessionNotFound
	}
	return s.context, nil
}

// Clear removes a session explicitly.
func (r *SessionRegistry) Clear(sessionID string) {
	r.sessions.Remove(sessionID)
}

func (r *SessionRegistry) Len() int {
	return r.sessions.Len()
}
