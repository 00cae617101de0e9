package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"access-assistant/internal/application/port/output"
	"access-assistant/internal/domain/entity"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)                          {}
func (nopLogger) Info(string, ...any)                           {}
func (nopLogger) Warn(string, ...any)                           {}
func (nopLogger) Error(string, ...any)                          {}
func (l nopLogger) WithField(string, any) output.LoggerPort     { return l }
func (l nopLogger) WithFields(map[string]any) output.LoggerPort { return l }
func (nopLogger) Close() error                                  { return nil }

type fakePlanner struct {
	mu       sync.Mutex
	genCalls int
	revCalls int
	generate func(intent string) (*entity.Plan, error)
	revise   func(clarification string, current *entity.Plan) (*output.Revision, error)
}

func (f *fakePlanner) Generate(ctx context.Context, intent string, page output.PageContext, conv *entity.ConversationContext) (*entity.Plan, error) {
	f.mu.Lock()
	f.genCalls++
	f.mu.Unlock()
	if f.generate != nil {
		return f.generate(intent)
	}
	return planOf(2), nil
}

func (f *fakePlanner) Revise(ctx context.Context, clarification string, conv *entity.ConversationContext, current *entity.Plan) (*output.Revision, error) {
	f.mu.Lock()
	f.revCalls++
	f.mu.Unlock()
	if f.revise != nil {
		return f.revise(clarification, current)
	}
	return &output.Revision{RequiresReplanning: false}, nil
}

func planOf(n int) *entity.Plan {
	actions := make([]*entity.Action, 0, n)
	for i := 0; i < n; i++ {
		actions = append(actions, entity.NewAction(entity.ActionClick, fmt.Sprintf("#btn-%d", i), nil, "clicked"))
	}
	return entity.NewPlan("", "intent", actions)
}

func testRegistry(planner output.PlanningPort) *SessionRegistry {
	return NewSessionRegistry(planner, nopLogger{}, DefaultRegistryConfig())
}

func TestSubmitIntent_CreatesSessionAndPlan(t *testing.T) {
	planner := &fakePlanner{}
	r := testRegistry(planner)

	plan, err := r.SubmitIntent(context.Background(), "s1", "u1", "open my mail",
		output.PageContext{URL: "https://mail.example.com"})
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "s1", plan.SessionID)
	assert.Equal(t, 1, r.Len())

	got, err := r.PlanByID(plan.ID)
	require.NoError(t, err)
	assert.Same(t, plan, got)

	active, err := r.ActivePlan("s1")
	require.NoError(t, err)
	assert.Same(t, plan, active)

	conv, err := r.Context("s1")
	require.NoError(t, err)
	history := conv.History()
	require.Len(t, history, 2, "user intent plus assistant acknowledgement")
	assert.Equal(t, entity.RoleUser, history[0].Role)
	assert.Equal(t, "open my mail", history[0].Content)
	assert.Equal(t, entity.RoleAssistant, history[1].Role)
	assert.Equal(t, plan.ID, history[1].PlanID)
	assert.Equal(t, "https://mail.example.com", conv.CurrentURL())
}

func TestSubmitIntent_PlannerFailureStoresNothing(t *testing.T) {
	planner := &fakePlanner{
		generate: func(string) (*entity.Plan, error) {
			return nil, errors.New("model overloaded")
		},
	}
	r := testRegistry(planner)

	_, err := r.SubmitIntent(context.Background(), "s1", "u1", "do it", output.PageContext{})
	require.Error(t, err)

	_, err = r.ActivePlan("s1")
	assert.ErrorIs(t, err, entity.ErrPlanNotFound, "the session exists but holds no plan")
}

func TestSubmitIntent_EmptyPlanRejected(t *testing.T) {
	planner := &fakePlanner{
		generate: func(string) (*entity.Plan, error) {
			return entity.NewPlan("", "intent", nil), nil
		},
	}
	r := testRegistry(planner)

	_, err := r.SubmitIntent(context.Background(), "s1", "u1", "do it", output.PageContext{})
	assert.Error(t, err)
}

func TestSubmitIntent_NewIntentReplacesOldPlan(t *testing.T) {
	planner := &fakePlanner{}
	r := testRegistry(planner)

	first, err := r.SubmitIntent(context.Background(), "s1", "u1", "first", output.PageContext{})
	require.NoError(t, err)
	second, err := r.SubmitIntent(context.Background(), "s1", "u1", "second", output.PageContext{})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	// The registry only swaps the pointer and the index; winding the old
	// plan down is the engine's job.
	_, err = r.PlanByID(first.ID)
	assert.ErrorIs(t, err, entity.ErrPlanNotFound)

	active, err := r.ActivePlan("s1")
	require.NoError(t, err)
	assert.Same(t, second, active)
}

func TestSubmitClarification_UnknownSession(t *testing.T) {
	r := testRegistry(&fakePlanner{})

	_, err := r.SubmitClarification(context.Background(), "ghost", "what about this")
	assert.ErrorIs(t, err, entity.ErrSessionNotFound)
	assert.Equal(t, 0, r.Len(), "a clarification never creates a session")
}

func TestSubmitClarification_InformationalKeepsPlan(t *testing.T) {
	planner := &fakePlanner{}
	r := testRegistry(planner)

	original, err := r.SubmitIntent(context.Background(), "s1", "u1", "book a flight", output.PageContext{})
	require.NoError(t, err)

	got, err := r.SubmitClarification(context.Background(), "s1", "I prefer the aisle seat")
	require.NoError(t, err)
	assert.Same(t, original, got)
	assert.Equal(t, entity.PlanStatusPending, original.Status())

	stillThere, err := r.PlanByID(original.ID)
	require.NoError(t, err)
	assert.Same(t, original, stillThere)
}

func TestSubmitClarification_ReplanningSwapsAtomically(t *testing.T) {
	replacement := planOf(1)
	planner := &fakePlanner{
		revise: func(string, *entity.Plan) (*output.Revision, error) {
			return &output.Revision{RequiresReplanning: true, Plan: replacement}, nil
		},
	}
	r := testRegistry(planner)

	old, err := r.SubmitIntent(context.Background(), "s1", "u1", "book a flight", output.PageContext{})
	require.NoError(t, err)

	got, err := r.SubmitClarification(context.Background(), "s1", "actually, next Tuesday")
	require.NoError(t, err)
	assert.Same(t, replacement, got)
	assert.Equal(t, "s1", got.SessionID)

	// The replaced plan is deindexed but its statuses are untouched.
	assert.Equal(t, entity.PlanStatusPending, old.Status())
	_, err = r.PlanByID(old.ID)
	assert.ErrorIs(t, err, entity.ErrPlanNotFound)

	active, err := r.ActivePlan("s1")
	require.NoError(t, err)
	assert.Same(t, replacement, active)
}

func TestSubmitClarification_ReplanningWithoutPlanRejected(t *testing.T) {
	planner := &fakePlanner{
		revise: func(string, *entity.Plan) (*output.Revision, error) {
			return &output.Revision{RequiresReplanning: true}, nil
		},
	}
	r := testRegistry(planner)

	old, err := r.SubmitIntent(context.Background(), "s1", "u1", "book a flight", output.PageContext{})
	require.NoError(t, err)

	_, err = r.SubmitClarification(context.Background(), "s1", "hm")
	require.Error(t, err)

	active, errActive := r.ActivePlan("s1")
	require.NoError(t, errActive)
	assert.Same(t, old, active, "a failed revision leaves the old plan active")
}

func TestRegistry_CapacityEviction(t *testing.T) {
	planner := &fakePlanner{}
	r := NewSessionRegistry(planner, nopLogger{}, RegistryConfig{
		SessionCapacity: 1,
		SessionTTL:      time.Hour,
		PlanningTimeout: time.Second,
	})

	first, err := r.SubmitIntent(context.Background(), "s1", "u1", "first", output.PageContext{})
	require.NoError(t, err)
	_, err = r.SubmitIntent(context.Background(), "s2", "u2", "second", output.PageContext{})
	require.NoError(t, err)

	assert.Equal(t, 1, r.Len())
	_, err = r.ActivePlan("s1")
	assert.ErrorIs(t, err, entity.ErrSessionNotFound)
	_, err = r.PlanByID(first.ID)
	assert.ErrorIs(t, err, entity.ErrPlanNotFound, "eviction drops the plan index entry")
}

func TestRegistry_EvictionNotifiesPlanDiscard(t *testing.T) {
	planner := &fakePlanner{}
	r := NewSessionRegistry(planner, nopLogger{}, RegistryConfig{
		SessionCapacity: 1,
		SessionTTL:      time.Hour,
		PlanningTimeout: time.Second,
	})

	var mu sync.Mutex
	var discarded []string
	r.OnPlanDiscard(func(planID string) {
		mu.Lock()
		discarded = append(discarded, planID)
		mu.Unlock()
	})

	first, err := r.SubmitIntent(context.Background(), "s1", "u1", "first", output.PageContext{})
	require.NoError(t, err)
	_, err = r.SubmitIntent(context.Background(), "s2", "u2", "second", output.PageContext{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{first.ID}, discarded)
}

func TestRegistry_Clear(t *testing.T) {
	r := testRegistry(&fakePlanner{})

	plan, err := r.SubmitIntent(context.Background(), "s1", "u1", "first", output.PageContext{})
	require.NoError(t, err)

	r.Clear("s1")
	assert.Equal(t, 0, r.Len())
	_, err = r.PlanByID(plan.ID)
	assert.ErrorIs(t, err, entity.ErrPlanNotFound)
}

func TestRegistry_ConcurrentClarifyAndRead(t *testing.T) {
	planner := &fakePlanner{
		revise: func(string, *entity.Plan) (*output.Revision, error) {
			return &output.Revision{RequiresReplanning: true, Plan: planOf(1)}, nil
		},
	}
	r := testRegistry(planner)

	_, err := r.SubmitIntent(context.Background(), "s1", "u1", "start", output.PageContext{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := r.SubmitClarification(context.Background(), "s1", "change it")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			plan, err := r.ActivePlan("s1")
			if assert.NoError(t, err) {
				assert.NotNil(t, plan)
			}
		}()
	}
	wg.Wait()

	// Whatever interleaving happened, the index and the session agree.
	active, err := r.ActivePlan("s1")
	require.NoError(t, err)
	byID, err := r.PlanByID(active.ID)
	require.NoError(t, err)
	assert.Same(t, active, byID)
}
