package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlan(checkpoints ...string) *Plan {
	actions := []*Action{
		NewAction(ActionNavigate, "", map[string]any{"url": "https://example.com"}, "page loaded"),
		NewAction(ActionClick, "#login", nil, "login form visible"),
		NewAction(ActionType, "#email", map[string]any{"text": "a@b.c"}, "email filled"),
	}
	return NewPlan("session-1", "log in", actions, checkpoints...)
}

func TestNewPlan_Defaults(t *testing.T) {
	p := newTestPlan()

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "session-1", p.SessionID)
	assert.Equal(t, PlanStatusPending, p.Status())
	assert.False(t, p.CreatedAt.IsZero())
	assert.Len(t, p.Actions, 3)
	assert.Empty(t, p.Checkpoints())
}

func TestPlan_Checkpoints(t *testing.T) {
	base := newTestPlan()
	flagged := base.Actions[1].ID
	p := NewPlan(base.SessionID, base.Intent, base.Actions, flagged)

	assert.True(t, p.HasCheckpoint(flagged))
	assert.False(t, p.HasCheckpoint(base.Actions[0].ID))
	assert.Equal(t, []string{flagged}, p.Checkpoints())
}

func TestPlan_CancelRemaining(t *testing.T) {
	p := newTestPlan()
	require.NoError(t, p.Actions[0].Begin())
	require.NoError(t, p.Actions[0].Complete())
	require.NoError(t, p.Actions[1].Begin())
	p.SetStatus(PlanStatusRunning)

	p.CancelRemaining()

	assert.Equal(t, ActionStatusCompleted, p.Actions[0].Status(), "terminal actions keep their status")
	assert.Equal(t, ActionStatusCancelled, p.Actions[1].Status())
	assert.Equal(t, ActionStatusCancelled, p.Actions[2].Status())
	assert.Equal(t, PlanStatusCancelled, p.Status())
	assert.True(t, p.AllTerminal())
}

func TestPlan_CancelRemaining_KeepsTerminalPlanStatus(t *testing.T) {
	p := newTestPlan()
	p.SetStatus(PlanStatusFailed)

	p.CancelRemaining()

	assert.Equal(t, PlanStatusFailed, p.Status())
}

func TestPlan_EstimatedDuration(t *testing.T) {
	actions := []*Action{
		NewAction(ActionNavigate, "", map[string]any{"url": "https://example.com"}, "loaded"),
		NewAction(ActionWait, "", map[string]any{"duration_ms": 2500.0}, "waited"),
		NewAction(ActionClick, "#go", nil, "clicked"),
	}
	p := NewPlan("s", "i", actions)

	assert.Equal(t, 5*time.Second+2500*time.Millisecond+2*time.Second, p.EstimatedDuration)
}
