package langchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"access-assistant/internal/application/port/output"
	"access-assistant/internal/domain/entity"
)

const samplePlanResponse = `Here is the plan:
{
  "estimated_duration_seconds": 25,
  "actions": [
    {"kind": "navigate", "parameters": {"url": "https://shop.example.com"}, "expected_outcome": "shop home loaded"},
    {"kind": "type", "target": "#search", "parameters": {"text": "wool socks"}, "expected_outcome": "query entered"},
    {"kind": "click", "target": "#buy-now", "parameters": {}, "expected_outcome": "order placed", "checkpoint": true}
  ]
}`

func TestParsePlan(t *testing.T) {
	plan, err := parsePlan(samplePlanResponse, "buy wool socks")
	require.NoError(t, err)

	assert.Equal(t, "buy wool socks", plan.Intent)
	assert.Equal(t, 25*time.Second, plan.EstimatedDuration)
	require.Len(t, plan.Actions, 3)

	assert.Equal(t, entity.ActionNavigate, plan.Actions[0].Kind)
	assert.Equal(t, "https://shop.example.com", plan.Actions[0].Parameters["url"])
	assert.Equal(t, entity.ActionType, plan.Actions[1].Kind)
	assert.Equal(t, "#search", plan.Actions[1].Target)
	assert.Equal(t, entity.DefaultMaxRetries, plan.Actions[1].MaxRetries)

	assert.True(t, plan.HasCheckpoint(plan.Actions[2].ID), "the destructive action is flagged")
	assert.False(t, plan.HasCheckpoint(plan.Actions[0].ID))
}

func TestParsePlan_UnknownKindRejected(t *testing.T) {
	_, err := parsePlan(`{"actions": [{"kind": "teleport", "expected_outcome": "moved"}]}`, "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}

func TestParsePlan_EmptyActions(t *testing.T) {
	_, err := parsePlan(`{"actions": []}`, "noop")
	assert.Error(t, err)
}

func TestParsePlan_RespectsMaxRetriesOverride(t *testing.T) {
	plan, err := parsePlan(`{"actions": [{"kind": "click", "target": "#x", "expected_outcome": "clicked", "max_retries": 1}]}`, "click it")
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Actions[0].MaxRetries)
}

func TestExtractJSON(t *testing.T) {
	raw, err := extractJSON("prose before {\"a\": 1} prose after")
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, raw)

	_, err = extractJSON("no json here")
	assert.Error(t, err)
}

func TestBuildGeneratePrompt(t *testing.T) {
	conv := entity.NewConversationContext("s1", "u1", "")
	conv.DeclareNeed(entity.NeedScreenReader)
	conv.Append(entity.Message{Role: entity.RoleUser, Content: "find the cheapest flight"})

	prompt := buildGeneratePrompt("find the cheapest flight",
		output.PageContext{URL: "https://air.example.com", Title: "Flights", Text: "Book now"}, conv)

	assert.Contains(t, prompt, "Intent: find the cheapest flight")
	assert.Contains(t, prompt, "Flights")
	assert.Contains(t, prompt, "https://air.example.com")
	assert.Contains(t, prompt, "Book now")
	assert.Contains(t, prompt, "screen_reader")
	assert.Contains(t, prompt, "user: find the cheapest flight")
}

func TestBuildGeneratePrompt_TrimsLongHistory(t *testing.T) {
	conv := entity.NewConversationContext("s1", "u1", "")
	for i := 0; i < 10; i++ {
		conv.Append(entity.Message{Role: entity.RoleUser, Content: string(rune('a' + i))})
	}

	prompt := buildGeneratePrompt("intent", output.PageContext{}, conv)

	assert.NotContains(t, prompt, "user: a")
	assert.NotContains(t, prompt, "user: d")
	assert.Contains(t, prompt, "user: e")
	assert.Contains(t, prompt, "user: j")
}

func TestBuildRevisePrompt(t *testing.T) {
	current := entity.NewPlan("s1", "order groceries", []*entity.Action{
		entity.NewAction(entity.ActionNavigate, "", map[string]any{"url": "https://food.example.com"}, "loaded"),
		entity.NewAction(entity.ActionClick, "#checkout", nil, "checkout open"),
	})

	prompt := buildRevisePrompt("make it a weekly delivery", nil, current)

	assert.Contains(t, prompt, "Clarification: make it a weekly delivery")
	assert.Contains(t, prompt, `intent "order groceries"`)
	assert.Contains(t, prompt, "1. navigate")
	assert.Contains(t, prompt, "2. click #checkout")
}
