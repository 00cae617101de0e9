package rod

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"access-assistant/internal/domain/entity"
)

func TestMissingParams(t *testing.T) {
	tests := []struct {
		name    string
		action  *entity.Action
		missing []string
	}{
		{
			name:   "click with target",
			action: entity.NewAction(entity.ActionClick, "#btn", nil, "clicked"),
		},
		{
			name:    "click without target",
			action:  entity.NewAction(entity.ActionClick, "", nil, "clicked"),
			missing: []string{"target"},
		},
		{
			name:    "type without text or target",
			action:  entity.NewAction(entity.ActionType, "", nil, "typed"),
			missing: []string{"text", "target"},
		},
		{
			name:   "navigate with url",
			action: entity.NewAction(entity.ActionNavigate, "", map[string]any{"url": "https://example.com"}, "loaded"),
		},
		{
			name:    "wait without duration",
			action:  entity.NewAction(entity.ActionWait, "", nil, "waited"),
			missing: []string{"duration_ms"},
		},
		{
			name:   "summarize needs nothing",
			action: entity.NewAction(entity.ActionSummarize, "", nil, "summary produced"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.missing, missingParams(tt.action))
		})
	}
}

func TestNumberParam(t *testing.T) {
	n, ok := numberParam(float64(1500))
	assert.True(t, ok)
	assert.Equal(t, 1500, n)

	n, ok = numberParam(3)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = numberParam("1500")
	assert.False(t, ok)
}

func TestReportHelpers(t *testing.T) {
	ok := success(map[string]any{"scroll_y": 120})
	assert.True(t, ok.Success)
	assert.Equal(t, 120, ok.Payload["scroll_y"])

	bad := failure("element %q not found", "#gone")
	assert.False(t, bad.Success)
	assert.Equal(t, `element "#gone" not found`, bad.Error)
}

func TestExecute_ClosedAdapterIsFault(t *testing.T) {
	a := &ActionAdapter{closed: true}

	_, err := a.Execute(context.Background(), entity.NewAction(entity.ActionClick, "#x", nil, "clicked"))
	assert.Error(t, err)
}
