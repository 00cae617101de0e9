package langchain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"access-assistant/internal/application/port/output"
	"access-assistant/internal/domain/entity"
)

var _ output.PlanningPort = (*PlannerAdapter)(nil)

const plannerSystemPrompt = `You are a planning agent for an accessibility web assistant. You turn a user's intent into an ordered list of browser actions.

Allowed action kinds: click, type, scroll, wait, navigate, extract_info, summarize, answer_question.
Required parameters: type needs "text", scroll needs "direction" (up/down/top/bottom), wait needs "duration_ms", navigate needs "url", answer_question needs "question". click and type also need a CSS selector in "target".

Mark an action "checkpoint": true when it is destructive or hard to undo (submitting a form, completing a purchase) so the user confirms before it runs.

Response format (MUST be valid JSON):
{
  "estimated_duration_seconds": 20,
  "actions": [
    {"kind": "click", "target": "#submit", "parameters": {}, "expected_outcome": "form submitted", "checkpoint": false}
  ]
}`

const revisePromptSuffix = `

The user sent a clarification for an existing plan. Decide whether the plan must be rebuilt.

Response format (MUST be valid JSON):
{
  "requires_replanning": true/false,
  "estimated_duration_seconds": 20,
  "actions": [ ... new plan when requires_replanning is true, otherwise [] ... ]
}`

// PlannerAdapter generates and revises plans through an OpenAI-compatible
// chat model.
type PlannerAdapter struct {
	llm    *openai.LLM
	logger output.LoggerPort
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

func DefaultConfig(apiKey, model string) Config {
	return Config{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: "https://openrouter.ai/api/v1",
	}
}

func NewPlannerAdapter(cfg Config, logger output.LoggerPort) (*PlannerAdapter, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create planner llm: %w", err)
	}
	return &PlannerAdapter{llm: llm, logger: logger}, nil
}

func (p *PlannerAdapter) Generate(ctx context.Context, intent string, page output.PageContext, conv *entity.ConversationContext) (*entity.Plan, error) {
	user := buildGeneratePrompt(intent, page, conv)

	content, err := p.complete(ctx, plannerSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	plan, err := parsePlan(content, intent)
	if err != nil {
		return nil, fmt.Errorf("planner returned an unusable plan: %w", err)
	}
	p.logger.Info("Plan generated", "intent", intent, "actions", len(plan.Actions))
	return plan, nil
}

func (p *PlannerAdapter) Revise(ctx context.Context, clarification string, conv *entity.ConversationContext, current *entity.Plan) (*output.Revision, error) {
	user := buildRevisePrompt(clarification, conv, current)

	content, err := p.complete(ctx, plannerSystemPrompt+revisePromptSuffix, user)
	if err != nil {
		return nil, err
	}

	raw, err := extractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("planner revision unparseable: %w", err)
	}
	var head struct {
		RequiresReplanning bool `json:"requires_replanning"`
	}
	if err := json.Unmarshal([]byte(raw), &head); err != nil {
		return nil, fmt.Errorf("planner revision unparseable: %w", err)
	}
	if !head.RequiresReplanning {
		return &output.Revision{RequiresReplanning: false}, nil
	}

	plan, err := parsePlan(content, current.Intent+" ("+clarification+")")
	if err != nil {
		return nil, fmt.Errorf("planner required replanning but plan was unusable: %w", err)
	}
	return &output.Revision{RequiresReplanning: true, Plan: plan}, nil
}

func (p *PlannerAdapter) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := p.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, llms.WithTemperature(0.0))
	if err != nil {
		return "", fmt.Errorf("planner llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("planner llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func buildGeneratePrompt(intent string, page output.PageContext, conv *entity.ConversationContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Intent: %s\n", intent)
	if page.URL != "" {
		fmt.Fprintf(&sb, "Current page: %s (%s)\n", page.Title, page.URL)
	}
	if page.Text != "" {
		fmt.Fprintf(&sb, "\nPage content:\n%s\n", page.Text)
	}
	appendConversation(&sb, conv)
	return sb.String()
}

func buildRevisePrompt(clarification string, conv *entity.ConversationContext, current *entity.Plan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Clarification: %s\n", clarification)
	fmt.Fprintf(&sb, "\nCurrent plan (intent %q):\n", current.Intent)
	for i, a := range current.Actions {
		fmt.Fprintf(&sb, "%d. %s %s [%s]\n", i+1, a.Kind, a.Target, a.Status())
	}
	appendConversation(&sb, conv)
	return sb.String()
}

func appendConversation(sb *strings.Builder, conv *entity.ConversationContext) {
	if conv == nil {
		return
	}
	if needs := conv.Needs(); len(needs) > 0 {
		parts := make([]string, len(needs))
		for i, n := range needs {
			parts[i] = string(n)
		}
		fmt.Fprintf(sb, "\nAccessibility needs: %s\n", strings.Join(parts, ", "))
	}
	history := conv.History()
	if len(history) == 0 {
		return
	}
	// The last few turns are enough context; full history is the
	// registry's record, not the planner's prompt.
	if len(history) > 6 {
		history = history[len(history)-6:]
	}
	sb.WriteString("\nRecent conversation:\n")
	for _, msg := range history {
		fmt.Fprintf(sb, "%s: %s\n", msg.Role, msg.Content)
	}
}

type planDoc struct {
	EstimatedDurationSeconds int `json:"estimated_duration_seconds"`
	Actions                  []struct {
		Kind            string         `json:"kind"`
		Target          string         `json:"target"`
		Parameters      map[string]any `json:"parameters"`
		ExpectedOutcome string         `json:"expected_outcome"`
		MaxRetries      int            `json:"max_retries"`
		Checkpoint      bool           `json:"checkpoint"`
	} `json:"actions"`
}

func parsePlan(response, intent string) (*entity.Plan, error) {
	raw, err := extractJSON(response)
	if err != nil {
		return nil, err
	}

	var doc planDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if len(doc.Actions) == 0 {
		return nil, fmt.Errorf("plan has no actions")
	}

	actions := make([]*entity.Action, 0, len(doc.Actions))
	var checkpoints []string
	for i, a := range doc.Actions {
		kind, err := entity.ParseActionKind(a.Kind)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i+1, err)
		}
		action := entity.NewAction(kind, a.Target, a.Parameters, a.ExpectedOutcome)
		if a.MaxRetries > 0 {
			action.MaxRetries = a.MaxRetries
		}
		if a.Checkpoint {
			checkpoints = append(checkpoints, action.ID)
		}
		actions = append(actions, action)
	}

	plan := entity.NewPlan("", intent, actions, checkpoints...)
	if doc.EstimatedDurationSeconds > 0 {
		plan.EstimatedDuration = time.Duration(doc.EstimatedDurationSeconds) * time.Second
	}
	return plan, nil
}

func extractJSON(response string) (string, error) {
	response = strings.TrimSpace(response)
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON found in response")
	}
	return response[start : end+1], nil
}
