package openrouter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"access-assistant/internal/application/port/output"
	"access-assistant/internal/domain/entity"
)

var _ output.OutcomeJudge = (*JudgeAdapter)(nil)

const judgeSystemPrompt = `You are a verification agent. You receive a screenshot taken before a browser action and one taken after it, plus the action's expected outcome.

Decide whether the action produced the expected outcome.

Response format (MUST be valid JSON):
{
  "success": true/false,
  "reasoning": "one-sentence explanation"
}

Be strict: visual noise alone (ads rotating, clocks ticking) is not evidence of success.`

// JudgeAdapter asks a vision model to compare before/after snapshots
// against an action's declared expected outcome.
type JudgeAdapter struct {
	client *openai.Client
	model  string
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

func NewJudgeAdapter(cfg Config, logger output.LoggerPort) *JudgeAdapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &JudgeAdapter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

func (j *JudgeAdapter) Verify(ctx context.Context, pre, post *entity.Snapshot, expectedOutcome string) (*output.Verdict, error) {
	if pre == nil || post == nil {
		return nil, output.ErrJudgeUnavailable
	}

	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.model,
		Temperature: 0.0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: fmt.Sprintf("Expected outcome: %s\n\nFirst image is BEFORE the action, second is AFTER.", expectedOutcome),
					},
					imagePart(pre),
					imagePart(post),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", output.ErrJudgeUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, output.ErrJudgeUnavailable
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		// An unparseable verdict is no verdict; the executor lets the
		// action pass rather than failing it on our confusion.
		j.logger.Warn("Failed to parse judge response", "error", err)
		return nil, output.ErrJudgeUnavailable
	}

	j.logger.Debug("Judge verdict", "passed", verdict.Passed, "reasoning", verdict.Reasoning)
	return verdict, nil
}

func imagePart(snap *entity.Snapshot) openai.ChatMessagePart {
	format := snap.Format
	if format == "" {
		format = "jpeg"
	}
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL: fmt.Sprintf("data:image/%s;base64,%s", format, base64.StdEncoding.EncodeToString(snap.Data)),
		},
	}
}

func parseVerdict(response string) (*output.Verdict, error) {
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var parsed struct {
		Success   bool   `json:"success"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return &output.Verdict{Passed: parsed.Success, Reasoning: parsed.Reasoning}, nil
}
