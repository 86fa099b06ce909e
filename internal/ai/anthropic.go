package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/voxbridge/voxbridge/internal/retry"
	"github.com/voxbridge/voxbridge/internal/sessions"
)

// AnthropicClient implements Client against the Anthropic Messages API,
// for deployments that talk to Anthropic directly instead of OpenRouter.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (required)
	APIKey string

	// Model is the model identifier (optional)
	Model string

	// BaseURL overrides the API endpoint (optional, for tests)
	BaseURL string
}

// NewAnthropicClient creates a new Anthropic-backed AI client.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		client: anthropic.NewClient(options...),
		model:  cfg.Model,
	}, nil
}

// Generate requests a completion with the speech-tuned system prompt.
func (c *AnthropicClient) Generate(ctx context.Context, prompt string, history []sessions.Turn) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, turn := range history {
		block := anthropic.NewTextBlock(turn.Content)
		if turn.Role == sessions.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	resp, err := retry.DoWithValue(ctx, retry.Defaults(), func() (*anthropic.Message, error) {
		return c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: 150,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: messages,
		})
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: completion failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return fallbackReply, nil
	}
	return sb.String(), nil
}
