package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxbridge/voxbridge/internal/retry"
	"github.com/voxbridge/voxbridge/internal/sessions"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterClient implements Client against OpenRouter's OpenAI-compatible
// chat completion API.
//
// Thread Safety:
// OpenRouterClient is safe for concurrent use.
type OpenRouterClient struct {
	client *openai.Client
	model  string
}

// OpenRouterConfig holds configuration for the OpenRouter client.
type OpenRouterConfig struct {
	// APIKey is the OpenRouter API key (required)
	APIKey string

	// Model is the model identifier, e.g. "anthropic/claude-3-haiku" (optional)
	Model string

	// BaseURL overrides the OpenRouter endpoint (optional, for tests)
	BaseURL string

	// AppName and SiteURL identify the app in the OpenRouter dashboard via
	// the X-Title and HTTP-Referer headers (optional)
	AppName string
	SiteURL string
}

// NewOpenRouterClient creates a new OpenRouter-backed AI client.
func NewOpenRouterClient(cfg OpenRouterConfig) (*OpenRouterClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "anthropic/claude-3-haiku"
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = openRouterBaseURL
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	headers := map[string]string{}
	if cfg.AppName != "" {
		headers["X-Title"] = cfg.AppName
	}
	if cfg.SiteURL != "" {
		headers["HTTP-Referer"] = cfg.SiteURL
	}
	if len(headers) > 0 {
		clientConfig.HTTPClient = &http.Client{
			Timeout:   60 * time.Second,
			Transport: &headerTransport{base: http.DefaultTransport, headers: headers},
		}
	}

	return &OpenRouterClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

// Generate requests a chat completion with the speech-tuned system prompt,
// the accumulated history, and the new user utterance.
func (c *OpenRouterClient) Generate(ctx context.Context, prompt string, history []sessions.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := retry.DoWithValue(ctx, retry.Defaults(), func() (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			MaxTokens:   150,
			Temperature: 0.7,
		})
	})
	if err != nil {
		return "", fmt.Errorf("openrouter: completion failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return fallbackReply, nil
	}
	return resp.Choices[0].Message.Content, nil
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return t.base.RoundTrip(clone)
}
