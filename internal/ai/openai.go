package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kindredbots/kindred/internal/personality"
)

const defaultModel = openai.GPT4oMini

// OpenAIBackend generates responses through the OpenAI chat-completions API,
// one persona's system prompt per request.
type OpenAIBackend struct {
	client   *openai.Client
	registry *personality.Registry
}

// NewOpenAIBackend builds a backend from an API key and optional base URL.
func NewOpenAIBackend(apiKey, baseURL string, registry *personality.Registry) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{
		client:   openai.NewClientWithConfig(cfg),
		registry: registry,
	}
}

// HTTPStatus extracts the HTTP status code carried in a backend error
// chain, for diagnostic logs.
func HTTPStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

// Generate implements Backend.
func (b *OpenAIBackend) Generate(ctx context.Context, personalityID, content string, rc RequestContext) (Response, error) {
	p, ok := b.registry.Get(personalityID)
	if !ok {
		return Response{}, fmt.Errorf("unknown personality %q", personalityID)
	}

	model := p.Model
	if model == "" {
		model = defaultModel
	}

	userContent := content
	if !rc.DisableContextMetadata && rc.UserName != "" {
		userContent = fmt.Sprintf("%s: %s", rc.UserName, content)
	}

	userMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(rc.MediaURLs) > 0 {
		parts := []openai.ChatMessagePart{{
			Type: openai.ChatMessagePartTypeText,
			Text: userContent,
		}}
		for _, u := range rc.MediaURLs {
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: u},
			})
		}
		userMsg.MultiContent = parts
	} else {
		userMsg.Content = userContent
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.SystemPrompt},
			userMsg,
		},
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("chat completion for %s: %w", personalityID, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("chat completion for %s: empty choice list", personalityID)
	}

	slog.Debug("backend response generated",
		"personality_id", personalityID,
		"model", model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	return Response{
		Text: resp.Choices[0].Message.Content,
		Metadata: map[string]string{
			"model": model,
		},
	}, nil
}
