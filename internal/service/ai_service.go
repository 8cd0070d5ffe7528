package service

import (
	"context"

	"github.com/windfall/jamtalk_service/internal/client"
	"github.com/windfall/jamtalk_service/internal/errors"
)

// ChatModel is a text-in, text-out language model.
type ChatModel interface {
	Chat(ctx context.Context, message string, opts client.ChatOptions) (string, error)
}

// AIService routes chat requests to the configured provider.
type AIService struct {
	openaiClient *client.OpenAIClient
	geminiClient *client.GeminiClient
	provider     string
}

// NewAIService creates a new AI service. provider is "openai", "gemini" or
// empty to use whichever client is configured, OpenAI first.
func NewAIService(
	openaiClient *client.OpenAIClient,
	geminiClient *client.GeminiClient,
	provider string,
) *AIService {
	return &AIService{
		openaiClient: openaiClient,
		geminiClient: geminiClient,
		provider:     provider,
	}
}

// Chat sends a chat message to the selected AI provider.
func (s *AIService) Chat(ctx context.Context, message string, opts client.ChatOptions) (string, error) {
	switch s.provider {
	case "openai":
		if s.openaiClient == nil {
			return "", errors.New(errors.ErrAIService, "OpenAI client not configured")
		}
		return s.openaiClient.Chat(ctx, message, opts)

	case "gemini":
		if s.geminiClient == nil {
			return "", errors.New(errors.ErrAIService, "Gemini client not configured")
		}
		return s.geminiClient.Chat(ctx, message, opts)

	default:
		// Default to OpenAI if available, otherwise Gemini
		if s.openaiClient != nil {
			return s.openaiClient.Chat(ctx, message, opts)
		}
		if s.geminiClient != nil {
			return s.geminiClient.Chat(ctx, message, opts)
		}
		return "", errors.New(errors.ErrAIService, "no AI provider configured")
	}
}

// Configured reports whether any provider is available.
func (s *AIService) Configured() bool {
	return s.openaiClient != nil || s.geminiClient != nil
}
