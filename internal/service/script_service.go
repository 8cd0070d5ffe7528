package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/windfall/jamtalk_service/internal/client"
	"github.com/windfall/jamtalk_service/internal/errors"
)

// ScriptService writes model answers for prompt words. Concurrent requests
// for the same word share one model call.
type ScriptService struct {
	chat  ChatModel
	log   zerolog.Logger
	group singleflight.Group
}

// NewScriptService creates a new script service.
func NewScriptService(chat ChatModel, log zerolog.Logger) *ScriptService {
	return &ScriptService{chat: chat, log: log}
}

// Script returns a spoken-length script about word.
func (s *ScriptService) Script(ctx context.Context, word string) (string, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return "", errors.New(errors.ErrValidation, "word is required")
	}

	v, err, shared := s.group.Do(strings.ToLower(word), func() (interface{}, error) {
		return s.chat.Chat(ctx, fmt.Sprintf(scriptPrompt, word, word), client.ChatOptions{
			System:      scriptSystem,
			MaxTokens:   scriptMaxTokens,
			Temperature: scriptTemperature,
		})
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrAIService, "failed to generate script", err)
	}

	text := strings.TrimSpace(v.(string))
	if text == "" {
		return "", errors.New(errors.ErrAIService, "empty script response")
	}

	s.log.Debug().Str("word", word).Bool("shared", shared).Int("script_len", len(text)).Msg("Script generated")
	return text, nil
}
