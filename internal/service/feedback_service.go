package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/client"
	"github.com/windfall/jamtalk_service/internal/errors"
)

// FeedbackService asks the language model to coach a transcript. It
// satisfies capture.Analyzer.
type FeedbackService struct {
	chat ChatModel
	log  zerolog.Logger
}

// NewFeedbackService creates a new feedback service.
func NewFeedbackService(chat ChatModel, log zerolog.Logger) *FeedbackService {
	return &FeedbackService{chat: chat, log: log}
}

// Analyze returns the raw sectioned feedback for transcript.
func (s *FeedbackService) Analyze(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", errors.New(errors.ErrValidation, "transcript is empty")
	}

	raw, err := s.chat.Chat(ctx, analysisPrompt+transcript, client.ChatOptions{
		System:    analysisSystem,
		MaxTokens: analysisMaxTokens,
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrAIService, "failed to analyze transcript", err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", errors.New(errors.ErrAIService, "empty analysis response")
	}

	s.log.Debug().Int("transcript_len", len(transcript)).Int("response_len", len(raw)).Msg("Transcript analyzed")
	return raw, nil
}
