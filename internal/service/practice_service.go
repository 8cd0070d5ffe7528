package service

import (
	"context"
	stderrors "errors"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/capture"
	"github.com/windfall/jamtalk_service/internal/coach"
	"github.com/windfall/jamtalk_service/internal/config"
	"github.com/windfall/jamtalk_service/internal/errors"
	"github.com/windfall/jamtalk_service/internal/narration"
	"github.com/windfall/jamtalk_service/internal/usage"
)

// PracticeService builds practice coaches and answers usage questions.
type PracticeService struct {
	tracker  *usage.Tracker
	analyzer capture.Analyzer
	scripts  coach.ScriptSource
	synth    narration.Synthesizer
	catalog  *config.Catalog
	messages *capture.ErrorMessages
	budget   int
	log      zerolog.Logger
}

// NewPracticeService creates a new practice service. synth may be nil, in
// which case narration reports narration.ErrNotConfigured.
func NewPracticeService(
	tracker *usage.Tracker,
	analyzer capture.Analyzer,
	scripts coach.ScriptSource,
	synth narration.Synthesizer,
	catalog *config.Catalog,
	budget int,
	log zerolog.Logger,
) *PracticeService {
	if catalog == nil {
		catalog = config.DefaultCatalog()
	}
	return &PracticeService{
		tracker:  tracker,
		analyzer: analyzer,
		scripts:  scripts,
		synth:    synth,
		catalog:  catalog,
		messages: capture.NewErrorMessages(catalog.CaptureErrors, catalog.CaptureErrorTemplate),
		budget:   budget,
		log:      log,
	}
}

// Prompt returns a random prompt word.
func (s *PracticeService) Prompt() (string, error) {
	if len(s.catalog.Words) == 0 {
		return "", errors.New(errors.ErrNotFound, "no prompt words configured")
	}
	return s.catalog.Words[rand.IntN(len(s.catalog.Words))], nil
}

// Usage returns userID's usage stats.
func (s *PracticeService) Usage(ctx context.Context, userID string) usage.Stats {
	return s.tracker.For(userID).Stats(ctx)
}

// ResetUsage clears userID's attempt count where resets are allowed.
func (s *PracticeService) ResetUsage(ctx context.Context, userID string) (usage.Stats, error) {
	meter := s.tracker.For(userID)
	if err := meter.Reset(ctx); err != nil {
		if stderrors.Is(err, usage.ErrResetDisabled) {
			return usage.Stats{}, errors.Forbidden("usage reset is disabled")
		}
		return usage.Stats{}, errors.InternalWrap("failed to reset usage", err)
	}
	s.log.Info().Str("user_id", userID).Msg("Usage reset")
	return meter.Stats(ctx), nil
}

// RequireSubscription fails with PAYMENT_REQUIRED unless userID subscribes.
func (s *PracticeService) RequireSubscription(ctx context.Context, userID string) error {
	if !s.tracker.For(userID).IsSubscribed(ctx) {
		return errors.PaymentRequired("an active subscription is required")
	}
	return nil
}

// Script generates a script for word on behalf of a subscriber.
func (s *PracticeService) Script(ctx context.Context, userID, word string) (string, error) {
	if err := s.RequireSubscription(ctx, userID); err != nil {
		return "", err
	}
	return s.scripts.Script(ctx, word)
}

// SessionHooks receive a coach's asynchronous output.
type SessionHooks struct {
	OnSession   func(capture.Snapshot)
	OnNarration func(playback uint64, state narration.State)
}

// Open builds a coach for one connection of userID. rec supplies live
// transcription and out plays narration back to the same connection.
func (s *PracticeService) Open(userID string, rec capture.Recognizer, out narration.Output, hooks SessionHooks) *coach.Coach {
	meter := s.tracker.For(userID)
	log := s.log.With().Str("user_id", userID).Logger()

	session := capture.New(uuid.NewString(), rec, s.analyzer, meter, log, capture.Options{
		Budget:           s.budget,
		Messages:         s.messages,
		AnalysisFallback: s.catalog.AnalysisFallback,
		OnChange:         hooks.OnSession,
	})

	player := narration.NewPlayer(s.synth, out, log)
	if hooks.OnNarration != nil {
		player.OnState(hooks.OnNarration)
	}

	return coach.New(session, player, meter, s.scripts, log, coach.Options{
		Words:   s.catalog.Words,
		Apology: s.catalog.ScriptApology,
	})
}
