package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/errors"
	"github.com/windfall/jamtalk_service/internal/narration"
)

// ObjectStore keeps rendered narrations.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	URL(key string) string
}

// Rendering is a stored narration.
type Rendering struct {
	URL    string  `json:"url"`
	Voice  string  `json:"voice"`
	Speed  float64 `json:"speed"`
	Cached bool    `json:"cached"`
}

// NarrationService renders narrations to object storage so they can be
// replayed without another synthesis call.
type NarrationService struct {
	synth       narration.Synthesizer
	store       ObjectStore
	contentType string
	log         zerolog.Logger
}

// NewNarrationService creates a new narration service.
func NewNarrationService(synth narration.Synthesizer, store ObjectStore, contentType string, log zerolog.Logger) *NarrationService {
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &NarrationService{synth: synth, store: store, contentType: contentType, log: log}
}

// Render synthesizes req once and returns its public URL. Identical requests
// reuse the stored object.
func (s *NarrationService) Render(ctx context.Context, req narration.Request) (*Rendering, error) {
	if s.synth == nil {
		return nil, errors.New(errors.ErrAIService, "narration is not configured")
	}
	if s.store == nil {
		return nil, errors.New(errors.ErrStorageService, "narration storage is not configured")
	}

	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrValidation, err.Error(), err)
	}

	key := s.objectKey(req)
	out := &Rendering{Voice: string(req.Voice), Speed: req.Speed}

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to check stored narration")
	}
	if exists {
		out.URL = s.store.URL(key)
		out.Cached = true
		return out, nil
	}

	audio, err := s.synth.Synthesize(ctx, req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrAIService, "failed to synthesize narration", err)
	}
	defer audio.Close()

	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, errors.Wrap(errors.ErrAIService, "failed to read narration audio", err)
	}

	url, err := s.store.Upload(ctx, key, data, s.contentType)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorageService, "failed to store narration", err)
	}

	s.log.Info().Str("key", key).Int("bytes", len(data)).Msg("Narration rendered")
	out.URL = url
	return out, nil
}

func (s *NarrationService) objectKey(req narration.Request) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%.2f|%s", req.Voice, req.Speed, req.Text)))
	ext := "mp3"
	if s.contentType == "audio/wav" {
		ext = "wav"
	}
	return fmt.Sprintf("narrations/%s.%s", hex.EncodeToString(sum[:16]), ext)
}
