// Package narration plays synthesized speech for practice scripts.
//
// A Player owns at most one playback at a time. Starting a new playback
// cancels the previous one and waits for it to tear down, so audio never
// overlaps and every audio resource is released.
package narration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Voice is one of the named narration voices.
type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceEcho    Voice = "echo"
	VoiceFable   Voice = "fable"
	VoiceOnyx    Voice = "onyx"
	VoiceNova    Voice = "nova"
	VoiceShimmer Voice = "shimmer"

	DefaultVoice = VoiceAlloy
)

// Voices lists the available voices in display order.
var Voices = []Voice{VoiceAlloy, VoiceEcho, VoiceFable, VoiceOnyx, VoiceNova, VoiceShimmer}

// ParseVoice validates a voice name. An empty name selects DefaultVoice.
func ParseVoice(name string) (Voice, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultVoice, nil
	}
	for _, v := range Voices {
		if string(v) == name {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVoice, name)
}

const (
	MinSpeed     = 0.25
	MaxSpeed     = 4.0
	DefaultSpeed = 1.0
)

var (
	ErrEmptyText     = errors.New("narration: text is empty")
	ErrUnknownVoice  = errors.New("narration: unknown voice")
	ErrSpeedRange    = errors.New("narration: speed out of range")
	ErrCancelled     = errors.New("narration: cancelled")
	ErrNotConfigured = errors.New("narration: no synthesizer configured")
)

// Request is one narration.
type Request struct {
	Text  string  `json:"text"`
	Voice Voice   `json:"voice"`
	Speed float64 `json:"speed"`
}

// Normalize fills defaults for an empty voice and a zero speed.
func (r Request) Normalize() Request {
	if r.Voice == "" {
		r.Voice = DefaultVoice
	}
	if r.Speed == 0 {
		r.Speed = DefaultSpeed
	}
	return r
}

// Validate checks a normalized request.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if _, err := ParseVoice(string(r.Voice)); err != nil {
		return err
	}
	if r.Speed < MinSpeed || r.Speed > MaxSpeed {
		return fmt.Errorf("%w: %.2f", ErrSpeedRange, r.Speed)
	}
	return nil
}

// Synthesizer turns text into an audio stream. Implementations must honour
// ctx cancellation while the request is in flight.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Output plays an audio stream to the listener. Play returns when the stream
// is exhausted or ctx is cancelled.
type Output interface {
	Play(ctx context.Context, audio io.Reader) error
}

// Pauser is implemented by outputs that can hold playback.
type Pauser interface {
	Pause()
	Resume()
}

// Callbacks observe one playback. They are never called after the playback
// has been stopped or superseded.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(error)
}

func (c Callbacks) start() {
	if c.OnStart != nil {
		c.OnStart()
	}
}

func (c Callbacks) end() {
	if c.OnEnd != nil {
		c.OnEnd()
	}
}

func (c Callbacks) fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}
