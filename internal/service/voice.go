package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/errors"
	"github.com/windfall/jamtalk_service/internal/narration"
)

// SpeechClient synthesizes speech in the cloud.
type SpeechClient interface {
	Speech(ctx context.Context, text, voice string, speed float64) (io.ReadCloser, error)
}

// CloudVoice narrates with a hosted text-to-speech model.
type CloudVoice struct {
	client SpeechClient
	log    zerolog.Logger
}

// NewCloudVoice creates a cloud narration voice.
func NewCloudVoice(client SpeechClient, log zerolog.Logger) *CloudVoice {
	return &CloudVoice{client: client, log: log}
}

// Synthesize implements narration.Synthesizer. The stream is MP3.
func (v *CloudVoice) Synthesize(ctx context.Context, req narration.Request) (io.ReadCloser, error) {
	audio, err := v.client.Speech(ctx, req.Text, string(req.Voice), req.Speed)
	if err != nil {
		return nil, errors.Wrap(errors.ErrAIService, "failed to synthesize speech", err)
	}
	return audio, nil
}

// ContentType of the audio this voice produces.
func (v *CloudVoice) ContentType() string { return "audio/mpeg" }

const (
	espeakBaseWPM = 175
	espeakVoice   = "en-us"
)

// LocalVoice narrates with an espeak-ng compatible binary on the host.
type LocalVoice struct {
	binary string
	rate   float64
	log    zerolog.Logger
}

// NewLocalVoice creates a local narration voice. rate scales every request's
// speed; 0.9 gives slightly slower, clearer speech.
func NewLocalVoice(binary string, rate float64, log zerolog.Logger) *LocalVoice {
	if binary == "" {
		binary = "espeak-ng"
	}
	if rate <= 0 {
		rate = 0.9
	}
	return &LocalVoice{binary: binary, rate: rate, log: log}
}

// Synthesize implements narration.Synthesizer. The stream is WAV.
func (v *LocalVoice) Synthesize(ctx context.Context, req narration.Request) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, v.binary, v.args(req)...)
	cmd.Stdin = bytes.NewBufferString(req.Text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		v.log.Error().Err(err).Str("stderr", stderr.String()).Msg("Local speech engine failed")
		return nil, errors.Wrap(errors.ErrAIService, "local speech engine failed", err)
	}
	return io.NopCloser(bytes.NewReader(out)), nil
}

// ContentType of the audio this voice produces.
func (v *LocalVoice) ContentType() string { return "audio/wav" }

// args reads the text from stdin and writes WAV to stdout.
func (v *LocalVoice) args(req narration.Request) []string {
	speed := req.Speed
	if speed == 0 {
		speed = narration.DefaultSpeed
	}
	wpm := int(espeakBaseWPM * v.rate * speed)
	return []string{"--stdout", "--stdin", "-v", espeakVoice, "-s", strconv.Itoa(wpm)}
}

// String names the voice in logs.
func (v *LocalVoice) String() string {
	return fmt.Sprintf("local(%s, rate=%.2f)", v.binary, v.rate)
}
