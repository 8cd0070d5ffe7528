// Package coach ties one learner's practice session to feedback, scripts and
// narration.
package coach

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/capture"
	"github.com/windfall/jamtalk_service/internal/narration"
	"github.com/windfall/jamtalk_service/internal/usage"
)

var (
	// ErrUpsell means the feature needs an active subscription.
	ErrUpsell = errors.New("coach: subscription required")
	// ErrNarrationDisabled means there is no script to narrate.
	ErrNarrationDisabled = errors.New("coach: no script to narrate")
	// ErrScriptUnavailable means script generation failed.
	ErrScriptUnavailable = errors.New("coach: script unavailable")
	// ErrNoWords means the catalog has no prompt words.
	ErrNoWords = errors.New("coach: no prompt words configured")
)

const defaultApology = "Sorry, we couldn't generate a script right now. Please try again later."

// ScriptSource writes a model answer for a prompt word.
type ScriptSource interface {
	Script(ctx context.Context, word string) (string, error)
}

// Meter is the usage view the coach needs.
type Meter interface {
	capture.Meter
	Stats(ctx context.Context) usage.Stats
	IsSubscribed(ctx context.Context) bool
}

// Options configure a Coach.
type Options struct {
	Words   []string
	Apology string
	// Pick returns a random index in [0, n). Defaults to math/rand.
	Pick func(n int) int
}

// Coach drives one learner's practice.
type Coach struct {
	session *capture.Session
	player  *narration.Player
	meter   Meter
	scripts ScriptSource
	log     zerolog.Logger

	words   []string
	apology string
	pick    func(int) int

	mu     sync.Mutex
	word   string
	script string
}

// New creates a coach around an existing session and player.
func New(session *capture.Session, player *narration.Player, meter Meter, scripts ScriptSource, log zerolog.Logger, opts Options) *Coach {
	if opts.Apology == "" {
		opts.Apology = defaultApology
	}
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}
	return &Coach{
		session: session,
		player:  player,
		meter:   meter,
		scripts: scripts,
		log:     log,
		words:   opts.Words,
		apology: opts.Apology,
		pick:    opts.Pick,
	}
}

// Session returns the capture session.
func (c *Coach) Session() *capture.Session { return c.session }

// Playback returns the id of the active narration, or 0 when none plays.
func (c *Coach) Playback() uint64 { return c.player.Playback() }

// Usage returns the learner's usage stats.
func (c *Coach) Usage(ctx context.Context) usage.Stats { return c.meter.Stats(ctx) }

// Word returns the current prompt word.
func (c *Coach) Word() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.word
}

// Script returns the current script, if any.
func (c *Coach) Script() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.script
}

// NextPrompt picks a new prompt word. The previous script no longer applies
// and narration stops.
func (c *Coach) NextPrompt() (string, error) {
	if len(c.words) == 0 {
		return "", ErrNoWords
	}
	word := c.words[c.pick(len(c.words))]

	c.mu.Lock()
	changed := c.word != word
	c.word = word
	if changed {
		c.script = ""
	}
	c.mu.Unlock()

	if changed {
		c.player.Stop()
	}
	return word, nil
}

// StartPractice starts capturing for the current word, picking one first if
// needed. capture.ErrLimitReached means the caller should show the upsell.
func (c *Coach) StartPractice(ctx context.Context) error {
	word := c.Word()
	if word == "" {
		var err error
		if word, err = c.NextPrompt(); err != nil {
			return err
		}
	}
	if err := c.session.Start(ctx, word); err != nil {
		return err
	}
	c.log.Info().Str("prompt_word", word).Msg("Practice started")
	return nil
}

// Reset clears the finished session and stops any narration.
func (c *Coach) Reset() error {
	if err := c.session.Reset(); err != nil {
		return err
	}
	c.player.Stop()
	return nil
}

// RequestScript generates a script for the current word. Without a
// subscription it returns ErrUpsell. On failure it returns the apology text
// with ErrScriptUnavailable and narration stays disabled.
func (c *Coach) RequestScript(ctx context.Context) (string, error) {
	if !c.meter.IsSubscribed(ctx) {
		return "", ErrUpsell
	}

	word := c.Word()
	if word == "" {
		var err error
		if word, err = c.NextPrompt(); err != nil {
			return "", err
		}
	}

	text, err := c.scripts.Script(ctx, word)
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = errors.New("empty script")
	}
	if err != nil {
		c.log.Error().Err(err).Str("prompt_word", word).Msg("Script generation failed")
		c.mu.Lock()
		if c.word == word {
			c.script = ""
		}
		c.mu.Unlock()
		return c.apology, ErrScriptUnavailable
	}

	c.mu.Lock()
	if c.word == word {
		c.script = text
	}
	c.mu.Unlock()
	return text, nil
}

// Listen narrates the current script and blocks until playback ends.
func (c *Coach) Listen(ctx context.Context, voice narration.Voice, speed float64, cb narration.Callbacks) error {
	if !c.meter.IsSubscribed(ctx) {
		return ErrUpsell
	}
	script := c.Script()
	if script == "" {
		return ErrNarrationDisabled
	}
	return c.player.Play(ctx, narration.Request{Text: script, Voice: voice, Speed: speed}, cb)
}

// StopListening stops narration.
func (c *Coach) StopListening() { c.player.Stop() }

// Pause holds narration if the output supports it.
func (c *Coach) Pause() bool { return c.player.Pause() }

// Resume continues paused narration.
func (c *Coach) Resume() bool { return c.player.Resume() }

// Close stops narration and any running capture.
func (c *Coach) Close() {
	c.player.Stop()
	c.player.Wait()
	c.session.Close()
}
