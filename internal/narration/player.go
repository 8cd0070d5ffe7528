package narration

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// State is the player's position in a playback.
type State int

const (
	Idle State = iota
	Generating
	Playing
	Stopped
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Generating:
		return "generating"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type playback struct {
	id     uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Player narrates one request at a time.
type Player struct {
	synth Synthesizer
	out   Output
	log   zerolog.Logger

	// playMu serialises the hand-over between playbacks.
	playMu sync.Mutex

	mu      sync.Mutex
	state   State
	cur     *playback
	last    *playback
	nextID  uint64
	onState func(id uint64, s State)
}

// NewPlayer creates an idle player.
func NewPlayer(synth Synthesizer, out Output, log zerolog.Logger) *Player {
	return &Player{synth: synth, out: out, log: log}
}

// OnState registers an observer for state changes. id names the playback the
// change belongs to.
func (p *Player) OnState(fn func(id uint64, s State)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

// State returns the current state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Playback returns the id of the active playback, or 0 when idle.
func (p *Player) Playback() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return 0
	}
	return p.cur.id
}

// Play narrates req and blocks until it finishes. Any earlier playback is
// cancelled and torn down first. Play returns ErrCancelled when the playback
// is stopped, superseded or its context ends.
func (p *Player) Play(ctx context.Context, req Request, cb Callbacks) error {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}
	if p.synth == nil {
		return ErrNotConfigured
	}

	pb, pctx := p.begin(ctx)
	defer close(pb.done)
	defer pb.cancel()

	log := p.log.With().Uint64("playback", pb.id).Str("voice", string(req.Voice)).Logger()
	log.Debug().Int("text_len", len(req.Text)).Float64("speed", req.Speed).Msg("Generating narration")

	audio, err := p.synth.Synthesize(pctx, req)
	if !p.isCurrent(pb) || pctx.Err() != nil {
		if audio != nil {
			audio.Close()
		}
		p.release(pb)
		return ErrCancelled
	}
	if err != nil {
		log.Error().Err(err).Msg("Narration generation failed")
		p.transition(pb, Errored)
		cb.fail(err)
		p.release(pb)
		return fmt.Errorf("narration: synthesize: %w", err)
	}
	defer audio.Close()

	if !p.transition(pb, Playing) {
		return ErrCancelled
	}
	cb.start()

	err = p.out.Play(pctx, audio)
	if !p.isCurrent(pb) || pctx.Err() != nil {
		p.release(pb)
		return ErrCancelled
	}
	if err != nil {
		log.Error().Err(err).Msg("Narration playback failed")
		p.transition(pb, Errored)
		cb.fail(err)
		p.release(pb)
		return fmt.Errorf("narration: play: %w", err)
	}

	p.release(pb)
	cb.end()
	log.Debug().Msg("Narration finished")
	return nil
}

// begin cancels and awaits the previous playback, then registers a new one.
// A superseded playback reports Stopped once its output has let go.
func (p *Player) begin(ctx context.Context) (*playback, context.Context) {
	p.playMu.Lock()
	defer p.playMu.Unlock()

	p.mu.Lock()
	prev := p.last
	active := prev != nil && p.cur == prev
	if active {
		p.cur = nil
		p.state = Idle
	}
	obs := p.onState
	p.mu.Unlock()
	if prev != nil {
		prev.cancel()
		<-prev.done
	}
	if active && obs != nil {
		obs(prev.id, Stopped)
		obs(prev.id, Idle)
	}

	pctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.nextID++
	pb := &playback{id: p.nextID, cancel: cancel, done: make(chan struct{})}
	p.cur = pb
	p.last = pb
	p.mu.Unlock()

	p.transition(pb, Generating)
	return pb, withPlayback(pctx, pb.id)
}

// Stop cancels the current playback and returns the player to Idle. It waits
// for the cancelled Play call to release its output and audio, so Stopped is
// reported after the last frame. Stop must not be called from a Callbacks
// function.
func (p *Player) Stop() {
	p.mu.Lock()
	pb := p.cur
	if pb == nil {
		p.mu.Unlock()
		return
	}
	p.cur = nil
	p.state = Idle
	obs := p.onState
	p.mu.Unlock()

	pb.cancel()
	<-pb.done
	if obs != nil {
		obs(pb.id, Stopped)
		obs(pb.id, Idle)
	}
}

// Pause holds playback if the output supports it.
func (p *Player) Pause() bool {
	pauser, ok := p.out.(Pauser)
	if !ok || p.State() != Playing {
		return false
	}
	pauser.Pause()
	return true
}

// Resume continues a paused playback if the output supports it.
func (p *Player) Resume() bool {
	pauser, ok := p.out.(Pauser)
	if !ok || p.State() != Playing {
		return false
	}
	pauser.Resume()
	return true
}

// Wait blocks until the most recent playback has torn down.
func (p *Player) Wait() {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last != nil {
		<-last.done
	}
}

func (p *Player) isCurrent(pb *playback) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur == pb
}

func (p *Player) transition(pb *playback, s State) bool {
	p.mu.Lock()
	if p.cur != pb {
		p.mu.Unlock()
		return false
	}
	p.state = s
	obs := p.onState
	p.mu.Unlock()

	if obs != nil {
		obs(pb.id, s)
	}
	return true
}

func (p *Player) release(pb *playback) {
	p.mu.Lock()
	if p.cur != pb {
		p.mu.Unlock()
		return
	}
	p.cur = nil
	p.state = Idle
	obs := p.onState
	p.mu.Unlock()

	if obs != nil {
		obs(pb.id, Idle)
	}
}

type playbackKey struct{}

func withPlayback(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, playbackKey{}, id)
}

// PlaybackID returns the id of the playback an Output is asked to play, or 0
// outside a Player.
func PlaybackID(ctx context.Context) uint64 {
	id, _ := ctx.Value(playbackKey{}).(uint64)
	return id
}
