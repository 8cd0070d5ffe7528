package capture

import (
	"context"
	"errors"
	"sync"
)

// ErrRelayBusy is returned when a relay is started while already running.
var ErrRelayBusy = errors.New("capture: relay already started")

const defaultRelayBuffer = 64

// Relay is a Recognizer fed by someone else, typically a browser doing its own
// speech recognition and forwarding results over a websocket.
type Relay struct {
	// OnStop is called once per run when the relay stops, so the remote
	// side can turn its microphone off.
	OnStop func()

	mu     sync.Mutex
	ch     chan Event
	active bool
	buffer int
}

// NewRelay creates an idle relay. buffer <= 0 uses a default.
func NewRelay(buffer int) *Relay {
	if buffer <= 0 {
		buffer = defaultRelayBuffer
	}
	return &Relay{buffer: buffer}
}

// Start opens a fresh event channel. The relay stops when ctx ends.
func (r *Relay) Start(ctx context.Context) (<-chan Event, error) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil, ErrRelayBusy
	}
	ch := make(chan Event, r.buffer)
	r.ch = ch
	r.active = true
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.stop(ch)
	}()
	return ch, nil
}

// Push forwards ev to the running session. It reports false when the relay
// is not running or its buffer is full.
func (r *Relay) Push(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return false
	}
	select {
	case r.ch <- ev:
		return true
	default:
		return false
	}
}

// Active reports whether a session is currently reading from the relay.
func (r *Relay) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Stop closes the current event channel.
func (r *Relay) Stop() {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()
	r.stop(ch)
}

func (r *Relay) stop(ch chan Event) {
	r.mu.Lock()
	if !r.active || ch == nil || r.ch != ch {
		r.mu.Unlock()
		return
	}
	close(ch)
	r.active = false
	onStop := r.OnStop
	r.mu.Unlock()

	if onStop != nil {
		onStop()
	}
}
