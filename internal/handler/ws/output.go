package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/windfall/jamtalk_service/internal/narration"
)

const audioFrameSize = 16 << 10

// TypeAudioEnd follows the last binary frame of a playback.
const TypeAudioEnd = "audio_end"

var errClientGone = errors.New("ws: client gone")

// socketOutput streams narration audio to the client as binary frames and
// holds the playback open until the client reports it has finished
// playing it. Pausing holds the stream between frames.
type socketOutput struct {
	send Sender

	mu      sync.Mutex
	paused  bool
	resume  chan struct{}
	playing uint64
	ended   chan struct{}
}

func newSocketOutput(send Sender) *socketOutput {
	return &socketOutput{send: send}
}

// Play implements narration.Output. It returns once the client acknowledges
// the end of the playback or ctx ends.
func (o *socketOutput) Play(ctx context.Context, audio io.Reader) error {
	o.Resume()
	id := narration.PlaybackID(ctx)
	ended := o.expect(id)

	buf := make([]byte, audioFrameSize)
	for {
		if err := o.waitResumed(ctx); err != nil {
			return err
		}

		n, err := audio.Read(buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			if !o.send.SendBinary(frame) {
				return errClientGone
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	msg, err := json.Marshal(Response{Type: TypeAudioEnd, Payload: map[string]uint64{"playback": id}})
	if err != nil {
		return err
	}
	if !o.send.SendText(msg) {
		return errClientGone
	}

	select {
	case <-ended:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// expect registers id as the playback awaiting the client's ack.
func (o *socketOutput) expect(id uint64) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.playing = id
	o.ended = make(chan struct{})
	return o.ended
}

// Ended records the client's ack that playback id finished. Acks for any
// other playback are ignored.
func (o *socketOutput) Ended(id uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ended == nil || o.playing != id {
		return false
	}
	close(o.ended)
	o.ended = nil
	return true
}

// Pause implements narration.Pauser.
func (o *socketOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.paused {
		o.paused = true
		o.resume = make(chan struct{})
	}
}

// Resume implements narration.Pauser.
func (o *socketOutput) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.paused {
		o.paused = false
		close(o.resume)
	}
}

func (o *socketOutput) waitResumed(ctx context.Context) error {
	o.mu.Lock()
	if !o.paused {
		o.mu.Unlock()
		return ctx.Err()
	}
	resume := o.resume
	o.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
