package service

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/capture"
)

// ErrRecognizerBusy is returned when a recognizer is started twice.
var ErrRecognizerBusy = stderrors.New("recognizer already running")

const (
	whisperChunkBuffer = 16
	whisperChunkName   = "chunk.webm"
	// whisperErrorKind is reported when transcription fails.
	whisperErrorKind = "network"
)

// Transcriber turns one audio clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// WhisperRecognizer transcribes audio clips sent by the client, in order.
// Each clip becomes one final fragment. Stop transcribes what is queued
// before the event stream ends.
type WhisperRecognizer struct {
	tr  Transcriber
	log zerolog.Logger

	mu     sync.Mutex
	chunks chan []byte
	done   chan struct{}
	closed bool
}

// NewWhisperRecognizer creates an idle recognizer.
func NewWhisperRecognizer(tr Transcriber, log zerolog.Logger) *WhisperRecognizer {
	return &WhisperRecognizer{tr: tr, log: log}
}

// Start implements capture.Recognizer.
func (w *WhisperRecognizer) Start(ctx context.Context) (<-chan capture.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running() {
		return nil, ErrRecognizerBusy
	}

	chunks := make(chan []byte, whisperChunkBuffer)
	events := make(chan capture.Event, 2*whisperChunkBuffer+2)
	done := make(chan struct{})
	w.chunks, w.done, w.closed = chunks, done, false

	go w.loop(ctx, chunks, events, done)
	return events, nil
}

// Write queues one audio clip. It reports false when the recognizer is not
// running or is falling behind.
func (w *WhisperRecognizer) Write(chunk []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running() || w.closed {
		return false
	}
	select {
	case w.chunks <- chunk:
		return true
	default:
		w.log.Warn().Int("bytes", len(chunk)).Msg("Dropping audio chunk, transcription is behind")
		return false
	}
}

// Stop implements capture.Recognizer. It blocks until queued clips are
// transcribed.
func (w *WhisperRecognizer) Stop() {
	w.mu.Lock()
	if w.done == nil || w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.chunks)
	done := w.done
	w.mu.Unlock()

	<-done
}

func (w *WhisperRecognizer) running() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *WhisperRecognizer) loop(ctx context.Context, chunks <-chan []byte, events chan<- capture.Event, done chan struct{}) {
	defer close(done)
	defer close(events)

	send := func(ev capture.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	index := 0
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				send(capture.Event{Kind: capture.EventEnd})
				return
			}

			text, err := w.tr.Transcribe(ctx, bytes.NewReader(chunk), whisperChunkName)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Error().Err(err).Int("bytes", len(chunk)).Msg("Transcription failed")
				send(capture.Event{Kind: capture.EventError, ErrorKind: whisperErrorKind})
				return
			}

			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			if !send(capture.Event{Kind: capture.EventResult, ResultIndex: index, Final: []string{text + " "}}) {
				return
			}
			index++
		}
	}
}
