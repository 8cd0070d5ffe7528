// Package capture runs one timed speaking attempt: it collects live
// transcription, counts down the speaking budget, and hands the final
// transcript to feedback analysis.
//
// A Session moves Idle -> Capturing -> Finalizing -> Complete, or
// Capturing -> Failed when the recognizer reports an error. Analysis failure
// still completes the session; the transcript is kept and the feedback is
// replaced by a fallback message.
package capture

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle position of a Session.
type State int

const (
	Idle State = iota
	Capturing
	Finalizing
	Complete
	Failed
)

// String returns the lower-case state name used on the wire.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Finalizing:
		return "finalizing"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// session's current state.
	ErrInvalidState = errors.New("capture: operation not allowed in current state")

	// ErrLimitReached is returned by Start when the user has no free attempts
	// left and no subscription.
	ErrLimitReached = errors.New("capture: free practice limit reached")
)

// EventKind distinguishes recognizer events.
type EventKind int

const (
	EventResult EventKind = iota
	EventError
	EventEnd
)

// Event is one notification from a Recognizer.
type Event struct {
	Kind EventKind

	// ResultIndex is the recognizer's index of the first changed result.
	// Indices only grow, so finalized fragments arrive in order.
	ResultIndex int
	Final       []string
	Interim     string

	// ErrorKind is set for EventError, e.g. "not-allowed" or "no-speech".
	ErrorKind string
}

// Recognizer is a live transcription source.
type Recognizer interface {
	// Start begins recognition. The returned channel is closed when
	// recognition ends; an EventEnd may precede the close.
	Start(ctx context.Context) (<-chan Event, error)
	// Stop asks the recognizer to finish. It must be safe to call more than once.
	Stop()
}

// Analyzer produces raw coaching feedback for a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (string, error)
}

// Meter is the part of the usage meter a session needs.
type Meter interface {
	CanAttempt(ctx context.Context) bool
	RecordAttempt(ctx context.Context) int
}

// Ticker delivers countdown ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}
