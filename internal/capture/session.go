package capture

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/feedback"
)

const (
	// DefaultBudget is the speaking time in seconds.
	DefaultBudget = 30

	defaultAnalysisFallback = "Analysis failed. Please try again."

	// kindStartFailed is reported when the recognizer cannot be started.
	kindStartFailed = "audio-capture"
	// kindAborted is reported when the session's context ends mid-capture.
	kindAborted = "aborted"
)

// Options tune a Session. Zero values take defaults.
type Options struct {
	Budget           int
	TickInterval     time.Duration
	Messages         *ErrorMessages
	AnalysisFallback string
	Parser           *feedback.Parser

	// NewTicker overrides the countdown ticker, mainly for tests.
	NewTicker func(time.Duration) Ticker

	// OnChange is called with a fresh snapshot after every state or
	// transcript change. It runs on the goroutine that made the change and
	// must not call back into the session's mutating methods.
	OnChange func(Snapshot)
}

func (o *Options) applyDefaults() {
	if o.Budget <= 0 {
		o.Budget = DefaultBudget
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.Messages == nil {
		o.Messages = DefaultErrorMessages()
	}
	if o.AnalysisFallback == "" {
		o.AnalysisFallback = defaultAnalysisFallback
	}
	if o.Parser == nil {
		o.Parser = feedback.NewParser(feedback.DefaultMarkers)
	}
	if o.NewTicker == nil {
		o.NewTicker = newRealTicker
	}
}

// Snapshot is a read-only copy of a session for display.
type Snapshot struct {
	ID                string             `json:"id"`
	PromptWord        string             `json:"prompt_word"`
	State             State              `json:"state"`
	FinalTranscript   string             `json:"final_transcript"`
	InterimTranscript string             `json:"interim_transcript"`
	Transcript        string             `json:"transcript"`
	RemainingSeconds  int                `json:"remaining_seconds"`
	Feedback          *feedback.Document `json:"feedback,omitempty"`
	Degraded          bool               `json:"degraded"`
	Message           string             `json:"message,omitempty"`
}

// Session is one practice attempt.
type Session struct {
	id       string
	rec      Recognizer
	analyzer Analyzer
	meter    Meter
	opts     Options
	log      zerolog.Logger

	mu        sync.Mutex
	state     State
	word      string
	final     string
	interim   string
	remaining int
	doc       *feedback.Document
	degraded  bool
	message   string
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an idle session.
func New(id string, rec Recognizer, analyzer Analyzer, meter Meter, log zerolog.Logger, opts Options) *Session {
	opts.applyDefaults()
	return &Session{
		id:        id,
		rec:       rec,
		analyzer:  analyzer,
		meter:     meter,
		opts:      opts,
		log:       log.With().Str("session_id", id).Logger(),
		remaining: opts.Budget,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start begins capturing for word. It fails with ErrInvalidState unless the
// session is idle and with ErrLimitReached when the meter refuses another
// attempt; in both cases the session does not change. A recognizer that
// cannot start leaves the session Failed and Start returns nil.
func (s *Session) Start(ctx context.Context, word string) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrInvalidState
	}
	if !s.meter.CanAttempt(ctx) {
		s.mu.Unlock()
		return ErrLimitReached
	}

	s.gen++
	gen := s.gen
	s.word = word
	s.final = ""
	s.interim = ""
	s.remaining = s.opts.Budget
	s.doc = nil
	s.degraded = false
	s.message = ""
	s.state = Capturing

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.log.Info().Str("prompt_word", word).Int("budget", s.opts.Budget).Msg("Capture started")

	events, err := s.rec.Start(runCtx)
	if err != nil {
		s.log.Error().Err(err).Msg("Recognizer failed to start")
		cancel()
		s.fail(gen, kindStartFailed)
		close(done)
		return nil
	}

	ticker := s.opts.NewTicker(s.opts.TickInterval)
	go s.run(runCtx, cancel, gen, events, ticker, done)

	s.notify()
	return nil
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, gen uint64, events <-chan Event, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer cancel()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.rec.Stop()
			s.fail(gen, kindAborted)
			return

		case <-ticker.C():
			if s.tick(gen) > 0 {
				continue
			}
			s.log.Debug().Msg("Countdown expired")
			s.rec.Stop()
			s.drain(gen, events)
			s.finalize(ctx, gen)
			return

		case ev, ok := <-events:
			if !ok {
				s.finalize(ctx, gen)
				return
			}
			switch ev.Kind {
			case EventResult:
				s.apply(gen, ev)
			case EventError:
				s.rec.Stop()
				s.fail(gen, ev.ErrorKind)
				return
			case EventEnd:
				s.finalize(ctx, gen)
				return
			}
		}
	}
}

// drain applies result events the recognizer had already delivered when the
// countdown expired.
func (s *Session) drain(gen uint64, events <-chan Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == EventResult {
				s.apply(gen, ev)
			}
		default:
			return
		}
	}
}

func (s *Session) tick(gen uint64) int {
	s.mu.Lock()
	if gen != s.gen || s.state != Capturing {
		s.mu.Unlock()
		return 0
	}
	if s.remaining > 0 {
		s.remaining--
	}
	remaining := s.remaining
	s.mu.Unlock()

	s.notify()
	return remaining
}

func (s *Session) apply(gen uint64, ev Event) {
	s.mu.Lock()
	if gen != s.gen || s.state != Capturing {
		s.mu.Unlock()
		return
	}
	for _, f := range ev.Final {
		s.final += f
	}
	s.interim = ev.Interim
	s.mu.Unlock()

	s.notify()
}

func (s *Session) fail(gen uint64, kind string) {
	s.mu.Lock()
	if gen != s.gen || s.state != Capturing {
		s.mu.Unlock()
		return
	}
	s.state = Failed
	s.interim = ""
	s.message = s.opts.Messages.Message(kind)
	s.mu.Unlock()

	s.log.Warn().Str("error_kind", kind).Msg("Capture failed")
	s.notify()
}

func (s *Session) finalize(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != Capturing {
		s.mu.Unlock()
		return
	}
	s.state = Finalizing
	s.interim = ""
	transcript := s.final
	s.mu.Unlock()
	s.notify()

	if strings.TrimSpace(transcript) == "" {
		s.complete(gen, feedback.Empty(), false)
		s.log.Info().Msg("Capture ended with empty transcript")
		return
	}

	count := s.meter.RecordAttempt(context.WithoutCancel(ctx))
	s.log.Info().Int("attempt_count", count).Int("transcript_len", len(transcript)).Msg("Capture ended, requesting feedback")

	raw, err := s.analyzer.Analyze(ctx, transcript)
	if err != nil {
		s.log.Error().Err(err).Msg("Feedback analysis failed")
		doc := feedback.Empty()
		doc.OriginalTranscript = transcript
		doc.Summary = s.opts.AnalysisFallback
		s.complete(gen, doc, true)
		return
	}

	s.complete(gen, s.opts.Parser.Parse(raw), false)
}

func (s *Session) complete(gen uint64, doc feedback.Document, degraded bool) {
	s.mu.Lock()
	if gen != s.gen || s.state != Finalizing {
		s.mu.Unlock()
		return
	}
	s.state = Complete
	s.doc = &doc
	s.degraded = degraded
	if degraded {
		s.message = s.opts.AnalysisFallback
	}
	s.mu.Unlock()

	s.notify()
}

// Reset returns a finished session to Idle and clears all transcript and
// feedback state. It is only allowed from Complete or Failed.
func (s *Session) Reset() error {
	s.mu.Lock()
	if s.state != Complete && s.state != Failed {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.gen++
	s.state = Idle
	s.word = ""
	s.final = ""
	s.interim = ""
	s.remaining = s.opts.Budget
	s.doc = nil
	s.degraded = false
	s.message = ""
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.notify()
	return nil
}

// Close cancels an in-progress capture or analysis and waits for the
// session's goroutine to exit.
func (s *Session) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Done is closed when the current capture reaches Complete or Failed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Snapshot returns a copy of the session for display.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:                s.id,
		PromptWord:        s.word,
		State:             s.state,
		FinalTranscript:   s.final,
		InterimTranscript: s.interim,
		Transcript:        s.final + s.interim,
		RemainingSeconds:  s.remaining,
		Degraded:          s.degraded,
		Message:           s.message,
	}
	if s.doc != nil {
		doc := *s.doc
		snap.Feedback = &doc
	}
	return snap
}

func (s *Session) notify() {
	if s.opts.OnChange != nil {
		s.opts.OnChange(s.Snapshot())
	}
}
