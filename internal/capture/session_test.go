package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type fakeRecognizer struct {
	ch       chan Event
	startErr error
	starts   atomic.Int32
	stops    atomic.Int32
}

func newFakeRecognizer(buffer int) *fakeRecognizer {
	return &fakeRecognizer{ch: make(chan Event, buffer)}
}

func (f *fakeRecognizer) Start(ctx context.Context) (<-chan Event, error) {
	f.starts.Add(1)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.ch, nil
}

func (f *fakeRecognizer) Stop() { f.stops.Add(1) }

type fakeAnalyzer struct {
	raw string
	err error

	mu          sync.Mutex
	transcripts []string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, transcript string) (string, error) {
	f.mu.Lock()
	f.transcripts = append(f.transcripts, transcript)
	f.mu.Unlock()
	return f.raw, f.err
}

func (f *fakeAnalyzer) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.transcripts...)
}

type fakeMeter struct {
	denied  bool
	records atomic.Int32
}

func (f *fakeMeter) CanAttempt(context.Context) bool { return !f.denied }

func (f *fakeMeter) RecordAttempt(context.Context) int {
	return int(f.records.Add(1))
}

type harness struct {
	session  *Session
	rec      *fakeRecognizer
	analyzer *fakeAnalyzer
	meter    *fakeMeter
	ticker   *fakeTicker
}

func newHarness(t *testing.T, budget int) *harness {
	t.Helper()
	h := &harness{
		rec:      newFakeRecognizer(8),
		analyzer: &fakeAnalyzer{},
		meter:    &fakeMeter{},
		ticker:   &fakeTicker{ch: make(chan time.Time)},
	}
	h.session = New("s-1", h.rec, h.analyzer, h.meter, zerolog.Nop(), Options{
		Budget:    budget,
		NewTicker: func(time.Duration) Ticker { return h.ticker },
	})
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	select {
	case h.ticker.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("tick not consumed")
	}
}

func waitFor(t *testing.T, s *Session, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := s.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last snapshot %+v", what, snap)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func inState(want State) func(Snapshot) bool {
	return func(s Snapshot) bool { return s.State == want }
}

const sampleFeedback = "🌿 原始转录：\nI go to school yesterday.\n\n" +
	"✏️ 语法建议：\n- ❌ 原句：I go to school yesterday.\n- ✅ 建议：I went to school yesterday.\n- 💡 解释：过去时\n\n" +
	"⭐️ 一句话总结（中文）：注意时态。"

func TestSession_CountdownTicks(t *testing.T) {
	h := newHarness(t, 30)

	if err := h.session.Start(context.Background(), "travel"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 5; i++ {
		h.tick(t)
	}

	snap := waitFor(t, h.session, "25 seconds left", func(s Snapshot) bool { return s.RemainingSeconds == 25 })
	if snap.State != Capturing {
		t.Fatalf("State = %v, want capturing", snap.State)
	}
	if snap.PromptWord != "travel" {
		t.Fatalf("PromptWord = %q", snap.PromptWord)
	}
}

func TestSession_ResultsAndFeedback(t *testing.T) {
	h := newHarness(t, 30)
	h.analyzer.raw = sampleFeedback

	var (
		mu     sync.Mutex
		states []State
	)
	h.session.opts.OnChange = func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(states) == 0 || states[len(states)-1] != s.State {
			states = append(states, s.State)
		}
	}

	if err := h.session.Start(context.Background(), "school"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.rec.ch <- Event{Kind: EventResult, Final: []string{"I go to "}, Interim: "school"}
	snap := waitFor(t, h.session, "interim", func(s Snapshot) bool { return s.InterimTranscript == "school" })
	if snap.Transcript != "I go to school" {
		t.Fatalf("Transcript = %q", snap.Transcript)
	}

	h.rec.ch <- Event{Kind: EventResult, ResultIndex: 1, Final: []string{"school ", "yesterday."}}
	h.rec.ch <- Event{Kind: EventEnd}

	snap = waitFor(t, h.session, "complete", inState(Complete))
	if snap.FinalTranscript != "I go to school yesterday." {
		t.Fatalf("FinalTranscript = %q", snap.FinalTranscript)
	}
	if snap.InterimTranscript != "" {
		t.Fatalf("interim not cleared: %q", snap.InterimTranscript)
	}
	if snap.Feedback == nil || len(snap.Feedback.Grammar) != 1 {
		t.Fatalf("Feedback = %+v", snap.Feedback)
	}
	if snap.Feedback.Grammar[0].Suggestion != "I went to school yesterday." {
		t.Fatalf("Suggestion = %q", snap.Feedback.Grammar[0].Suggestion)
	}
	if snap.Degraded {
		t.Fatal("unexpected degraded result")
	}
	if got := h.meter.records.Load(); got != 1 {
		t.Fatalf("attempts recorded = %d, want 1", got)
	}
	if calls := h.analyzer.calls(); len(calls) != 1 || calls[0] != "I go to school yesterday." {
		t.Fatalf("analyzer calls = %q", calls)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{Capturing, Finalizing, Complete}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}

func TestSession_ErrorEventFails(t *testing.T) {
	h := newHarness(t, 30)

	if err := h.session.Start(context.Background(), "music"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.rec.ch <- Event{Kind: EventResult, Final: []string{"hello"}}
	h.rec.ch <- Event{Kind: EventError, ErrorKind: "no-speech"}

	snap := waitFor(t, h.session, "failed", inState(Failed))
	if snap.Message != "No speech detected. Please speak clearly and try again." {
		t.Fatalf("Message = %q", snap.Message)
	}
	if snap.Feedback != nil {
		t.Fatal("failed session has feedback")
	}
	<-h.session.Done()
	if h.rec.stops.Load() == 0 {
		t.Fatal("recognizer not stopped")
	}
	if !h.ticker.stopped.Load() {
		t.Fatal("ticker not stopped")
	}
	if len(h.analyzer.calls()) != 0 || h.meter.records.Load() != 0 {
		t.Fatal("failed capture must not be analyzed or counted")
	}
}

func TestSession_UnknownErrorKind(t *testing.T) {
	h := newHarness(t, 30)

	if err := h.session.Start(context.Background(), "music"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.rec.ch <- Event{Kind: EventError, ErrorKind: "bad-grammar"}

	snap := waitFor(t, h.session, "failed", inState(Failed))
	if snap.Message != "Speech recognition error: bad-grammar" {
		t.Fatalf("Message = %q", snap.Message)
	}
}

func TestSession_AnalysisFailureStillCompletes(t *testing.T) {
	h := newHarness(t, 30)
	h.analyzer.err = errors.New("upstream unavailable")

	if err := h.session.Start(context.Background(), "food"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.rec.ch <- Event{Kind: EventResult, Final: []string{"I like noodles."}}
	h.rec.ch <- Event{Kind: EventEnd}

	snap := waitFor(t, h.session, "complete", inState(Complete))
	if !snap.Degraded {
		t.Fatal("expected degraded result")
	}
	if snap.Feedback == nil {
		t.Fatal("missing fallback feedback")
	}
	if snap.Feedback.OriginalTranscript != "I like noodles." {
		t.Fatalf("OriginalTranscript = %q", snap.Feedback.OriginalTranscript)
	}
	if snap.Feedback.Summary != "Analysis failed. Please try again." {
		t.Fatalf("Summary = %q", snap.Feedback.Summary)
	}
	if h.meter.records.Load() != 1 {
		t.Fatal("attempt not recorded")
	}
}

func TestSession_EmptyTranscriptSkipsAnalysis(t *testing.T) {
	h := newHarness(t, 30)

	if err := h.session.Start(context.Background(), "dream"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.rec.ch <- Event{Kind: EventResult, Interim: "um"}
	h.rec.ch <- Event{Kind: EventEnd}

	snap := waitFor(t, h.session, "complete", inState(Complete))
	if snap.Feedback == nil || !snap.Feedback.IsEmpty() {
		t.Fatalf("Feedback = %+v, want empty document", snap.Feedback)
	}
	if len(h.analyzer.calls()) != 0 {
		t.Fatal("empty transcript was analyzed")
	}
	if h.meter.records.Load() != 0 {
		t.Fatal("empty transcript was counted")
	}
}

func TestSession_ClosedChannelFinalizes(t *testing.T) {
	h := newHarness(t, 30)
	h.analyzer.raw = sampleFeedback

	if err := h.session.Start(context.Background(), "goal"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.rec.ch <- Event{Kind: EventResult, Final: []string{"done"}}
	close(h.rec.ch)

	waitFor(t, h.session, "complete", inState(Complete))
}

func TestSession_TimerExpiryKeepsBufferedResults(t *testing.T) {
	h := newHarness(t, 2)
	h.analyzer.raw = sampleFeedback

	if err := h.session.Start(context.Background(), "nature"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.rec.ch <- Event{Kind: EventResult, Final: []string{"trees and rivers"}}
	h.tick(t)
	h.tick(t)

	snap := waitFor(t, h.session, "complete", inState(Complete))
	if snap.FinalTranscript != "trees and rivers" {
		t.Fatalf("FinalTranscript = %q", snap.FinalTranscript)
	}
	if snap.RemainingSeconds != 0 {
		t.Fatalf("RemainingSeconds = %d, want 0", snap.RemainingSeconds)
	}
	if h.rec.stops.Load() == 0 {
		t.Fatal("recognizer not stopped at expiry")
	}
}

func TestSession_LimitReached(t *testing.T) {
	h := newHarness(t, 30)
	h.meter.denied = true

	if err := h.session.Start(context.Background(), "movie"); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("Start err = %v, want ErrLimitReached", err)
	}
	if h.session.Snapshot().State != Idle {
		t.Fatal("session left idle")
	}
	if h.rec.starts.Load() != 0 {
		t.Fatal("recognizer started despite limit")
	}
}

func TestSession_StartRequiresIdle(t *testing.T) {
	h := newHarness(t, 30)

	if err := h.session.Start(context.Background(), "book"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.session.Start(context.Background(), "book"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Start err = %v, want ErrInvalidState", err)
	}
}

func TestSession_ResetRequiresFinished(t *testing.T) {
	h := newHarness(t, 30)

	if err := h.session.Reset(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Reset on idle err = %v", err)
	}

	if err := h.session.Start(context.Background(), "family"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.session.Reset(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Reset while capturing err = %v", err)
	}

	h.rec.ch <- Event{Kind: EventEnd}
	waitFor(t, h.session, "complete", inState(Complete))

	if err := h.session.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snap := h.session.Snapshot()
	if snap.State != Idle || snap.Feedback != nil || snap.Transcript != "" || snap.RemainingSeconds != 30 {
		t.Fatalf("snapshot after reset = %+v", snap)
	}
}

func TestSession_RecognizerStartFailure(t *testing.T) {
	h := newHarness(t, 30)
	h.rec.startErr = errors.New("no microphone")

	if err := h.session.Start(context.Background(), "holiday"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := h.session.Snapshot()
	if snap.State != Failed {
		t.Fatalf("State = %v, want failed", snap.State)
	}
	if snap.Message != "Speech recognition error: audio-capture" {
		t.Fatalf("Message = %q", snap.Message)
	}
}

func TestSession_ContextCancelAborts(t *testing.T) {
	h := newHarness(t, 30)
	ctx, cancel := context.WithCancel(context.Background())

	if err := h.session.Start(ctx, "memory"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	waitFor(t, h.session, "failed", inState(Failed))
	if h.rec.stops.Load() == 0 {
		t.Fatal("recognizer not stopped")
	}
}
