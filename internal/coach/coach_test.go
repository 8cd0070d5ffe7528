package coach

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/capture"
	"github.com/windfall/jamtalk_service/internal/narration"
	"github.com/windfall/jamtalk_service/internal/usage"
)

type stubScripts struct {
	text  string
	err   error
	words []string
}

func (s *stubScripts) Script(_ context.Context, word string) (string, error) {
	s.words = append(s.words, word)
	return s.text, s.err
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(context.Context, string) (string, error) { return "", nil }

type echoSynth struct{}

func (echoSynth) Synthesize(_ context.Context, req narration.Request) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte(req.Text))), nil
}

type bufferOutput struct {
	buf bytes.Buffer
}

func (o *bufferOutput) Play(_ context.Context, audio io.Reader) error {
	_, err := io.Copy(&o.buf, audio)
	return err
}

type fixture struct {
	coach   *Coach
	meter   *usage.Meter
	scripts *stubScripts
	rec     *capture.Relay
	out     *bufferOutput
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	meter := usage.NewMeter(usage.NewMemoryStore(), "user_1", true, zerolog.Nop())
	rec := capture.NewRelay(8)
	session := capture.New("s-1", rec, stubAnalyzer{}, meter, zerolog.Nop(), capture.Options{
		TickInterval: time.Hour,
	})
	out := &bufferOutput{}
	player := narration.NewPlayer(echoSynth{}, out, zerolog.Nop())
	scripts := &stubScripts{text: "Music is my favourite way to relax."}

	c := New(session, player, meter, scripts, zerolog.Nop(), Options{
		Words: []string{"music", "travel"},
		Pick:  func(int) int { return 0 },
	})
	t.Cleanup(c.Close)
	return &fixture{coach: c, meter: meter, scripts: scripts, rec: rec, out: out}
}

func TestCoach_ScriptRequiresSubscription(t *testing.T) {
	f := newFixture(t)

	if _, err := f.coach.RequestScript(context.Background()); !errors.Is(err, ErrUpsell) {
		t.Fatalf("err = %v, want ErrUpsell", err)
	}
	if len(f.scripts.words) != 0 {
		t.Fatal("script generated without subscription")
	}
	if err := f.coach.Listen(context.Background(), "", 0, narration.Callbacks{}); !errors.Is(err, ErrUpsell) {
		t.Fatalf("Listen err = %v, want ErrUpsell", err)
	}
}

func TestCoach_ScriptThenListen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.meter.SetSubscription(ctx, true)

	if err := f.coach.Listen(ctx, "", 0, narration.Callbacks{}); !errors.Is(err, ErrNarrationDisabled) {
		t.Fatalf("Listen before script err = %v", err)
	}

	text, err := f.coach.RequestScript(ctx)
	if err != nil {
		t.Fatalf("RequestScript: %v", err)
	}
	if text != "Music is my favourite way to relax." {
		t.Fatalf("script = %q", text)
	}
	if len(f.scripts.words) != 1 || f.scripts.words[0] != "music" {
		t.Fatalf("script words = %v", f.scripts.words)
	}

	ended := false
	if err := f.coach.Listen(ctx, narration.VoiceNova, 1.2, narration.Callbacks{OnEnd: func() { ended = true }}); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if !ended || f.out.buf.String() != text {
		t.Fatalf("narrated %q, ended=%v", f.out.buf.String(), ended)
	}
}

func TestCoach_ScriptFailureShowsApology(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.meter.SetSubscription(ctx, true)
	f.scripts.err = errors.New("model overloaded")

	text, err := f.coach.RequestScript(ctx)
	if !errors.Is(err, ErrScriptUnavailable) {
		t.Fatalf("err = %v, want ErrScriptUnavailable", err)
	}
	if text != defaultApology {
		t.Fatalf("text = %q, want apology", text)
	}
	if err := f.coach.Listen(ctx, "", 0, narration.Callbacks{}); !errors.Is(err, ErrNarrationDisabled) {
		t.Fatalf("Listen err = %v, want ErrNarrationDisabled", err)
	}
}

func TestCoach_NewPromptDropsScript(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.meter.SetSubscription(ctx, true)

	if _, err := f.coach.RequestScript(ctx); err != nil {
		t.Fatalf("RequestScript: %v", err)
	}
	f.coach.pick = func(int) int { return 1 }
	word, err := f.coach.NextPrompt()
	if err != nil || word != "travel" {
		t.Fatalf("NextPrompt = %q, %v", word, err)
	}
	if f.coach.Script() != "" {
		t.Fatal("script kept after prompt changed")
	}
}

func TestCoach_StartPracticeRespectsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.meter.RecordAttempt(ctx)
	f.meter.RecordAttempt(ctx)

	if err := f.coach.StartPractice(ctx); !errors.Is(err, capture.ErrLimitReached) {
		t.Fatalf("err = %v, want ErrLimitReached", err)
	}
	if f.coach.Session().Snapshot().State != capture.Idle {
		t.Fatal("session left idle")
	}
}

func TestCoach_PracticeAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.coach.StartPractice(ctx); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}
	snap := f.coach.Session().Snapshot()
	if snap.PromptWord != "music" || snap.State != capture.Capturing {
		t.Fatalf("snapshot = %+v", snap)
	}
	if err := f.coach.Reset(); !errors.Is(err, capture.ErrInvalidState) {
		t.Fatalf("Reset while capturing err = %v", err)
	}

	f.rec.Push(capture.Event{Kind: capture.EventEnd})
	select {
	case <-f.coach.Session().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}

	if err := f.coach.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if f.coach.Session().Snapshot().State != capture.Idle {
		t.Fatal("session not idle after reset")
	}
}

func TestCoach_NoWords(t *testing.T) {
	c := New(nil, narration.NewPlayer(nil, nil, zerolog.Nop()), nil, nil, zerolog.Nop(), Options{})
	if _, err := c.NextPrompt(); !errors.Is(err, ErrNoWords) {
		t.Fatalf("err = %v, want ErrNoWords", err)
	}
}
