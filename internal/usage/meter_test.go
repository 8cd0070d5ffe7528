package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/windfall/jamtalk_service/internal/logger"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage blocked")
}

func (brokenStore) Set(context.Context, string, string) error {
	return errors.New("storage blocked")
}

func TestMeter_RecordAttemptCountsCallsSinceReset(t *testing.T) {
	ctx := context.Background()
	m := NewMeter(NewMemoryStore(), "u1", true, logger.NewNop())

	prev := 0
	for i := 1; i <= 5; i++ {
		got := m.RecordAttempt(ctx)
		if got != i {
			t.Fatalf("RecordAttempt #%d = %d, want %d", i, got, i)
		}
		if got < prev {
			t.Fatalf("count decreased from %d to %d", prev, got)
		}
		prev = got
	}

	if err := m.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := m.Stats(ctx).AttemptCount; got != 0 {
		t.Fatalf("count after reset = %d, want 0", got)
	}
	if got := m.RecordAttempt(ctx); got != 1 {
		t.Fatalf("first attempt after reset = %d, want 1", got)
	}
}

func TestMeter_PaywallGate(t *testing.T) {
	tests := []struct {
		name       string
		attempts   int
		subscribed bool
		canAttempt bool
		remaining  int
	}{
		{name: "fresh user", attempts: 0, canAttempt: true, remaining: 2},
		{name: "one used", attempts: 1, canAttempt: true, remaining: 1},
		{name: "limit reached", attempts: 2, canAttempt: false, remaining: 0},
		{name: "over limit", attempts: 4, canAttempt: false, remaining: 0},
		{name: "subscribed over limit", attempts: 4, subscribed: true, canAttempt: true, remaining: Unlimited},
		{name: "subscribed fresh", attempts: 0, subscribed: true, canAttempt: true, remaining: Unlimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := NewMeter(NewMemoryStore(), "u", false, logger.NewNop())
			for i := 0; i < tt.attempts; i++ {
				m.RecordAttempt(ctx)
			}
			m.SetSubscription(ctx, tt.subscribed)

			stats := m.Stats(ctx)
			if stats.CanAttempt != tt.canAttempt {
				t.Fatalf("CanAttempt = %v, want %v", stats.CanAttempt, tt.canAttempt)
			}
			if stats.CanAttempt != (tt.subscribed || tt.attempts < FreeLimit) {
				t.Fatalf("CanAttempt does not match gate formula")
			}
			if stats.HasExceededLimit == stats.CanAttempt {
				t.Fatalf("HasExceededLimit = %v with CanAttempt = %v", stats.HasExceededLimit, stats.CanAttempt)
			}
			if stats.RemainingFree != tt.remaining {
				t.Fatalf("RemainingFree = %d, want %d", stats.RemainingFree, tt.remaining)
			}
		})
	}
}

func TestMeter_SetSubscriptionIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMeter(NewMemoryStore(), "u", false, logger.NewNop())

	m.SetSubscription(ctx, true)
	m.SetSubscription(ctx, true)
	if !m.IsSubscribed(ctx) {
		t.Fatal("expected subscribed")
	}
	m.SetSubscription(ctx, false)
	if m.IsSubscribed(ctx) {
		t.Fatal("expected unsubscribed")
	}
}

func TestMeter_ResetDisabled(t *testing.T) {
	ctx := context.Background()
	m := NewMeter(NewMemoryStore(), "u", false, logger.NewNop())
	m.RecordAttempt(ctx)

	if err := m.Reset(ctx); !errors.Is(err, ErrResetDisabled) {
		t.Fatalf("Reset err = %v, want ErrResetDisabled", err)
	}
	if got := m.Stats(ctx).AttemptCount; got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
}

func TestMeter_ResetStampsLastReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewMeter(store, "u", true, logger.NewNop())

	if err := m.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "jamtalk:u:last_reset"); !ok {
		t.Fatal("last_reset not written")
	}
}

func TestMeter_StorageUnavailableDegradesToDefaults(t *testing.T) {
	ctx := context.Background()
	m := NewMeter(brokenStore{}, "u", true, logger.NewNop())

	stats := m.Stats(ctx)
	if stats.AttemptCount != 0 || stats.IsSubscribed || !stats.CanAttempt {
		t.Fatalf("stats = %+v, want defaults", stats)
	}
	if got := m.RecordAttempt(ctx); got != 1 {
		t.Fatalf("RecordAttempt = %d, want 1", got)
	}
	if !m.CanAttempt(ctx) {
		t.Fatal("expected practice to stay available")
	}
}

func TestMeter_IgnoresCorruptCount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Set(ctx, "jamtalk:u:usage_count", "-3")
	m := NewMeter(store, "u", false, logger.NewNop())

	if got := m.RecordAttempt(ctx); got != 1 {
		t.Fatalf("RecordAttempt = %d, want 1", got)
	}
}

func TestTracker_SerialisesPerUser(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), false, logger.NewNop())
	ctx := context.Background()

	if tr.For("a").mu != tr.For("a").mu {
		t.Fatal("meters for one user do not share a lock")
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.For("a").RecordAttempt(ctx)
		}()
	}
	wg.Wait()
	if got := tr.For("a").Stats(ctx).AttemptCount; got != 50 {
		t.Fatalf("AttemptCount = %d, want 50", got)
	}
	if got := tr.For("b").Stats(ctx).AttemptCount; got != 0 {
		t.Fatalf("other user AttemptCount = %d, want 0", got)
	}
}

func TestTracker_LocksAreBounded(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), false, logger.NewNop())

	seen := make(map[*sync.Mutex]bool)
	for i := 0; i < 100000; i++ {
		seen[tr.For(fmt.Sprintf("user_%d", i)).mu] = true
	}
	if len(seen) > lockStripes {
		t.Fatalf("distinct locks = %d, want at most %d", len(seen), lockStripes)
	}
	owned := make(map[*sync.Mutex]bool, lockStripes)
	for i := range tr.locks {
		owned[&tr.locks[i]] = true
	}
	for mu := range seen {
		if !owned[mu] {
			t.Fatal("meter lock not owned by the tracker")
		}
	}
}
