// Package usage tracks free-tier practice consumption and the subscription
// flag for each user.
//
// State lives in a FlagStore. When the store is unavailable the meter reads
// defaults (no attempts, not subscribed) and keeps the practice flow open,
// which under-enforces the paywall until storage recovers.
package usage

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// FreeLimit is the number of practices a user gets without a subscription.
	FreeLimit = 2

	// Unlimited is reported as RemainingFree for subscribed users.
	Unlimited = -1

	subscriptionActive = "active"
)

// ErrResetDisabled is returned by Reset when the meter does not allow resets.
var ErrResetDisabled = errors.New("usage reset is disabled")

// Stats is a read-only view of a user's usage.
type Stats struct {
	AttemptCount     int  `json:"attempt_count"`
	RemainingFree    int  `json:"remaining_free"`
	IsSubscribed     bool `json:"is_subscribed"`
	CanAttempt       bool `json:"can_attempt"`
	HasExceededLimit bool `json:"has_exceeded_limit"`
}

// Meter reads and updates one user's usage state.
type Meter struct {
	mu         *sync.Mutex
	store      FlagStore
	keys       keys
	allowReset bool
	log        zerolog.Logger
	now        func() time.Time
}

type keys struct {
	count        string
	lastReset    string
	subscription string
}

func keysFor(userID string) keys {
	prefix := "jamtalk:" + userID + ":"
	return keys{
		count:        prefix + "usage_count",
		lastReset:    prefix + "last_reset",
		subscription: prefix + "subscription_status",
	}
}

// NewMeter creates a meter for userID backed by store.
func NewMeter(store FlagStore, userID string, allowReset bool, log zerolog.Logger) *Meter {
	return &Meter{
		mu:         new(sync.Mutex),
		store:      store,
		keys:       keysFor(userID),
		allowReset: allowReset,
		log:        log.With().Str("user_id", userID).Logger(),
		now:        time.Now,
	}
}

// Stats returns the current usage.
func (m *Meter) Stats(ctx context.Context) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.count(ctx)
	subscribed := m.subscribed(ctx)

	remaining := Unlimited
	if !subscribed {
		remaining = max(0, FreeLimit-count)
	}

	return Stats{
		AttemptCount:     count,
		RemainingFree:    remaining,
		IsSubscribed:     subscribed,
		CanAttempt:       subscribed || count < FreeLimit,
		HasExceededLimit: !subscribed && count >= FreeLimit,
	}
}

// CanAttempt reports whether the user may start another practice.
func (m *Meter) CanAttempt(ctx context.Context) bool {
	return m.Stats(ctx).CanAttempt
}

// IsSubscribed reports whether the subscription flag is set.
func (m *Meter) IsSubscribed(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribed(ctx)
}

// RecordAttempt increments the attempt count and returns the new value.
func (m *Meter) RecordAttempt(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.count(ctx) + 1
	m.set(ctx, m.keys.count, strconv.Itoa(next))
	return next
}

// SetSubscription sets or clears the subscription flag.
func (m *Meter) SetSubscription(ctx context.Context, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := "inactive"
	if active {
		status = subscriptionActive
	}
	m.set(ctx, m.keys.subscription, status)
}

// Reset clears the attempt count. It is only available on meters built with
// allowReset, which the server enables outside production.
func (m *Meter) Reset(ctx context.Context) error {
	if !m.allowReset {
		return ErrResetDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.set(ctx, m.keys.count, "0")
	m.set(ctx, m.keys.lastReset, strconv.FormatInt(m.now().UnixMilli(), 10))
	m.log.Info().Msg("Usage count reset")
	return nil
}

func (m *Meter) count(ctx context.Context) int {
	raw, ok, err := m.store.Get(ctx, m.keys.count)
	if err != nil {
		m.log.Warn().Err(err).Msg("Usage store read failed, assuming no attempts")
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (m *Meter) subscribed(ctx context.Context) bool {
	raw, ok, err := m.store.Get(ctx, m.keys.subscription)
	if err != nil {
		m.log.Warn().Err(err).Msg("Usage store read failed, assuming no subscription")
		return false
	}
	return ok && raw == subscriptionActive
}

func (m *Meter) set(ctx context.Context, key, value string) {
	if err := m.store.Set(ctx, key, value); err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("Usage store write failed")
	}
}
