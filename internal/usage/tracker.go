package usage

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
)

const lockStripes = 256

// Tracker hands out meters. Meters for the same user share a lock stripe so
// concurrent updates for that user are serialised, and the tracker keeps no
// per-user state.
type Tracker struct {
	store      FlagStore
	allowReset bool
	log        zerolog.Logger

	locks [lockStripes]sync.Mutex
}

// NewTracker creates a Tracker backed by store.
func NewTracker(store FlagStore, allowReset bool, log zerolog.Logger) *Tracker {
	return &Tracker{
		store:      store,
		allowReset: allowReset,
		log:        log,
	}
}

// For returns a meter for userID.
func (t *Tracker) For(userID string) *Meter {
	m := NewMeter(t.store, userID, t.allowReset, t.log)
	m.mu = t.lockFor(userID)
	return m
}

func (t *Tracker) lockFor(userID string) *sync.Mutex {
	return &t.locks[xxhash.Sum64String(userID)%lockStripes]
}
