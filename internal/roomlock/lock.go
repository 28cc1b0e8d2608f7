// Package roomlock provides the per-room mutual-exclusion token every
// mutating command must hold. The token lives in storage with a short
// TTL so a crashed holder cannot wedge the room forever.
package roomlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrRoomBusy is returned when the lock is held by someone else after
// the bounded wait. Callers map it to a retryable client error.
var ErrRoomBusy = errors.New("roomlock: room is busy")

// Store is what the locker needs from storage: a compare-and-swap row
// per room. TryLock must atomically take the lock when the row is
// absent or expired, and report false otherwise.
type Store interface {
	TryLock(ctx context.Context, roomID, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, roomID, token string) error
}

// Config tunes the lock TTL and the bounded acquire wait. Contended
// acquires retry a few times with a short pause, then fail fast; they
// never queue indefinitely.
type Config struct {
	TTL      time.Duration
	Attempts int
	Backoff  time.Duration
}

// DefaultConfig returns the production tuning: an 8s TTL and at most
// three attempts spaced 120ms apart.
func DefaultConfig() Config {
	return Config{
		TTL:      8 * time.Second,
		Attempts: 3,
		Backoff:  120 * time.Millisecond,
	}
}

// Locker acquires per-room locks.
type Locker struct {
	store Store
	clock clockwork.Clock
	cfg   Config
}

// NewLocker creates a locker backed by store. A nil clock gets the real one.
func NewLocker(store Store, clock clockwork.Clock, cfg Config) *Locker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Locker{store: store, clock: clock, cfg: cfg}
}

// Handle is a held lock. Release is safe to call from a defer on every
// exit path; releasing an already-expired lock is a no-op.
type Handle struct {
	locker *Locker
	roomID string
	token  string
}

// Acquire takes the lock for roomID or fails with ErrRoomBusy after the
// bounded wait. Exactly one of two concurrent acquires wins.
func (l *Locker) Acquire(ctx context.Context, roomID string) (*Handle, error) {
	token := uuid.NewString()
	for attempt := 1; ; attempt++ {
		ok, err := l.store.TryLock(ctx, roomID, token, l.cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("acquire room lock: %w", err)
		}
		if ok {
			return &Handle{locker: l, roomID: roomID, token: token}, nil
		}
		if attempt >= l.cfg.Attempts {
			return nil, ErrRoomBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.clock.After(l.cfg.Backoff):
		}
	}
}

// Release gives the lock back. Failures are logged, not returned: the
// TTL reclaims the row anyway and the command already ran.
func (h *Handle) Release(ctx context.Context) {
	if h == nil {
		return
	}
	if err := h.locker.store.Unlock(ctx, h.roomID, h.token); err != nil {
		log.Warn().Err(err).Str("room_id", h.roomID).Msg("failed to release room lock; waiting for TTL")
	}
}
