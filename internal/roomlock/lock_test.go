package roomlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLockStore is an in-memory Store honoring TTLs against an
// injectable clock.
type memLockStore struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	holders  map[string]lockRow
	tryCalls int
}

type lockRow struct {
	token     string
	expiresAt time.Time
}

func newMemLockStore(clock clockwork.Clock) *memLockStore {
	return &memLockStore{clock: clock, holders: make(map[string]lockRow)}
}

func (s *memLockStore) TryLock(_ context.Context, roomID, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tryCalls++
	row, held := s.holders[roomID]
	if held && row.expiresAt.After(s.clock.Now()) {
		return false, nil
	}
	s.holders[roomID] = lockRow{token: token, expiresAt: s.clock.Now().Add(ttl)}
	return true, nil
}

func (s *memLockStore) Unlock(_ context.Context, roomID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, held := s.holders[roomID]; held && row.token == token {
		delete(s.holders, roomID)
	}
	return nil
}

func TestAcquireRelease(t *testing.T) {
	store := newMemLockStore(clockwork.NewRealClock())
	locker := NewLocker(store, nil, DefaultConfig())

	h, err := locker.Acquire(context.Background(), "room-1")
	require.NoError(t, err)
	h.Release(context.Background())

	h2, err := locker.Acquire(context.Background(), "room-1")
	require.NoError(t, err)
	h2.Release(context.Background())
}

func TestAcquireContentionFailsFast(t *testing.T) {
	store := newMemLockStore(clockwork.NewRealClock())
	cfg := Config{TTL: time.Second, Attempts: 3, Backoff: time.Millisecond}
	locker := NewLocker(store, nil, cfg)

	winner, err := locker.Acquire(context.Background(), "room-1")
	require.NoError(t, err)
	defer winner.Release(context.Background())

	store.mu.Lock()
	store.tryCalls = 0
	store.mu.Unlock()

	_, err = locker.Acquire(context.Background(), "room-1")
	assert.ErrorIs(t, err, ErrRoomBusy)

	store.mu.Lock()
	assert.Equal(t, 3, store.tryCalls, "bounded wait makes exactly cfg.Attempts attempts")
	store.mu.Unlock()
}

func TestAcquireExactlyOneWinner(t *testing.T) {
	store := newMemLockStore(clockwork.NewRealClock())
	cfg := Config{TTL: time.Second, Attempts: 1, Backoff: time.Millisecond}
	locker := NewLocker(store, nil, cfg)

	const n = 8
	var wg sync.WaitGroup
	wins := make(chan *Handle, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h, err := locker.Acquire(context.Background(), "room-1"); err == nil {
				wins <- h
			}
		}()
	}
	wg.Wait()
	close(wins)

	var handles []*Handle
	for h := range wins {
		handles = append(handles, h)
	}
	require.Len(t, handles, 1, "exactly one concurrent acquire may win")
	handles[0].Release(context.Background())
}

func TestExpiredLockIsStealable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newMemLockStore(clock)
	cfg := Config{TTL: time.Second, Attempts: 1, Backoff: time.Millisecond}
	locker := NewLocker(store, nil, cfg)

	_, err := locker.Acquire(context.Background(), "room-1")
	require.NoError(t, err)
	// Holder crashes without releasing.

	clock.Advance(2 * time.Second)

	h, err := locker.Acquire(context.Background(), "room-1")
	require.NoError(t, err, "expired lock must be stealable")
	h.Release(context.Background())
}

func TestStaleReleaseDoesNotDropNewHolder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newMemLockStore(clock)
	cfg := Config{TTL: time.Second, Attempts: 1, Backoff: time.Millisecond}
	locker := NewLocker(store, nil, cfg)

	old, err := locker.Acquire(context.Background(), "room-1")
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	current, err := locker.Acquire(context.Background(), "room-1")
	require.NoError(t, err)

	// The crashed holder's late release must not free the new token.
	old.Release(context.Background())

	_, err = locker.Acquire(context.Background(), "room-1")
	assert.ErrorIs(t, err, ErrRoomBusy)
	current.Release(context.Background())
}
