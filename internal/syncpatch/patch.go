// Package syncpatch carries authoritative post-command room state to
// clients over a low-latency fan-out channel, independent of the
// document store's own change feed. Delivery is at-least-once and the
// two channels are not ordered relative to each other, so consumers
// dedupe by request id and order by statusVersion.
package syncpatch

import (
	"sync"
	"time"

	"github.com/riffluv/ito-sub008/internal/room"
)

// Patch is a versioned broadcast of authoritative room fields.
type Patch struct {
	RoomID        string     `json:"roomId"`
	StatusVersion int64      `json:"statusVersion"`
	Room          *room.Room `json:"room"`
	Command       string     `json:"command"`
	RequestID     string     `json:"requestId"`
	Source        string     `json:"source"`
	TS            time.Time  `json:"ts"`
}

// Tracker decides whether an incoming patch should be applied.
// statusVersion is the sole ordering authority; request ids guard
// against at-least-once redelivery. Seen-id memory is bounded.
type Tracker struct {
	mu          sync.Mutex
	capacity    int
	lastVersion map[string]int64
	seen        map[string]struct{}
	seenOrder   []string
}

// NewTracker creates a tracker remembering up to capacity request ids.
func NewTracker(capacity int) *Tracker {
	if capacity < 1 {
		capacity = 1
	}
	return &Tracker{
		capacity:    capacity,
		lastVersion: make(map[string]int64),
		seen:        make(map[string]struct{}, capacity),
	}
}

// ShouldApply reports whether p advances the tracker's view of its
// room, recording it when it does.
//
// A patch with an already-seen request id is dropped regardless of
// version. A patch at or below the last-applied version is dropped too,
// except for reset patches: a full reset restarts the version baseline,
// so its version is accepted even when it runs backwards.
func (t *Tracker) ShouldApply(p Patch) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p.RequestID != "" {
		if _, dup := t.seen[p.RequestID]; dup {
			return false
		}
	}

	last, known := t.lastVersion[p.RoomID]
	if known && p.Command != "reset" && p.StatusVersion <= last {
		return false
	}

	t.lastVersion[p.RoomID] = p.StatusVersion
	if p.RequestID != "" {
		t.remember(p.RequestID)
	}
	return true
}

func (t *Tracker) remember(requestID string) {
	if len(t.seenOrder) >= t.capacity {
		oldest := t.seenOrder[0]
		t.seenOrder = t.seenOrder[1:]
		delete(t.seen, oldest)
	}
	t.seen[requestID] = struct{}{}
	t.seenOrder = append(t.seenOrder, requestID)
}

// Forget drops the version floor for a room, forcing the next patch to
// apply. Used after a forced full resync.
func (t *Tracker) Forget(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastVersion, roomID)
}
