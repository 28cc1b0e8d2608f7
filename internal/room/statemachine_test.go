package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatusForEvent(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		event   Event
		want    Status
		ok      bool
	}{
		{"start game from waiting", StatusWaiting, EventStartGame, StatusClue, true},
		{"start playing from clue", StatusClue, EventStartPlaying, StatusPlaying, true},
		{"abort clue back to waiting", StatusClue, EventReset, StatusWaiting, true},
		{"finish from playing", StatusPlaying, EventFinish, StatusFinished, true},
		{"finish from reveal", StatusReveal, EventFinish, StatusFinished, true},
		{"new round from finished", StatusFinished, EventContinueAfterFail, StatusClue, true},
		{"reset from finished", StatusFinished, EventReset, StatusWaiting, true},
		{"cannot start playing from waiting", StatusWaiting, EventStartPlaying, "", false},
		{"cannot finish from waiting", StatusWaiting, EventFinish, "", false},
		{"cannot start game from playing", StatusPlaying, EventStartGame, "", false},
		{"cannot reset mid play", StatusPlaying, EventReset, "", false},
		{"unknown event", StatusWaiting, Event("EXPLODE"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextStatusForEvent(tt.current, tt.event)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextStatusForEventStaysWithinTable(t *testing.T) {
	statuses := []Status{StatusWaiting, StatusClue, StatusPlaying, StatusReveal, StatusFinished}
	events := []Event{EventStartGame, EventStartPlaying, EventContinueAfterFail, EventFinish, EventReset}
	for _, cur := range statuses {
		for _, ev := range events {
			next, ok := NextStatusForEvent(cur, ev)
			if ok {
				assert.True(t, CanTransition(cur, next), "%s + %s yielded %s outside the table", cur, ev, next)
			} else {
				assert.Empty(t, next)
			}
		}
	}
}

func TestMergeResult(t *testing.T) {
	failedAt := 2
	current := &Result{Success: false, FailedAt: &failedAt}
	next := &Result{Success: true}

	assert.Same(t, current, MergeResult(current, next))
	assert.Same(t, current, MergeResult(current, nil))
	assert.Same(t, next, MergeResult(nil, next))
	assert.Nil(t, MergeResult(nil, nil))
}

func TestNeedsHostReassign(t *testing.T) {
	assert.False(t, NeedsHostReassign("alice", "alice", nil), "empty room never reassigns")
	assert.False(t, NeedsHostReassign("alice", "alice", []string{" ", ""}))
	assert.True(t, NeedsHostReassign("", "bob", []string{"carol"}), "missing host requires reassignment")
	assert.False(t, NeedsHostReassign("alice", "bob", []string{"alice", "carol"}))
	assert.True(t, NeedsHostReassign("alice", "alice", []string{"bob", "carol"}))
	assert.False(t, NeedsHostReassign("alice", "bob", []string{" alice ", "alice"}), "remaining set is normalized")
}

func TestNormalizeMembers(t *testing.T) {
	got := NormalizeMembers([]string{" alice", "bob", "", "alice ", "  ", "carol"})
	assert.Equal(t, []string{"alice", "bob", "carol"}, got)
}
