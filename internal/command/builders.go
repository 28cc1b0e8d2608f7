package command

import (
	"time"

	"github.com/riffluv/ito-sub008/internal/room"
)

// Pure field-set builders. Handlers compute the new state here and
// write it in one atomic update; nothing in this file touches storage.

// buildResetToWaiting returns the waiting baseline for a room: topics
// nulled, round zeroed, per-round state cleared, recallOpen set from
// caller intent, and a fresh statusVersion baseline.
func buildResetToWaiting(rm room.Room, recallOpen bool) room.Room {
	rm.Status = room.StatusWaiting
	rm.Topic = nil
	rm.TopicBox = nil
	rm.Round = 0
	rm.Deal = room.DealState{}
	rm.Order = room.OrderState{}
	rm.MVPVotes = nil
	rm.Result = nil
	rm.UI = room.UIState{RecallOpen: recallOpen}
	rm.StatusVersion = 1
	return rm
}

// buildRevealPending flags the reveal animation start for every client.
func buildRevealPending(rm room.Room, beginAt time.Time) room.Room {
	rm.UI.RevealPending = true
	rm.UI.RevealBeginAt = &beginAt
	rm.StatusVersion++
	return rm
}

// buildDeal applies a fresh deal: targets dealt in, order and
// last round's outcome cleared, round counter bumped.
func buildDeal(rm room.Room, targets []string, next room.Status) room.Room {
	rm.Deal = room.DealState{Players: targets}
	rm.Order = room.OrderState{}
	rm.Result = nil
	rm.MVPVotes = nil
	rm.Round++
	rm.Status = next
	rm.UI.RevealPending = false
	rm.UI.RevealBeginAt = nil
	rm.UI.RoundPreparing = false
	rm.StatusVersion++
	return rm
}

// buildReadyUpdate returns the player with its ready flag set.
func buildReadyUpdate(p room.Player, ready bool, now time.Time) room.Player {
	p.Ready = ready
	p.LastSeen = now
	return p
}

// computeRevealResult checks the confirmed order against the dealt
// numbers: the round succeeds when numbers never decrease along the
// order. Ids without a number are skipped.
func computeRevealResult(order []string, numbers map[string]int, now time.Time) *room.Result {
	res := &room.Result{Success: true, RevealedAt: &now}
	prev := -1
	for i, id := range order {
		n, ok := numbers[id]
		if !ok {
			continue
		}
		if n < prev {
			failedAt := i
			res.Success = false
			res.FailedAt = &failedAt
			break
		}
		prev = n
	}
	return res
}
