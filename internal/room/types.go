package room

import (
	"strings"
	"time"
)

// Status is the authoritative lifecycle phase of a room.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusClue     Status = "clue"
	StatusPlaying  Status = "playing"
	StatusReveal   Status = "reveal"
	StatusFinished Status = "finished"
)

// Options holds host-tunable room settings.
type Options struct {
	ResolveMode      string `json:"resolveMode,omitempty"`
	DefaultTopicType string `json:"defaultTopicType,omitempty"`
}

// UIState carries transient presentation flags that still need to be
// agreed on by every client, so they live in the authoritative doc.
type UIState struct {
	RoundPreparing bool       `json:"roundPreparing"`
	RecallOpen     bool       `json:"recallOpen"`
	RevealPending  bool       `json:"revealPending"`
	RevealBeginAt  *time.Time `json:"revealBeginAt,omitempty"`
}

// DealState records which players were dealt into the current round.
type DealState struct {
	Players []string `json:"players"`
}

// OrderState is the server-confirmed play order.
type OrderState struct {
	List []string `json:"list"`
}

// Result is the outcome of a finished round. Once written it is never
// overwritten for that round; see MergeResult.
type Result struct {
	Success    bool       `json:"success"`
	FailedAt   *int       `json:"failedAt,omitempty"`
	RevealedAt *time.Time `json:"revealedAt,omitempty"`
}

// MergeResult implements first-writer-wins for round results: an
// already-recorded result is kept, a candidate only fills the gap.
func MergeResult(current, next *Result) *Result {
	if current != nil {
		return current
	}
	return next
}

// Room is the authoritative shared game session document.
type Room struct {
	ID            string            `json:"id"`
	Status        Status            `json:"status"`
	Topic         *string           `json:"topic"`
	TopicBox      *string           `json:"topicBox"`
	Round         int               `json:"round"`
	HostID        string            `json:"hostId"`
	CreatorID     string            `json:"creatorId"`
	Options       Options           `json:"options"`
	UI            UIState           `json:"ui"`
	Deal          DealState         `json:"deal"`
	Order         OrderState        `json:"order"`
	MVPVotes      map[string]string `json:"mvpVotes,omitempty"`
	Result        *Result           `json:"result,omitempty"`
	StatusVersion int64             `json:"statusVersion"`
	LastActiveAt  time.Time         `json:"lastActiveAt"`
}

// Player is one seat in a room. The id equals the auth identity.
type Player struct {
	ID         string    `json:"id"`
	Number     *int      `json:"number,omitempty"`
	Clue1      string    `json:"clue1"`
	Ready      bool      `json:"ready"`
	OrderIndex int       `json:"orderIndex"`
	LastSeen   time.Time `json:"lastSeen"`
	JoinedAt   time.Time `json:"joinedAt"`
	Left       bool      `json:"left,omitempty"`
}

// ResetRound clears the per-round fields of a player while keeping the
// document itself (reset commands never delete player docs).
func (p *Player) ResetRound() {
	p.Number = nil
	p.Clue1 = ""
	p.Ready = false
	p.OrderIndex = -1
}

// NormalizeMembers trims, deduplicates and drops empty ids, preserving
// first-occurrence order.
func NormalizeMembers(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// NeedsHostReassign reports whether the room needs a new host after
// departing leaves. The remaining set is normalized before the check.
// Picking the replacement is up to the caller.
func NeedsHostReassign(currentHost, departing string, remaining []string) bool {
	members := NormalizeMembers(remaining)
	if len(members) == 0 {
		return false
	}
	if currentHost == "" {
		return true
	}
	for _, id := range members {
		if id == currentHost {
			return false
		}
	}
	return true
}
