package command

import (
	"github.com/riffluv/ito-sub008/internal/room"
)

// Command names. One idempotent room mutation each.
const (
	CmdStart            = "start"
	CmdNextRound        = "next-round"
	CmdSubmitClue       = "submit-clue"
	CmdSubmitOrder      = "submit-order"
	CmdReady            = "ready"
	CmdRevealPending    = "reveal-pending"
	CmdFinalizeReveal   = "finalize-reveal"
	CmdMVPVote          = "mvp-vote"
	CmdReset            = "reset"
	CmdResetPlayerState = "reset-player-state"
	CmdRoomOptions      = "room-options"
	CmdPruneProposal    = "prune-proposal"
	CmdLeaveRoom        = "leave-room"
)

// Payload carries the command-specific fields of a request.
type Payload struct {
	Clue             string   `json:"clue,omitempty"`
	TargetID         string   `json:"targetId,omitempty"`
	Ready            *bool    `json:"ready,omitempty"`
	ResolveMode      string   `json:"resolveMode,omitempty"`
	DefaultTopicType string   `json:"defaultTopicType,omitempty"`
	PresenceIDs      []string `json:"presenceIds,omitempty"`
	OrderList        []string `json:"orderList,omitempty"`
	RecallSpectators bool     `json:"recallSpectators,omitempty"`
	PlayerID         string   `json:"playerId,omitempty"`
}

// Request is one command invocation. RequestID is caller-supplied and
// bounds the idempotency guarantee: re-invoking with the same id must
// not re-apply the effect.
type Request struct {
	Command   string  `json:"command"`
	RoomID    string  `json:"roomId"`
	RequestID string  `json:"requestId"`
	Token     string  `json:"-"`
	Payload   Payload `json:"payload"`
}

// Result is the successful outcome of a command, echoing the
// authoritative post-command room state.
type Result struct {
	Command       string      `json:"command"`
	Status        room.Status `json:"status"`
	StatusVersion int64       `json:"statusVersion"`
	Room          *room.Room  `json:"room"`
}
