package client

import (
	"sync"

	"github.com/riffluv/ito-sub008/internal/room/board"
)

// OptimisticBoard is the two-tier ordering board: a local proposed
// layer applied synchronously on user moves, and the authoritative
// server-confirmed order that always wins, keyed by statusVersion.
type OptimisticBoard struct {
	mu       sync.Mutex
	maxCount int

	authoritative []string
	version       int64

	proposed    []string
	hasProposal bool
}

// NewOptimisticBoard creates an empty board with the given capacity.
func NewOptimisticBoard(maxCount int) *OptimisticBoard {
	return &OptimisticBoard{maxCount: maxCount}
}

// Propose applies a local move immediately, without waiting for the
// server round-trip. The result mirrors board.Insert.
func (o *OptimisticBoard) Propose(playerID string, targetIndex int) board.InsertResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	base := o.proposed
	if !o.hasProposal {
		base = o.authoritative
	}
	res := board.Insert(base, playerID, o.maxCount, targetIndex)
	if res.Status == board.StatusOK {
		o.proposed = res.Board
		o.hasProposal = true
	}
	return res
}

// ApplyAuthoritative installs the server-confirmed order. A version at
// or below the last applied one is ignored; a newer one always wins
// and discards any local proposal.
func (o *OptimisticBoard) ApplyAuthoritative(version int64, list []string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if version <= o.version {
		return false
	}
	o.version = version
	o.authoritative = append([]string(nil), list...)
	o.proposed = nil
	o.hasProposal = false
	return true
}

// Current returns the board the UI should render: the proposed layer
// when one is pending, else the authoritative order.
func (o *OptimisticBoard) Current() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	src := o.authoritative
	if o.hasProposal {
		src = o.proposed
	}
	return append([]string(nil), src...)
}

// Reset drops both layers and the version floor, for a forced resync.
func (o *OptimisticBoard) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.authoritative = nil
	o.proposed = nil
	o.hasProposal = false
	o.version = 0
}
