package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riffluv/ito-sub008/internal/room/board"
)

func TestOptimisticBoardProposeThenConfirm(t *testing.T) {
	o := NewOptimisticBoard(4)
	require.True(t, o.ApplyAuthoritative(1, []string{"a", board.Empty, "c"}))

	res := o.Propose("b", -1)
	require.Equal(t, board.StatusOK, res.Status)
	assert.Equal(t, []string{"a", "b", "c"}, o.Current(), "optimistic move renders immediately")

	// Server confirms a different order; authoritative wins.
	require.True(t, o.ApplyAuthoritative(2, []string{"c", "b", "a"}))
	assert.Equal(t, []string{"c", "b", "a"}, o.Current())
}

func TestOptimisticBoardStaleAuthoritativeIgnored(t *testing.T) {
	o := NewOptimisticBoard(4)
	require.True(t, o.ApplyAuthoritative(5, []string{"a", "b"}))

	assert.False(t, o.ApplyAuthoritative(4, []string{"b", "a"}), "older version is discarded")
	assert.False(t, o.ApplyAuthoritative(5, []string{"b", "a"}), "equal version is discarded")
	assert.Equal(t, []string{"a", "b"}, o.Current())
}

func TestOptimisticBoardProposalStacksLocally(t *testing.T) {
	o := NewOptimisticBoard(4)
	o.Propose("a", 0)
	o.Propose("b", 1)
	assert.Equal(t, []string{"a", "b"}, o.Current())

	res := o.Propose("a", 1)
	require.Equal(t, board.StatusOK, res.Status)
	assert.Equal(t, []string{"b", "a"}, o.Current(), "swap applies locally")
}

func TestOptimisticBoardNoopDoesNotDirty(t *testing.T) {
	o := NewOptimisticBoard(4)
	require.True(t, o.ApplyAuthoritative(1, []string{"a"}))

	res := o.Propose("a", 0)
	assert.Equal(t, board.StatusNoop, res.Status)
	assert.Equal(t, []string{"a"}, o.Current())
}

func TestOptimisticBoardReset(t *testing.T) {
	o := NewOptimisticBoard(4)
	require.True(t, o.ApplyAuthoritative(9, []string{"a"}))
	o.Reset()

	assert.Empty(t, o.Current())
	assert.True(t, o.ApplyAuthoritative(1, []string{"b"}), "version floor drops with the reset")
	assert.Equal(t, []string{"b"}, o.Current())
}
