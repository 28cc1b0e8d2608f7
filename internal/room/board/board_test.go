package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertFirstEmptySlot(t *testing.T) {
	res := Insert([]string{"a", Empty, "c"}, "b", 4, -1)

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []string{"a", "b", "c"}, res.Board)
	assert.Equal(t, 1, res.FinalIndex)
}

func TestInsertAppendsWhenNoEmptySlot(t *testing.T) {
	res := Insert([]string{"a", "b"}, "c", 4, -1)

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []string{"a", "b", "c"}, res.Board)
	assert.Equal(t, 2, res.FinalIndex)
}

func TestInsertSwapsWithOccupant(t *testing.T) {
	res := Insert([]string{"alice", "bob"}, "alice", 4, 1)

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []string{"bob", "alice"}, res.Board)
	assert.Equal(t, 1, res.FinalIndex)
}

func TestInsertOwnSlotIsNoop(t *testing.T) {
	in := []string{"a", "bob"}
	res := Insert(in, "bob", 4, 1)

	assert.Equal(t, StatusNoop, res.Status)
	assert.Equal(t, in, res.Board)
	assert.Equal(t, -1, res.FinalIndex)
}

func TestInsertGapFillsToClampedIndex(t *testing.T) {
	res := Insert([]string{"a"}, "b", 4, 3)

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []string{"a", Empty, Empty, "b"}, res.Board)
	assert.Equal(t, 3, res.FinalIndex)
}

func TestInsertClampsPastCapacity(t *testing.T) {
	res := Insert([]string{"a"}, "b", 3, 9)

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []string{"a", Empty, "b"}, res.Board)
	assert.Equal(t, 2, res.FinalIndex)
}

func TestInsertMovesExistingOccupantIntoEmptySlot(t *testing.T) {
	// Newcomer takes an occupied slot; the displaced occupant lands in
	// the first empty one.
	res := Insert([]string{"a", Empty}, "b", 4, 0)

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []string{"b", "a"}, res.Board)
	assert.Equal(t, 0, res.FinalIndex)
}

func TestInsertRelocatesPlayerToEmptyTarget(t *testing.T) {
	res := Insert([]string{"a", "b", Empty}, "a", 4, 2)

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []string{Empty, "b", "a"}, res.Board)
	assert.Equal(t, 2, res.FinalIndex)
}

func TestInsertFullBoardNoop(t *testing.T) {
	in := []string{"a", "b", "c"}
	res := Insert(in, "d", 3, -1)

	assert.Equal(t, StatusNoop, res.Status)
	assert.Equal(t, in, res.Board)
}

func TestInsertNeverDuplicatesIDs(t *testing.T) {
	res := Insert([]string{"a", "b", "c"}, "a", 4, 2)
	require.Equal(t, StatusOK, res.Status)

	seen := map[string]int{}
	for _, id := range res.Board {
		if id != Empty {
			seen[id]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s appears %d times", id, n)
	}
}

func TestPrune(t *testing.T) {
	got := Prune([]string{"a", Empty, "b", "c"}, []string{"c", "a"})
	assert.Equal(t, []string{"a", "c"}, got)

	assert.Empty(t, Prune([]string{"a"}, nil))
}
