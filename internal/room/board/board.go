// Package board implements the shared card-ordering board: a
// fixed-capacity array of player ids with empty slots. Insert is pure so
// clients can apply a move optimistically and let the server-confirmed
// order overwrite it later.
package board

// Empty marks a vacant slot.
const Empty = ""

// Status reports the outcome of an insert.
type Status string

const (
	StatusOK   Status = "ok"
	StatusNoop Status = "noop"
)

// InsertResult carries the normalized board after an insert attempt.
// On noop the board is the input, unchanged, and FinalIndex is -1.
type InsertResult struct {
	Status     Status
	Board      []string
	FinalIndex int
}

// Insert places playerID on the board.
//
//   - targetIndex -1 means "first empty slot", extending the board up to
//     maxCount when no empty slot exists;
//   - an index at or past the current length is clamped to maxCount-1
//     and the gap is filled with empty slots;
//   - a slot already held by playerID is a noop;
//   - a slot held by someone else swaps the two occupants.
func Insert(b []string, playerID string, maxCount, targetIndex int) InsertResult {
	if playerID == "" || maxCount <= 0 {
		return noop(b)
	}

	out := make([]string, len(b))
	copy(out, b)
	if len(out) > maxCount {
		out = out[:maxCount]
	}

	existing := indexOf(out, playerID)

	target := targetIndex
	if target == -1 {
		target = indexOf(out, Empty)
		if target == -1 {
			if len(out) >= maxCount {
				return noop(b)
			}
			out = append(out, Empty)
			target = len(out) - 1
		}
	}
	if target < 0 {
		return noop(b)
	}
	if target >= maxCount {
		target = maxCount - 1
	}
	for len(out) <= target {
		out = append(out, Empty)
	}

	if out[target] == playerID {
		return noop(b)
	}

	occupant := out[target]
	switch {
	case occupant == Empty:
		if existing != -1 {
			out[existing] = Empty
		}
		out[target] = playerID
	case existing != -1:
		out[existing], out[target] = occupant, playerID
	default:
		// Incoming player has no slot yet: take the target and move the
		// occupant to the first empty slot.
		spot := indexOf(out, Empty)
		if spot == -1 {
			if len(out) >= maxCount {
				return noop(b)
			}
			out = append(out, Empty)
			spot = len(out) - 1
		}
		out[target] = playerID
		out[spot] = occupant
	}

	return InsertResult{Status: StatusOK, Board: out, FinalIndex: target}
}

func indexOf(b []string, id string) int {
	for i, v := range b {
		if v == id {
			return i
		}
	}
	return -1
}

func noop(b []string) InsertResult {
	return InsertResult{Status: StatusNoop, Board: b, FinalIndex: -1}
}

// Prune keeps only ids still present in eligible, dropping the rest and
// compacting the board. Used when players leave mid-round.
func Prune(b []string, eligible []string) []string {
	keep := make(map[string]struct{}, len(eligible))
	for _, id := range eligible {
		keep[id] = struct{}{}
	}
	out := make([]string, 0, len(b))
	for _, id := range b {
		if id == Empty {
			continue
		}
		if _, ok := keep[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
