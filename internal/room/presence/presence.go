// Package presence decides which player ids count as live, from
// heartbeat timestamps and explicit connection flags, and turns that
// into the eligible participant set for a round.
package presence

import (
	"time"

	"github.com/riffluv/ito-sub008/internal/room"
)

const (
	// DefaultActiveWindow is how far back a heartbeat may be and still
	// count as live.
	DefaultActiveWindow = 45 * time.Second
	// DefaultSkew tolerates client clocks running slightly ahead of the
	// server.
	DefaultSkew = 5 * time.Second
)

// Record is one connection observation for a player.
type Record struct {
	// Online is the explicit connection flag. When present it decides
	// on its own; the timestamp is only consulted when the flag is absent.
	Online    *bool
	Timestamp *time.Time
}

// Config holds the activity window tuning.
type Config struct {
	ActiveWindow time.Duration
	Skew         time.Duration
}

// DefaultConfig returns the production window tuning.
func DefaultConfig() Config {
	return Config{ActiveWindow: DefaultActiveWindow, Skew: DefaultSkew}
}

// Active reports whether a connection record counts as live at now.
// A record carrying neither a flag nor a timestamp is inactive.
func (c Config) Active(rec Record, now time.Time) bool {
	if rec.Online != nil {
		return *rec.Online
	}
	if rec.Timestamp == nil {
		return false
	}
	ts := *rec.Timestamp
	if ts.Before(now.Add(-c.ActiveWindow)) {
		return false
	}
	if ts.After(now.Add(c.Skew)) {
		return false
	}
	return true
}

// Member is a roster entry with its last heartbeat.
type Member struct {
	ID       string
	LastSeen time.Time
}

// SelectEligible computes the ids participating in a round.
//
// Explicitly listed ids are preferred and come first, each
// cross-checked against the roster (listed ids with no roster entry are
// ignored). Roster members whose heartbeat falls inside the active
// window are appended after them. With an empty listed set the active
// roster alone decides.
func (c Config) SelectEligible(listed []string, roster []Member, now time.Time) []string {
	byID := make(map[string]Member, len(roster))
	for _, m := range roster {
		byID[m.ID] = m
	}

	out := make([]string, 0, len(roster))
	taken := make(map[string]struct{}, len(roster))
	for _, id := range room.NormalizeMembers(listed) {
		if _, ok := byID[id]; !ok {
			continue
		}
		if _, dup := taken[id]; dup {
			continue
		}
		taken[id] = struct{}{}
		out = append(out, id)
	}

	for _, m := range roster {
		if _, dup := taken[m.ID]; dup {
			continue
		}
		ts := m.LastSeen
		if !c.Active(Record{Timestamp: &ts}, now) {
			continue
		}
		taken[m.ID] = struct{}{}
		out = append(out, m.ID)
	}
	return out
}
