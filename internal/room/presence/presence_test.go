package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func boolPtr(b bool) *bool           { return &b }
func timePtr(t time.Time) *time.Time { return &t }

func TestActive(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		rec  Record
		want bool
	}{
		{"explicit online wins without timestamp", Record{Online: boolPtr(true)}, true},
		{"explicit offline wins over fresh timestamp", Record{Online: boolPtr(false), Timestamp: timePtr(now)}, false},
		{"fresh heartbeat", Record{Timestamp: timePtr(now.Add(-time.Second))}, true},
		{"heartbeat at window edge", Record{Timestamp: timePtr(now.Add(-cfg.ActiveWindow))}, true},
		{"stale heartbeat", Record{Timestamp: timePtr(now.Add(-cfg.ActiveWindow - time.Second))}, false},
		{"slightly ahead of server clock", Record{Timestamp: timePtr(now.Add(cfg.Skew))}, true},
		{"too far ahead of server clock", Record{Timestamp: timePtr(now.Add(cfg.Skew + time.Second))}, false},
		{"empty record", Record{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.Active(tt.rec, now))
		})
	}
}

func TestSelectEligiblePrefersListed(t *testing.T) {
	cfg := DefaultConfig()
	roster := []Member{
		{ID: "alice", LastSeen: now.Add(-time.Second)},
		{ID: "bob", LastSeen: now.Add(-time.Second)},
	}

	got := cfg.SelectEligible([]string{"alice"}, roster, now)
	assert.Equal(t, []string{"alice", "bob"}, got, "listed first, active roster appended")
}

func TestSelectEligibleFallsBackToActiveRoster(t *testing.T) {
	cfg := DefaultConfig()
	roster := []Member{
		{ID: "alice", LastSeen: now.Add(-time.Second)},
		{ID: "bob", LastSeen: now.Add(-5 * cfg.ActiveWindow)},
	}

	got := cfg.SelectEligible(nil, roster, now)
	assert.Equal(t, []string{"alice"}, got)
}

func TestSelectEligibleIgnoresUnknownListedIDs(t *testing.T) {
	cfg := DefaultConfig()
	roster := []Member{{ID: "alice", LastSeen: now}}

	got := cfg.SelectEligible([]string{"ghost", " alice ", "alice"}, roster, now)
	assert.Equal(t, []string{"alice"}, got)
}

func TestSelectEligibleListedOverridesStaleness(t *testing.T) {
	cfg := DefaultConfig()
	roster := []Member{{ID: "alice", LastSeen: now.Add(-time.Hour)}}

	got := cfg.SelectEligible([]string{"alice"}, roster, now)
	assert.Equal(t, []string{"alice"}, got, "explicitly listed roster id is trusted even when stale")
}
