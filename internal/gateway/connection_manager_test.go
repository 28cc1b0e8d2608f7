package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(m *ConnectionManager, roomID string, buffer int) *Connection {
	return &Connection{
		RoomID: roomID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		mgr:    m,
	}
}

func TestUnregisterLeavesSendChannelOpen(t *testing.T) {
	m := NewConnectionManager(DefaultConnectionConfig())
	c := newTestConn(m, "room-1", 1)
	m.register(c)
	m.unregister(c)

	select {
	case <-c.done:
	default:
		t.Fatal("unregister must signal done")
	}

	// A fan-out that snapshotted this connection before the unregister
	// may still attempt the send; it must never hit a closed channel.
	require.NotPanics(t, func() {
		select {
		case <-c.done:
		case c.send <- []byte("patch"):
		default:
		}
	})
}

func TestBroadcastDeliversToLiveConnections(t *testing.T) {
	m := NewConnectionManager(DefaultConnectionConfig())
	c := newTestConn(m, "room-1", 4)
	m.register(c)

	m.Broadcast("room-1", []byte("patch-1"))
	m.Broadcast("other-room", []byte("patch-2"))

	require.Len(t, c.send, 1)
	assert.Equal(t, []byte("patch-1"), <-c.send)
}

func TestSlowConsumerIsDroppedNotPanicked(t *testing.T) {
	m := NewConnectionManager(DefaultConnectionConfig())
	c := newTestConn(m, "room-1", 1)
	m.register(c)

	m.Broadcast("room-1", []byte("patch-1"))
	require.NotPanics(t, func() {
		m.Broadcast("room-1", []byte("patch-2"))
	})

	assert.Zero(t, m.ConnectionCount("room-1"), "slow consumer is unregistered")
	select {
	case <-c.done:
	default:
		t.Fatal("dropped consumer must be signalled done")
	}

	// Further fan-outs to the room are clean no-ops for this socket.
	require.NotPanics(t, func() {
		m.Broadcast("room-1", []byte("patch-3"))
	})
}

func TestUnregisterIsIdempotent(t *testing.T) {
	m := NewConnectionManager(DefaultConnectionConfig())
	c := newTestConn(m, "room-1", 1)
	m.register(c)

	m.unregister(c)
	require.NotPanics(t, func() { m.unregister(c) })
	assert.Zero(t, m.ConnectionCount("room-1"))
}
