package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager tracks WebSocket connections per room and fans
// sync patches out to them.
type ConnectionManager struct {
	mu              sync.RWMutex
	roomConnections map[string]map[*Connection]bool

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection is one client socket subscribed to a room. The send
// channel is never closed; done signals the write pump to drain out, so
// a broadcast that snapshotted the connection before it unregistered
// can still complete its send safely.
type Connection struct {
	RoomID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	mgr    *ConnectionManager

	connectedAt time.Time
}

// ConnectionConfig holds socket tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the production socket tuning.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates an empty manager.
func NewConnectionManager(cfg ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		config: cfg,
	}
}

// HandleWS upgrades the request and pumps patches to the client until
// it disconnects.
func (m *ConnectionManager) HandleWS(w http.ResponseWriter, r *http.Request, roomID string) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("websocket upgrade failed")
		return
	}

	c := &Connection{
		RoomID:      roomID,
		conn:        ws,
		send:        make(chan []byte, 32),
		done:        make(chan struct{}),
		mgr:         m,
		connectedAt: time.Now(),
	}
	m.register(c)

	go c.writePump()
	c.readPump()
}

// Broadcast sends data to every connection in a room. Slow consumers
// are dropped rather than allowed to block the fan-out.
func (m *ConnectionManager) Broadcast(roomID string, data []byte) {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.roomConnections[roomID]))
	for c := range m.roomConnections[roomID] {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		select {
		case <-c.done:
			// Unregistered after the snapshot; nothing to deliver.
		case c.send <- data:
		default:
			log.Warn().Str("room_id", roomID).Msg("dropping slow websocket consumer")
			m.unregister(c)
		}
	}
}

// ConnectionCount reports how many sockets a room has.
func (m *ConnectionManager) ConnectionCount(roomID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.roomConnections[roomID])
}

func (m *ConnectionManager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roomConnections[c.RoomID] == nil {
		m.roomConnections[c.RoomID] = make(map[*Connection]bool)
	}
	m.roomConnections[c.RoomID][c] = true
}

func (m *ConnectionManager) unregister(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conns, ok := m.roomConnections[c.RoomID]; ok {
		if conns[c] {
			delete(conns, c)
			close(c.done)
		}
		if len(conns) == 0 {
			delete(m.roomConnections, c.RoomID)
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.mgr.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.mgr.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.mgr.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.mgr.config.PongTimeout))
	})

	for {
		// Clients only listen on this socket; reads exist to surface
		// close frames and pongs.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.mgr.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.mgr.config.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.mgr.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.mgr.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
