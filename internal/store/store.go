// Package store is the pgx-backed document store: room and player
// JSONB documents keyed under a room namespace, the room lock row, and
// the append-only audit log.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riffluv/ito-sub008/internal/room"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("store: not found")

// AuditEntry is one append-only record per command invocation.
type AuditEntry struct {
	ID         uuid.UUID
	RoomID     string
	CallerID   string
	RequestID  string
	Command    string
	PrevStatus room.Status
	NextStatus room.Status
	Note       string
	CreatedAt  time.Time
}

// Repository reads and writes documents through a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps an existing pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Connect opens a pool against dsn and verifies the connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// GetRoom loads one room document.
func (r *Repository) GetRoom(ctx context.Context, id string) (*room.Room, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT doc FROM rooms WHERE id = $1`, id,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}

	var rm room.Room
	if err := json.Unmarshal(doc, &rm); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", id, err)
	}
	return &rm, nil
}

// PutRoom writes the whole room document, its status version and a
// server-generated timestamp in one atomic statement.
func (r *Repository) PutRoom(ctx context.Context, rm *room.Room) error {
	doc, err := json.Marshal(rm)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", rm.ID, err)
	}
	_, err = r.pool.Exec(ctx, `
        INSERT INTO rooms (id, doc, status_version, updated_at)
        VALUES ($1, $2, $3, now())
        ON CONFLICT (id) DO UPDATE
        SET doc = EXCLUDED.doc,
            status_version = EXCLUDED.status_version,
            updated_at = now()`,
		rm.ID, doc, rm.StatusVersion,
	)
	if err != nil {
		return fmt.Errorf("put room %s: %w", rm.ID, err)
	}
	return nil
}

// GetPlayer loads one player document from a room namespace.
func (r *Repository) GetPlayer(ctx context.Context, roomID, id string) (*room.Player, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT doc FROM players WHERE room_id = $1 AND id = $2`, roomID, id,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("player %s in room %s: %w", id, roomID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get player %s: %w", id, err)
	}

	var p room.Player
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode player %s: %w", id, err)
	}
	return &p, nil
}

// PutPlayer writes one player document.
func (r *Repository) PutPlayer(ctx context.Context, roomID string, p *room.Player) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode player %s: %w", p.ID, err)
	}
	_, err = r.pool.Exec(ctx, `
        INSERT INTO players (room_id, id, doc, updated_at)
        VALUES ($1, $2, $3, now())
        ON CONFLICT (room_id, id) DO UPDATE
        SET doc = EXCLUDED.doc,
            updated_at = now()`,
		roomID, p.ID, doc,
	)
	if err != nil {
		return fmt.Errorf("put player %s: %w", p.ID, err)
	}
	return nil
}

// ListPlayers returns every player document in a room, earliest joined
// first.
func (r *Repository) ListPlayers(ctx context.Context, roomID string) ([]room.Player, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT doc FROM players WHERE room_id = $1 ORDER BY doc->>'joinedAt'`, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("list players for room %s: %w", roomID, err)
	}
	defer rows.Close()

	var players []room.Player
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan player row: %w", err)
		}
		var p room.Player
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("decode player row: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// TryLock atomically takes the room lock when the row is absent or
// expired. It reports false without blocking when someone else holds it.
func (r *Repository) TryLock(ctx context.Context, roomID, token string, ttl time.Duration) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
        INSERT INTO room_locks (room_id, token, expires_at)
        VALUES ($1, $2, now() + make_interval(secs => $3))
        ON CONFLICT (room_id) DO UPDATE
        SET token = EXCLUDED.token,
            expires_at = EXCLUDED.expires_at
        WHERE room_locks.expires_at < now()`,
		roomID, token, ttl.Seconds(),
	)
	if err != nil {
		return false, fmt.Errorf("try lock room %s: %w", roomID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Unlock releases the lock only when token still holds it.
func (r *Repository) Unlock(ctx context.Context, roomID, token string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM room_locks WHERE room_id = $1 AND token = $2`,
		roomID, token,
	)
	if err != nil {
		return fmt.Errorf("unlock room %s: %w", roomID, err)
	}
	return nil
}

// Append writes one audit entry. Callers treat failures as best-effort.
func (r *Repository) Append(ctx context.Context, e AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
        INSERT INTO audit_log (id, room_id, caller_id, request_id, command, prev_status, next_status, note, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		e.ID, e.RoomID, e.CallerID, e.RequestID, e.Command, string(e.PrevStatus), string(e.NextStatus), e.Note,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}
