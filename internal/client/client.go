// Package client issues room commands over HTTP with idempotent
// retries, and recovers from server-side conflicts by forcing a full
// resync instead of retrying into a stale view.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/riffluv/ito-sub008/internal/command"
)

// Config tunes the API client.
type Config struct {
	BaseURL     string
	Token       string
	MaxAttempts int // total attempts per call, transport failures only
	Timeout     time.Duration
}

// Client talks to the command API. Conflict signals go out on its Bus.
type Client struct {
	cfg  Config
	http *http.Client
	bus  *Bus
}

// New creates a client. A nil bus gets a fresh one.
func New(cfg Config, bus *Bus) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if bus == nil {
		bus = NewBus()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		bus:  bus,
	}
}

// Bus returns the client's local event bus.
func (c *Client) Bus() *Bus { return c.bus }

// Do executes one command. The request id is generated once and reused
// across every retry, so the server applies the effect at most once.
//
// Transport failures retry up to MaxAttempts. A semantic conflict
// (409 with kind invalid_status) never retries: the client emits one
// forced-refresh and one listener-restart signal for the room and
// returns the error, so subscribers pull fresh state and reattach
// their change-feed listeners.
func (c *Client) Do(ctx context.Context, roomID, cmd string, payload command.Payload) (*command.Result, error) {
	body, err := json.Marshal(struct {
		RequestID string          `json:"requestId"`
		Payload   command.Payload `json:"payload"`
	}{
		RequestID: uuid.NewString(),
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode command body: %w", err)
	}

	url := fmt.Sprintf("%s/api/rooms/%s/commands/%s", c.cfg.BaseURL, roomID, cmd)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).
				Str("room_id", roomID).
				Str("command", cmd).
				Int("attempt", attempt).
				Msg("transport failure, retrying command")
			continue
		}

		result, err := c.decode(resp, roomID, cmd)
		resp.Body.Close()
		return result, err
	}

	return nil, &command.Error{
		Kind:    command.KindAPIError,
		Message: fmt.Sprintf("command %s failed after %d attempts", cmd, c.cfg.MaxAttempts),
		Err:     lastErr,
	}
}

func (c *Client) decode(resp *http.Response, roomID, cmd string) (*command.Result, error) {
	if resp.StatusCode == http.StatusOK {
		var result command.Result
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode command result: %w", err)
		}
		return &result, nil
	}

	var body struct {
		Error struct {
			Kind    command.Kind `json:"kind"`
			Message string       `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &command.Error{Kind: command.KindAPIError, Message: fmt.Sprintf("command %s failed with status %d", cmd, resp.StatusCode)}
	}

	if resp.StatusCode == http.StatusConflict && body.Error.Kind == command.KindInvalidStatus {
		// The room moved on under us: drop optimistic state, pull
		// fresh, and reattach listeners. One signal each per failure.
		log.Info().
			Str("room_id", roomID).
			Str("command", cmd).
			Msg("status conflict, forcing resync")
		c.bus.Publish(Event{Name: EventForceRefresh, RoomID: roomID})
		c.bus.Publish(Event{Name: EventRestartListener, RoomID: roomID})
	}

	return nil, &command.Error{Kind: body.Error.Kind, Message: body.Error.Message}
}
