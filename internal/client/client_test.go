package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riffluv/ito-sub008/internal/command"
)

func TestDoRetriesTransportFailureOnce(t *testing.T) {
	var calls atomic.Int32
	var firstRequestID, secondRequestID string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var body struct {
			RequestID string `json:"requestId"`
		}
		_ = readJSON(r, &body)
		if n == 1 {
			firstRequestID = body.RequestID
			// Kill the connection mid-response to simulate a transient
			// network failure.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		secondRequestID = body.RequestID
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"command":"ready","status":"clue","statusVersion":7}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "t", MaxAttempts: 3}, nil)
	res, err := c.Do(context.Background(), "room-1", "ready", command.Payload{})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load(), "exactly two attempts")
	assert.Equal(t, int64(7), res.StatusVersion)
	assert.Equal(t, firstRequestID, secondRequestID, "request id is stable across retries")
	assert.NotEmpty(t, firstRequestID)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hj := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "t", MaxAttempts: 2}, nil)
	_, err := c.Do(context.Background(), "room-1", "ready", command.Payload{})

	require.Error(t, err)
	assert.Equal(t, command.KindAPIError, command.KindOf(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoConflictEmitsSignalsAndFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"kind":"invalid_status","message":"stale"}}`))
	}))
	defer srv.Close()

	bus := NewBus()
	var refreshes, restarts []Event
	unsubRefresh := bus.Subscribe(EventForceRefresh, func(ev Event) { refreshes = append(refreshes, ev) })
	defer unsubRefresh()
	unsubRestart := bus.Subscribe(EventRestartListener, func(ev Event) { restarts = append(restarts, ev) })
	defer unsubRestart()

	c := New(Config{BaseURL: srv.URL, Token: "t", MaxAttempts: 3}, bus)
	_, err := c.Do(context.Background(), "room-1", "start", command.Payload{})

	require.Error(t, err)
	assert.Equal(t, command.KindInvalidStatus, command.KindOf(err))
	assert.Equal(t, int32(1), calls.Load(), "semantic conflicts are not retried")

	require.Len(t, refreshes, 1, "exactly one forced-refresh per failed call")
	require.Len(t, restarts, 1, "exactly one listener-restart per failed call")
	assert.Equal(t, "room-1", refreshes[0].RoomID)
	assert.Equal(t, "room-1", restarts[0].RoomID)
}

func TestDoOtherErrorsDoNotSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"kind":"forbidden","message":"nope"}}`))
	}))
	defer srv.Close()

	bus := NewBus()
	var events int
	defer bus.Subscribe(EventForceRefresh, func(Event) { events++ })()

	c := New(Config{BaseURL: srv.URL, Token: "t"}, bus)
	_, err := c.Do(context.Background(), "room-1", "start", command.Payload{})

	assert.Equal(t, command.KindForbidden, command.KindOf(err))
	assert.Zero(t, events)
}

func TestBusSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus()

	var a, b int
	unsubA := bus.Subscribe(EventForceRefresh, func(Event) { a++ })
	unsubB := bus.Subscribe(EventForceRefresh, func(Event) { b++ })

	bus.Publish(Event{Name: EventForceRefresh, RoomID: "r"})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)

	unsubA()
	unsubA() // double unsubscribe is safe
	bus.Publish(Event{Name: EventForceRefresh, RoomID: "r"})
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)

	unsubB()
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
