// Package gateway exposes the command surface over HTTP and fans sync
// patches out to websocket listeners.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/riffluv/ito-sub008/internal/command"
	"github.com/riffluv/ito-sub008/internal/room"
	"github.com/riffluv/ito-sub008/internal/store"
	"github.com/riffluv/ito-sub008/internal/syncpatch"
)

// Executor runs commands. Implemented by *command.Service.
type Executor interface {
	Execute(ctx context.Context, req command.Request) (*command.Result, error)
}

// RoomReader serves fresh room pulls for resync.
type RoomReader interface {
	GetRoom(ctx context.Context, id string) (*room.Room, error)
}

// PatchFeed is the subscribe side of the sync channel.
type PatchFeed interface {
	Subscribe(ctx context.Context, roomID string, fn syncpatch.Handler) (*syncpatch.Subscription, error)
}

// Service wires the HTTP routes, the websocket fan-out and the sync
// channel bridge together.
type Service struct {
	executor Executor
	rooms    RoomReader
	feed     PatchFeed
	cm       *ConnectionManager

	sub *syncpatch.Subscription
}

// NewService creates a gateway.
func NewService(executor Executor, rooms RoomReader, feed PatchFeed, cfg ConnectionConfig) *Service {
	return &Service{
		executor: executor,
		rooms:    rooms,
		feed:     feed,
		cm:       NewConnectionManager(cfg),
	}
}

// Start bridges the sync stream into the websocket pools.
func (s *Service) Start(ctx context.Context) error {
	sub, err := s.feed.Subscribe(ctx, "", func(p syncpatch.Patch) {
		data, err := json.Marshal(p)
		if err != nil {
			log.Error().Err(err).Str("room_id", p.RoomID).Msg("encode sync patch for fan-out")
			return
		}
		s.cm.Broadcast(p.RoomID, data)
	})
	if err != nil {
		return fmt.Errorf("subscribe sync stream: %w", err)
	}
	s.sub = sub
	return nil
}

// Stop ends the sync bridge.
func (s *Service) Stop() {
	if s.sub != nil {
		s.sub.Stop()
	}
}

// RegisterRoutes mounts the gateway on a router.
func (s *Service) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/rooms/{roomId}/commands/{command}", s.handleCommand).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms/{roomId}", s.handleGetRoom).Methods(http.MethodGet)
	r.HandleFunc("/ws/rooms/{roomId}", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
}

type commandBody struct {
	RequestID string          `json:"requestId"`
	Payload   command.Payload `json:"payload"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    command.Kind `json:"kind"`
	Message string       `json:"message"`
}

func (s *Service) handleCommand(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID := vars["roomId"]
	cmd := vars["command"]

	var body commandBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, command.KindAPIError, fmt.Sprintf("malformed body: %v", err))
		return
	}

	req := command.Request{
		Command:   cmd,
		RoomID:    roomID,
		RequestID: body.RequestID,
		Token:     bearerToken(r),
		Payload:   body.Payload,
	}

	res, err := s.executor.Execute(r.Context(), req)
	if err != nil {
		kind := command.KindOf(err)
		log.Info().
			Str("room_id", roomID).
			Str("command", cmd).
			Str("kind", string(kind)).
			Err(err).
			Msg("command rejected")
		writeError(w, kind, command.UserMessage(kind))
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	rm, err := s.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Kind: command.KindAPIError, Message: "room not found"}})
			return
		}
		writeError(w, command.KindAPIError, command.UserMessage(command.KindAPIError))
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (s *Service) handleWS(w http.ResponseWriter, r *http.Request) {
	s.cm.HandleWS(w, r, mux.Vars(r)["roomId"])
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return token
	}
	return ""
}

func writeError(w http.ResponseWriter, kind command.Kind, message string) {
	writeJSON(w, command.HTTPStatus(kind), errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}
