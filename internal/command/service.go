// Package command executes room mutations. Every handler authorizes the
// caller, takes the room lock, validates the state-machine transition,
// applies a pure field-set update, writes it atomically, and emits an
// audit record plus a sync patch. Request ids make each command
// at-most-once under concurrent retries.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/riffluv/ito-sub008/internal/auth"
	"github.com/riffluv/ito-sub008/internal/room"
	"github.com/riffluv/ito-sub008/internal/room/board"
	"github.com/riffluv/ito-sub008/internal/room/deal"
	"github.com/riffluv/ito-sub008/internal/room/presence"
	"github.com/riffluv/ito-sub008/internal/roomlock"
	"github.com/riffluv/ito-sub008/internal/store"
	"github.com/riffluv/ito-sub008/internal/syncpatch"
)

// Store is what handlers need from the document store.
type Store interface {
	GetRoom(ctx context.Context, id string) (*room.Room, error)
	PutRoom(ctx context.Context, rm *room.Room) error
	GetPlayer(ctx context.Context, roomID, id string) (*room.Player, error)
	PutPlayer(ctx context.Context, roomID string, p *room.Player) error
	ListPlayers(ctx context.Context, roomID string) ([]room.Player, error)
}

// Locker acquires the per-room lock before any read-modify-write runs.
type Locker interface {
	Acquire(ctx context.Context, roomID string) (*roomlock.Handle, error)
}

// Publisher fans the post-command sync patch out to clients.
type Publisher interface {
	Publish(ctx context.Context, p syncpatch.Patch) error
}

// Auditor appends one record per command invocation.
type Auditor interface {
	Append(ctx context.Context, e store.AuditEntry) error
}

// Config tunes the command service.
type Config struct {
	NumberMin  int
	NumberMax  int
	RateLimit  int
	RateWindow time.Duration
	SeenSize   int
	Presence   presence.Config
	Source     string
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		NumberMin:  1,
		NumberMax:  100,
		RateLimit:  30,
		RateWindow: 10 * time.Second,
		SeenSize:   512,
		Presence:   presence.DefaultConfig(),
		Source:     "server",
	}
}

// Service runs commands against rooms.
type Service struct {
	store     Store
	locker    Locker
	publisher Publisher
	auditor   Auditor
	verifier  auth.Verifier
	clock     clockwork.Clock
	cfg       Config
	seen      *seenCache
	limiter   *rateLimiter
}

// NewService wires a command service. A nil clock gets the real one.
func NewService(st Store, locker Locker, publisher Publisher, auditor Auditor, verifier auth.Verifier, clock clockwork.Clock, cfg Config) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.SeenSize < 1 {
		cfg.SeenSize = 512
	}
	return &Service{
		store:     st,
		locker:    locker,
		publisher: publisher,
		auditor:   auditor,
		verifier:  verifier,
		clock:     clock,
		cfg:       cfg,
		seen:      newSeenCache(cfg.SeenSize),
		limiter:   newRateLimiter(clock, cfg.RateLimit, cfg.RateWindow),
	}
}

// Execute runs one command end to end. A request id that already ran
// returns the recorded result without re-executing any effect.
func (s *Service) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Command == "" || req.RoomID == "" || req.RequestID == "" {
		return nil, Errf(KindAPIError, "command, roomId and requestId are required")
	}

	uid, err := s.verifier.Verify(ctx, req.Token)
	if err != nil {
		return nil, Wrap(KindForbidden, err, "credential rejected")
	}

	// Replay lookup runs before the limiter so a retry of an applied
	// command never burns rate budget.
	if res, replay := s.seen.get(req.RequestID); replay {
		log.Debug().
			Str("room_id", req.RoomID).
			Str("request_id", req.RequestID).
			Str("command", req.Command).
			Msg("replayed request id; returning recorded result")
		return &res, nil
	}

	if !s.limiter.allow(uid) {
		return nil, Errf(KindRateLimited, "caller %s exceeded the action rate", uid)
	}

	handle, err := s.locker.Acquire(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, roomlock.ErrRoomBusy) {
			return nil, Wrap(KindBusy, err, "room is locked by another command")
		}
		return nil, Wrap(KindAPIError, err, "could not lock room")
	}
	defer handle.Release(ctx)

	// A retry that missed the cache while the original was still in
	// flight serializes behind the lock; the cache is written before the
	// lock is released, so this second lookup settles the race.
	if res, replay := s.seen.get(req.RequestID); replay {
		log.Debug().
			Str("room_id", req.RoomID).
			Str("request_id", req.RequestID).
			Str("command", req.Command).
			Msg("request id recorded while waiting for lock; returning recorded result")
		return &res, nil
	}

	rm, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, Wrap(KindAPIError, err, "load room")
	}
	prevStatus := rm.Status

	if err := s.dispatch(ctx, uid, req, rm); err != nil {
		return nil, err
	}

	rm.LastActiveAt = s.clock.Now()
	if err := s.store.PutRoom(ctx, rm); err != nil {
		return nil, Wrap(KindAPIError, err, "write room")
	}

	s.audit(ctx, uid, req, prevStatus, rm.Status)
	s.publish(ctx, req, rm)

	res := Result{
		Command:       req.Command,
		Status:        rm.Status,
		StatusVersion: rm.StatusVersion,
		Room:          rm,
	}
	s.seen.put(req.RequestID, res)
	return &res, nil
}

func (s *Service) dispatch(ctx context.Context, uid string, req Request, rm *room.Room) error {
	switch req.Command {
	case CmdStart:
		return s.dealRound(ctx, uid, req, rm, room.EventStartGame)
	case CmdNextRound:
		return s.dealRound(ctx, uid, req, rm, room.EventContinueAfterFail)
	case CmdSubmitClue:
		return s.submitClue(ctx, uid, req, rm)
	case CmdSubmitOrder:
		return s.submitOrder(ctx, uid, req, rm)
	case CmdReady:
		return s.ready(ctx, uid, req, rm)
	case CmdRevealPending:
		return s.revealPending(ctx, uid, rm)
	case CmdFinalizeReveal:
		return s.finalizeReveal(ctx, uid, rm)
	case CmdMVPVote:
		return s.mvpVote(ctx, uid, req, rm)
	case CmdReset:
		return s.reset(ctx, uid, req, rm)
	case CmdResetPlayerState:
		return s.resetPlayerState(ctx, uid, req, rm)
	case CmdRoomOptions:
		return s.roomOptions(uid, req, rm)
	case CmdPruneProposal:
		return s.pruneProposal(ctx, uid, rm)
	case CmdLeaveRoom:
		return s.leaveRoom(ctx, uid, req, rm)
	default:
		return Errf(KindAPIError, "unknown command %q", req.Command)
	}
}

func (s *Service) requireHost(rm *room.Room, uid string) error {
	if uid != rm.HostID {
		return Errf(KindForbidden, "command requires host, caller is %s", uid)
	}
	return nil
}

func (s *Service) roster(ctx context.Context, roomID string) ([]room.Player, error) {
	players, err := s.store.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, Wrap(KindAPIError, err, "list players")
	}
	active := players[:0]
	for _, p := range players {
		if !p.Left {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].JoinedAt.Before(active[j].JoinedAt)
	})
	return active, nil
}

func isParticipant(rm *room.Room, uid string) bool {
	for _, id := range rm.Deal.Players {
		if id == uid {
			return true
		}
	}
	return false
}

// dealRound backs both start and next-round: selects deal targets,
// draws deterministic numbers seeded by roomId+round, and moves to clue.
func (s *Service) dealRound(ctx context.Context, uid string, req Request, rm *room.Room, ev room.Event) error {
	if err := s.requireHost(rm, uid); err != nil {
		return err
	}
	next, ok := room.NextStatusForEvent(rm.Status, ev)
	if !ok {
		return Errf(KindInvalidStatus, "cannot deal a round while %s", rm.Status)
	}

	roster, err := s.roster(ctx, rm.ID)
	if err != nil {
		return err
	}
	members := make([]presence.Member, len(roster))
	for i, p := range roster {
		members[i] = presence.Member{ID: p.ID, LastSeen: p.LastSeen}
	}

	targets := s.cfg.Presence.SelectEligible(req.Payload.PresenceIDs, members, s.clock.Now())
	if len(targets) == 0 {
		return Errf(KindNoPlayers, "no eligible players to deal to")
	}

	seed := fmt.Sprintf("%s:%d", rm.ID, rm.Round+1)
	numbers, err := deal.Numbers(len(targets), s.cfg.NumberMin, s.cfg.NumberMax, seed)
	if err != nil {
		return Wrap(KindAPIError, err, "deal numbers")
	}

	for i, id := range targets {
		p, err := s.store.GetPlayer(ctx, rm.ID, id)
		if err != nil {
			return Wrap(KindAPIError, err, "load dealt player")
		}
		p.ResetRound()
		n := numbers[i]
		p.Number = &n
		if err := s.store.PutPlayer(ctx, rm.ID, p); err != nil {
			return Wrap(KindAPIError, err, "write dealt player")
		}
	}

	*rm = buildDeal(*rm, targets, next)
	return nil
}

func (s *Service) submitClue(ctx context.Context, uid string, req Request, rm *room.Room) error {
	if rm.Status != room.StatusClue {
		return Errf(KindInvalidStatus, "clues are only accepted while %s", room.StatusClue)
	}
	if !isParticipant(rm, uid) {
		return Errf(KindForbidden, "caller %s was not dealt into this round", uid)
	}

	p, err := s.store.GetPlayer(ctx, rm.ID, uid)
	if err != nil {
		return Wrap(KindAPIError, err, "load player")
	}
	p.Clue1 = req.Payload.Clue
	p.LastSeen = s.clock.Now()
	if err := s.store.PutPlayer(ctx, rm.ID, p); err != nil {
		return Wrap(KindAPIError, err, "write player")
	}

	rm.StatusVersion++
	return nil
}

func (s *Service) submitOrder(ctx context.Context, uid string, req Request, rm *room.Room) error {
	if uid != rm.HostID && !isParticipant(rm, uid) {
		return Errf(KindForbidden, "caller %s is neither host nor participant", uid)
	}
	next, ok := room.NextStatusForEvent(rm.Status, room.EventStartPlaying)
	if !ok {
		return Errf(KindInvalidStatus, "cannot confirm an order while %s", rm.Status)
	}

	numbers, err := s.dealtNumbers(ctx, rm)
	if err != nil {
		return err
	}
	if len(numbers) == 0 {
		return Errf(KindNoPlayers, "no numbers have been dealt")
	}

	list := make([]string, 0, len(req.Payload.OrderList))
	for _, id := range room.NormalizeMembers(req.Payload.OrderList) {
		if _, dealt := numbers[id]; dealt {
			list = append(list, id)
		}
	}

	for idx, id := range list {
		p, err := s.store.GetPlayer(ctx, rm.ID, id)
		if err != nil {
			return Wrap(KindAPIError, err, "load ordered player")
		}
		p.OrderIndex = idx
		if err := s.store.PutPlayer(ctx, rm.ID, p); err != nil {
			return Wrap(KindAPIError, err, "write ordered player")
		}
	}

	rm.Order = room.OrderState{List: list}
	rm.Status = next
	rm.StatusVersion++
	return nil
}

func (s *Service) ready(ctx context.Context, uid string, req Request, rm *room.Room) error {
	p, err := s.store.GetPlayer(ctx, rm.ID, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Errf(KindForbidden, "caller %s is not in the room", uid)
		}
		return Wrap(KindAPIError, err, "load player")
	}

	ready := true
	if req.Payload.Ready != nil {
		ready = *req.Payload.Ready
	}
	updated := buildReadyUpdate(*p, ready, s.clock.Now())
	if err := s.store.PutPlayer(ctx, rm.ID, &updated); err != nil {
		return Wrap(KindAPIError, err, "write player")
	}

	rm.StatusVersion++
	return nil
}

func (s *Service) revealPending(_ context.Context, uid string, rm *room.Room) error {
	if uid != rm.HostID && !isParticipant(rm, uid) {
		return Errf(KindForbidden, "caller %s is neither host nor participant", uid)
	}
	if rm.UI.RevealPending {
		// Already flagged; a retry must not move the animation start.
		return nil
	}
	*rm = buildRevealPending(*rm, s.clock.Now())
	return nil
}

func (s *Service) finalizeReveal(ctx context.Context, uid string, rm *room.Room) error {
	if uid != rm.HostID && uid != rm.CreatorID && !isParticipant(rm, uid) {
		return Errf(KindForbidden, "caller %s may not finalize the reveal", uid)
	}
	if rm.Status == room.StatusFinished && rm.Result != nil {
		// Already finalized; idempotent replay.
		return nil
	}
	next, ok := room.NextStatusForEvent(rm.Status, room.EventFinish)
	if !ok {
		return Errf(KindInvalidStatus, "cannot finalize while %s", rm.Status)
	}

	numbers, err := s.dealtNumbers(ctx, rm)
	if err != nil {
		return err
	}
	candidate := computeRevealResult(rm.Order.List, numbers, s.clock.Now())

	// First-writer-wins: an existing result is never overwritten.
	rm.Result = room.MergeResult(rm.Result, candidate)
	rm.Status = next
	rm.UI.RevealPending = false
	rm.StatusVersion++
	return nil
}

func (s *Service) mvpVote(ctx context.Context, uid string, req Request, rm *room.Room) error {
	roster, err := s.roster(ctx, rm.ID)
	if err != nil {
		return err
	}
	inRoster := func(id string) bool {
		for _, p := range roster {
			if p.ID == id {
				return true
			}
		}
		return false
	}
	if !inRoster(uid) {
		return Errf(KindForbidden, "caller %s is not in the room", uid)
	}
	target := req.Payload.TargetID
	if target == "" || !inRoster(target) {
		return Errf(KindNoPlayers, "vote target %q is not in the room", target)
	}

	if rm.MVPVotes == nil {
		rm.MVPVotes = make(map[string]string)
	}
	rm.MVPVotes[uid] = target
	rm.StatusVersion++
	return nil
}

func (s *Service) reset(ctx context.Context, uid string, req Request, rm *room.Room) error {
	if err := s.requireHost(rm, uid); err != nil {
		return err
	}

	roster, err := s.roster(ctx, rm.ID)
	if err != nil {
		return err
	}
	for i := range roster {
		p := roster[i]
		p.ResetRound()
		if err := s.store.PutPlayer(ctx, rm.ID, &p); err != nil {
			return Wrap(KindAPIError, err, "reset player")
		}
	}

	*rm = buildResetToWaiting(*rm, req.Payload.RecallSpectators)
	return nil
}

func (s *Service) resetPlayerState(ctx context.Context, uid string, req Request, rm *room.Room) error {
	target := req.Payload.TargetID
	if target == "" {
		target = uid
	}
	if target != uid {
		if err := s.requireHost(rm, uid); err != nil {
			return err
		}
	}

	p, err := s.store.GetPlayer(ctx, rm.ID, target)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Errf(KindNoPlayers, "player %s is not in the room", target)
		}
		return Wrap(KindAPIError, err, "load player")
	}
	p.ResetRound()
	if err := s.store.PutPlayer(ctx, rm.ID, p); err != nil {
		return Wrap(KindAPIError, err, "write player")
	}

	rm.StatusVersion++
	return nil
}

func (s *Service) roomOptions(uid string, req Request, rm *room.Room) error {
	if err := s.requireHost(rm, uid); err != nil {
		return err
	}
	if req.Payload.ResolveMode != "" {
		rm.Options.ResolveMode = req.Payload.ResolveMode
	}
	if req.Payload.DefaultTopicType != "" {
		rm.Options.DefaultTopicType = req.Payload.DefaultTopicType
	}
	rm.StatusVersion++
	return nil
}

// pruneProposal recomputes the eligible-id set from the live roster and
// drops departed ids from the shared order board and the deal list.
func (s *Service) pruneProposal(ctx context.Context, uid string, rm *room.Room) error {
	roster, err := s.roster(ctx, rm.ID)
	if err != nil {
		return err
	}
	ids := make([]string, len(roster))
	inRoster := false
	for i, p := range roster {
		ids[i] = p.ID
		if p.ID == uid {
			inRoster = true
		}
	}
	if !inRoster && uid != rm.HostID {
		return Errf(KindForbidden, "caller %s is not in the room", uid)
	}

	eligible := room.NormalizeMembers(ids)
	rm.Order.List = board.Prune(rm.Order.List, eligible)
	rm.Deal.Players = board.Prune(rm.Deal.Players, eligible)
	rm.StatusVersion++
	return nil
}

func (s *Service) leaveRoom(ctx context.Context, uid string, req Request, rm *room.Room) error {
	if req.Payload.PlayerID != uid {
		return Errf(KindForbidden, "token identity %s does not match payload id %s", uid, req.Payload.PlayerID)
	}

	p, err := s.store.GetPlayer(ctx, rm.ID, uid)
	if err != nil {
		return Wrap(KindAPIError, err, "load leaving player")
	}
	p.Left = true
	p.ResetRound()
	if err := s.store.PutPlayer(ctx, rm.ID, p); err != nil {
		return Wrap(KindAPIError, err, "write leaving player")
	}

	roster, err := s.roster(ctx, rm.ID)
	if err != nil {
		return err
	}
	remaining := make([]string, 0, len(roster))
	for _, m := range roster {
		if m.ID != uid {
			remaining = append(remaining, m.ID)
		}
	}

	rm.Order.List = board.Prune(rm.Order.List, remaining)
	rm.Deal.Players = board.Prune(rm.Deal.Players, remaining)

	if room.NeedsHostReassign(rm.HostID, uid, remaining) {
		// roster is ordered earliest joined first.
		rm.HostID = remaining[0]
	}
	rm.StatusVersion++
	return nil
}

func (s *Service) dealtNumbers(ctx context.Context, rm *room.Room) (map[string]int, error) {
	numbers := make(map[string]int, len(rm.Deal.Players))
	for _, id := range rm.Deal.Players {
		p, err := s.store.GetPlayer(ctx, rm.ID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, Wrap(KindAPIError, err, "load dealt player")
		}
		if p.Number != nil {
			numbers[p.ID] = *p.Number
		}
	}
	return numbers, nil
}

// audit appends one record per invocation. Best-effort: a logging
// failure must never fail the command.
func (s *Service) audit(ctx context.Context, uid string, req Request, prev, next room.Status) {
	entry := store.AuditEntry{
		ID:         uuid.New(),
		RoomID:     req.RoomID,
		CallerID:   uid,
		RequestID:  req.RequestID,
		Command:    req.Command,
		PrevStatus: prev,
		NextStatus: next,
		Note:       fmt.Sprintf("status %s -> %s", prev, next),
	}
	if err := s.auditor.Append(ctx, entry); err != nil {
		log.Warn().Err(err).
			Str("room_id", req.RoomID).
			Str("command", req.Command).
			Msg("audit append failed; continuing")
	}
}

// publish fans the authoritative post-command state out. Best-effort:
// clients converge through the document store's change feed anyway.
func (s *Service) publish(ctx context.Context, req Request, rm *room.Room) {
	patch := syncpatch.Patch{
		RoomID:        rm.ID,
		StatusVersion: rm.StatusVersion,
		Room:          rm,
		Command:       req.Command,
		RequestID:     req.RequestID,
		Source:        s.cfg.Source,
		TS:            s.clock.Now(),
	}
	if err := s.publisher.Publish(ctx, patch); err != nil {
		log.Error().Err(err).
			Str("room_id", rm.ID).
			Str("command", req.Command).
			Msg("sync patch publish failed")
	}
}
