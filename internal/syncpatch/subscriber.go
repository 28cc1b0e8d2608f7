package syncpatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Handler receives patches that passed the subscriber's tracker.
type Handler func(Patch)

// Subscriber consumes the room sync stream and hands ordered,
// deduplicated patches to a handler. Each Subscribe call owns an
// ephemeral ordered consumer; Stop on the returned subscription ends it.
type Subscriber struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	cfg     TransportConfig
	tracker *Tracker
}

// Subscription is a live patch feed.
type Subscription struct {
	consumeCtx jetstream.ConsumeContext
}

// Stop ends the feed.
func (s *Subscription) Stop() {
	s.consumeCtx.Stop()
}

// NewSubscriber connects to the sync stream.
func NewSubscriber(cfg TransportConfig) (*Subscriber, error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, cfg: cfg, tracker: NewTracker(512)}, nil
}

// Subscribe delivers patches for one room, or for every room when
// roomID is empty. Stale or already-seen patches are dropped before the
// handler sees them.
func (s *Subscriber) Subscribe(ctx context.Context, roomID string, fn Handler) (*Subscription, error) {
	subject := s.cfg.SubjectPrefix + ".>"
	if roomID != "" {
		subject = s.cfg.subject(roomID)
	}

	cons, err := s.js.OrderedConsumer(ctx, s.cfg.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create sync consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var patch Patch
		if err := json.Unmarshal(msg.Data(), &patch); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed sync patch")
			return
		}
		if !s.tracker.ShouldApply(patch) {
			log.Debug().
				Str("room_id", patch.RoomID).
				Str("request_id", patch.RequestID).
				Int64("status_version", patch.StatusVersion).
				Msg("dropping stale or duplicate sync patch")
			return
		}
		fn(patch)
	})
	if err != nil {
		return nil, fmt.Errorf("consume sync stream: %w", err)
	}

	return &Subscription{consumeCtx: cc}, nil
}

// ForceResync drops the version floor for a room so the next patch
// after a fresh pull applies cleanly.
func (s *Subscriber) ForceResync(roomID string) {
	s.tracker.Forget(roomID)
}

// Close drops the NATS connection.
func (s *Subscriber) Close() {
	s.nc.Close()
}
