package syncpatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// TransportConfig holds the NATS/JetStream settings shared by the
// publisher and subscriber sides of the sync channel.
type TransportConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // how long patches stay replayable
	DuplicateWindow time.Duration // broker-side request-id dedupe window
}

// DefaultTransportConfig returns the production sync-channel settings.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		URL:             nats.DefaultURL,
		StreamName:      "ROOM_SYNC",
		SubjectPrefix:   "room.sync",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          10 * time.Minute,
		DuplicateWindow: 2 * time.Minute,
	}
}

func (c TransportConfig) subject(roomID string) string {
	return fmt.Sprintf("%s.%s", c.SubjectPrefix, roomID)
}

func connect(cfg TransportConfig) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}

// JetStreamPublisher fans sync patches out on the room sync stream. The
// broker's duplicate window keyed by request id gives idempotent
// publication despite command-side retries.
type JetStreamPublisher struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg TransportConfig
}

// NewJetStreamPublisher connects and makes sure the stream exists.
func NewJetStreamPublisher(cfg TransportConfig) (*JetStreamPublisher, error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	p := &JetStreamPublisher{nc: nc, js: js, cfg: cfg}
	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       p.cfg.StreamName,
		Subjects:   []string{p.cfg.SubjectPrefix + ".>"},
		MaxAge:     p.cfg.MaxAge,
		Duplicates: p.cfg.DuplicateWindow,
	})
	return err
}

// Publish sends one patch. The request id doubles as the JetStream
// message id, so a retried publish inside the duplicate window is
// absorbed by the broker.
func (p *JetStreamPublisher) Publish(ctx context.Context, patch Patch) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal sync patch: %w", err)
	}

	opts := []jetstream.PublishOpt{}
	if patch.RequestID != "" {
		opts = append(opts, jetstream.WithMsgID(patch.RequestID))
	}
	if _, err := p.js.Publish(ctx, p.cfg.subject(patch.RoomID), data, opts...); err != nil {
		return fmt.Errorf("publish sync patch: %w", err)
	}

	log.Debug().
		Str("room_id", patch.RoomID).
		Str("command", patch.Command).
		Int64("status_version", patch.StatusVersion).
		Msg("published sync patch")
	return nil
}

// Close drops the NATS connection.
func (p *JetStreamPublisher) Close() {
	p.nc.Close()
}
