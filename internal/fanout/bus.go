// Package fanout relays game messages between server processes over Redis pub/sub.
//
// Every process publishes on game:<id> and pattern-subscribes to game:*, including the
// publisher itself; the relay re-delivers each envelope to the local registry while
// skipping the session that originated it.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/tictac-relay/internal/obslog"
	"github.com/park285/tictac-relay/internal/registry"
)

const (
	topicPrefix   = "game:"
	wildcardTopic = topicPrefix + "*"
)

// Envelope is the bus wire format.
type Envelope struct {
	GameID        string `json:"game_id"`
	OriginSession string `json:"origin_session"`
	Payload       string `json:"payload"`
}

// Topic returns the channel name for a game.
func Topic(gameID string) string { return topicPrefix + gameID }

type Bus struct {
	rdb            *redis.Client
	reg            *registry.Registry
	resubscribeGap time.Duration

	readyOnce sync.Once
	ready     chan struct{}
}

func New(rdb *redis.Client, reg *registry.Registry) *Bus {
	return &Bus{rdb: rdb, reg: reg, resubscribeGap: time.Second, ready: make(chan struct{})}
}

// Ready is closed once the first pattern subscription is confirmed.
func (b *Bus) Ready() <-chan struct{} { return b.ready }

// Publish sends payload to every process subscribed to the game's topic.
func (b *Bus) Publish(ctx context.Context, gameID, payload, originSession string) error {
	raw, err := json.Marshal(Envelope{GameID: gameID, OriginSession: originSession, Payload: payload})
	if err != nil { return err }
	if err := b.rdb.Publish(ctx, Topic(gameID), raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Topic(gameID), err)
	}
	return nil
}

// BroadcastToAll hands payload to the origin session directly and publishes it for
// everyone else. The relay excludes the origin, so it sees the message once.
func (b *Bus) BroadcastToAll(ctx context.Context, gameID, payload, originSession string) error {
	if originSession != "" {
		b.reg.Send(gameID, originSession, payload)
	}
	return b.Publish(ctx, gameID, payload, originSession)
}

// Run subscribes to all game topics and relays messages until ctx is done.
// A failed subscription is retried; a bad message is logged and skipped.
func (b *Bus) Run(ctx context.Context) error {
	for {
		err := b.runOnce(ctx)
		if ctx.Err() != nil { return nil }
		obslog.L().Error("relay_subscribe_error", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.resubscribeGap):
		}
	}
}

func (b *Bus) runOnce(ctx context.Context) error {
	ps := b.rdb.PSubscribe(ctx, wildcardTopic)
	defer func() { _ = ps.Close() }()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe %s: %w", wildcardTopic, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	obslog.L().Info("relay_subscribed", zap.String("pattern", wildcardTopic))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok { return fmt.Errorf("subscription channel closed") }
			b.relay(msg)
		}
	}
}

func (b *Bus) relay(msg *redis.Message) {
	gameID, ok := strings.CutPrefix(msg.Channel, topicPrefix)
	if !ok || gameID == "" {
		obslog.L().Warn("relay_unknown_channel", zap.String("channel", msg.Channel))
		return
	}
	var env Envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		obslog.L().Warn("relay_decode_error", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	if env.GameID != "" && env.GameID != gameID {
		obslog.L().Warn("relay_game_mismatch", zap.String("channel", msg.Channel), zap.String("envelope_game_id", env.GameID))
		return
	}
	n := b.reg.BroadcastExcept(gameID, env.Payload, env.OriginSession)
	obslog.L().Debug("relay_deliver", zap.String("game_id", gameID), zap.String("origin_session", env.OriginSession), zap.Int("recipients", n))
}
