package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/splittab/splittab-backend/pkg/config"
	"github.com/splittab/splittab-backend/pkg/logger"
)

type redisConn interface {
	Publish(ctx context.Context, channel string, payload any) error
	PSubscribe(ctx context.Context, patterns ...string) (*goredis.PubSub, error)
}

// RedisBroker fans events across instances through Redis pub/sub. Publishes
// go to Redis only; every instance (the publisher included) receives them on
// its pattern subscription and replays them into the local hub, so each
// subscriber sees each event exactly once regardless of which instance
// published it.
type RedisBroker struct {
	hub    *Hub
	conn   redisConn
	prefix string
	logg   *logger.Logger
	pubsub *goredis.PubSub
}

// NewRedisBroker wires the hub to Redis using the configured channel prefix.
func NewRedisBroker(hub *Hub, conn redisConn, cfg config.FeedConfig, logg *logger.Logger) (*RedisBroker, error) {
	if hub == nil {
		return nil, fmt.Errorf("feed hub required")
	}
	if conn == nil {
		return nil, fmt.Errorf("redis connection required")
	}
	prefix := strings.TrimSpace(cfg.ChannelPrefix)
	if prefix == "" {
		prefix = "feed"
	}
	return &RedisBroker{hub: hub, conn: conn, prefix: prefix, logg: logg}, nil
}

// Publish serializes the event onto the bill's Redis channel.
func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	if event.BillID == "" {
		return fmt.Errorf("feed event requires a bill id")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding feed event: %w", err)
	}
	return b.conn.Publish(ctx, b.channelFor(event.BillID), payload)
}

// Subscribe registers on the local hub; the Run loop feeds it.
func (b *RedisBroker) Subscribe(billID string) (<-chan Event, func()) {
	return b.hub.Subscribe(billID)
}

// Run consumes the pattern subscription until the context is canceled,
// replaying each received event into the local hub.
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub, err := b.conn.PSubscribe(ctx, b.prefix+":*")
	if err != nil {
		return fmt.Errorf("subscribing to feed channels: %w", err)
	}
	b.pubsub = pubsub

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return nil
			}
			event, err := decodeEvent(msg.Payload)
			if err != nil {
				if b.logg != nil {
					b.logg.Error(ctx, "discarding malformed feed event", err)
				}
				continue
			}
			b.hub.deliver(event)
		}
	}
}

// Close tears down the Redis subscription and the local hub.
func (b *RedisBroker) Close() error {
	var err error
	if b.pubsub != nil {
		err = multierr.Append(err, b.pubsub.Close())
	}
	b.hub.Close()
	return err
}

func (b *RedisBroker) channelFor(billID string) string {
	return b.prefix + ":" + billID
}

func decodeEvent(payload string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, err
	}
	if event.BillID == "" {
		return Event{}, fmt.Errorf("feed event missing bill id")
	}
	return event, nil
}
