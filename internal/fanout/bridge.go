package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chat-backend/internal/models"
	"chat-backend/internal/observability"
)

const (
	bridgePublishTimeout = 2 * time.Second
	bridgeQueueSize      = 1024
)

// Bridge relays committed events between instances over a Redis channel.
// Local events are delivered by the local engine directly and skipped when they echo back.
type Bridge struct {
	client     *redis.Client
	channel    string
	instanceID string
	engine     *Engine
	outbox     chan []byte
	log        *zap.Logger
}

func NewBridge(client *redis.Client, channel, instanceID string, engine *Engine, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		client:     client,
		channel:    channel,
		instanceID: instanceID,
		engine:     engine,
		outbox:     make(chan []byte, bridgeQueueSize),
		log:        logger.Named("fanout.bridge"),
	}
}

// Publish delivers ev locally and queues it for the other instances. It never
// waits on Redis; when the outbox is full the remote copy is dropped.
func (b *Bridge) Publish(ev models.Event) {
	ev.Origin = b.instanceID
	b.engine.Publish(ev)

	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error("encode event", zap.Error(err))
		return
	}
	select {
	case b.outbox <- payload:
	default:
		observability.IncBridgeRelay("dropped")
		b.log.Warn("bridge outbox full", zap.String("type", string(ev.Type)), zap.String("chat_id", ev.ChatID))
	}
}

// Run forwards queued events and feeds remote events into the local engine until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	b.log.Info("redis bridge subscribed", zap.String("channel", b.channel), zap.String("instance", b.instanceID))

	go b.forward(ctx)

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("discarding malformed event", zap.Error(err))
				continue
			}
			if ev.Origin == b.instanceID {
				continue
			}
			b.engine.Inject(ev)
		}
	}
}

func (b *Bridge) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-b.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, bridgePublishTimeout)
			err := b.client.Publish(pubCtx, b.channel, payload).Err()
			cancel()
			if err != nil {
				observability.IncBridgeRelay("failed")
				b.log.Warn("redis publish failed", zap.Error(err))
				continue
			}
			observability.IncBridgeRelay("sent")
		}
	}
}
