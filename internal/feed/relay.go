package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/eduschedule-api/internal/models"
)

// envelope is the wire format on the Redis channel.
type envelope struct {
	Origin string             `json:"origin"`
	Change models.EventChange `json:"change"`
}

// Encode serialises a change published by origin.
func Encode(origin string, change models.EventChange) ([]byte, error) {
	return json.Marshal(envelope{Origin: origin, Change: change})
}

// Decode parses a channel payload.
func Decode(payload []byte) (string, models.EventChange, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", models.EventChange{}, fmt.Errorf("decode feed message: %w", err)
	}
	return env.Origin, env.Change, nil
}

// deliverer is the local side of the relay.
type deliverer interface {
	Deliver(change models.EventChange) error
}

// RedisRelay mirrors changes between instances over a Redis pub/sub channel. Messages that
// originate from this instance are ignored on receipt.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
}

// NewRedisRelay constructs a relay with a random instance origin.
func NewRedisRelay(client *redis.Client, channel string, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, channel: channel, origin: uuid.NewString(), logger: logger}
}

// Origin identifies this instance on the channel.
func (r *RedisRelay) Origin() string {
	return r.origin
}

// Forward publishes change for other instances.
func (r *RedisRelay) Forward(ctx context.Context, change models.EventChange) error {
	payload, err := Encode(r.origin, change)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

// Run consumes the channel until ctx is cancelled, handing remote changes to local.
func (r *RedisRelay) Run(ctx context.Context, local deliverer) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("event feed relay subscribed", zap.String("channel", r.channel), zap.String("origin", r.origin))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handle(local, []byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) handle(local deliverer, payload []byte) {
	origin, change, err := Decode(payload)
	if err != nil {
		r.logger.Warn("drop malformed feed message", zap.Error(err))
		return
	}
	if origin == r.origin {
		return
	}
	if err := local.Deliver(change); err != nil {
		r.logger.Warn("deliver relayed change failed", zap.String("event_id", change.Event.ID), zap.Error(err))
	}
}
