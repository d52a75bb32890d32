package broadcast

import (
	"context"
	"fmt"

	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

type joinPayload struct {
	UserID string `json:"userId"`
}

// RedisRelay publishes every dispatch on the shared fan-out channel. Each
// instance, this one included, applies it to its own hub through Subscriber,
// so a conversation's room spans all instances.
type RedisRelay struct {
	publisher  pubsub.Publisher
	channel    string
	instanceID string
}

func NewRedisRelay(publisher pubsub.Publisher, channel, instanceID string) *RedisRelay {
	return &RedisRelay{
		publisher:  publisher,
		channel:    channel,
		instanceID: instanceID,
	}
}

func (r *RedisRelay) publish(ctx context.Context, eventType, target, exclude string, payload interface{}) error {
	event, err := pubsub.NewEvent(eventType, target, payload)
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", eventType, err)
	}
	event.Exclude = exclude
	event.Origin = r.instanceID

	if err := r.publisher.Publish(ctx, r.channel, event); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

func (r *RedisRelay) JoinUser(ctx context.Context, conversationID, userID string) error {
	return r.publish(ctx, pubsub.EventJoinUser, conversationID, "", joinPayload{UserID: userID})
}

func (r *RedisRelay) ToRoom(ctx context.Context, conversationID string, frame []byte, excludeUserID string) error {
	return r.publish(ctx, pubsub.EventToRoom, conversationID, excludeUserID, frame)
}

func (r *RedisRelay) ToUser(ctx context.Context, userID string, frame []byte) error {
	return r.publish(ctx, pubsub.EventToUser, userID, "", frame)
}

func (r *RedisRelay) ToAll(ctx context.Context, frame []byte) error {
	return r.publish(ctx, pubsub.EventToAll, "", "", frame)
}
