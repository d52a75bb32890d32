package kafka

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
)

// Event types on the message event stream.
const (
	EventMessageCreated = "message.created"
	EventMessageStatus  = "message.status"
)

// MessageEvent is one record on the message event stream. Records are keyed
// by conversation so a consumer sees each conversation in order.
type MessageEvent struct {
	Type           string               `json:"type"`
	MessageID      string               `json:"messageId"`
	ConversationID string               `json:"conversationId"`
	SenderID       string               `json:"senderId,omitempty"`
	ActorID        string               `json:"actorId,omitempty"`
	Content        string               `json:"content,omitempty"`
	Status         domain.MessageStatus `json:"status"`
	OccurredAt     time.Time            `json:"occurredAt"`
}

func NewCreatedEvent(msg *domain.Message) *MessageEvent {
	return &MessageEvent{
		Type:           EventMessageCreated,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Status:         msg.Status,
		OccurredAt:     msg.CreatedAt,
	}
}

// NewStatusEvent records actorID moving a message to status.
func NewStatusEvent(msg *domain.Message, actorID string, status domain.MessageStatus, at time.Time) *MessageEvent {
	return &MessageEvent{
		Type:           EventMessageStatus,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ActorID:        actorID,
		Status:         status,
		OccurredAt:     at,
	}
}

type MessageProducer interface {
	ProduceMessageEvent(ctx context.Context, event *MessageEvent) error
	Close() error
}
