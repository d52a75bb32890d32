package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/audit"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/broadcast"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/kafka"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// ReceiptCoordinator moves messages forward through delivered and read and
// tells the author. Only the recipient of a message can acknowledge it.
type ReceiptCoordinator struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	dispatcher    broadcast.Dispatcher
	producer      kafka.MessageProducer
	now           func() time.Time
}

func NewReceiptCoordinator(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	dispatcher broadcast.Dispatcher,
	producer kafka.MessageProducer,
) *ReceiptCoordinator {
	if producer == nil {
		producer = kafka.NoopProducer{}
	}
	return &ReceiptCoordinator{
		conversations: conversations,
		messages:      messages,
		dispatcher:    dispatcher,
		producer:      producer,
		now:           time.Now,
	}
}

// MarkRead reports whether the message moved to read. Reading one's own
// message and reading an already read message are no-ops.
func (r *ReceiptCoordinator) MarkRead(ctx context.Context, readerID, messageID, conversationID string) (bool, error) {
	changed, err := r.advance(ctx, readerID, messageID, conversationID, domain.StatusRead, domain.EventMessageRead)
	if changed {
		audit.LogTarget(ctx, audit.ActionMarkRead, readerID, messageID, "message read")
	}
	return changed, err
}

// MarkDelivered reports whether the message moved from sent to delivered.
func (r *ReceiptCoordinator) MarkDelivered(ctx context.Context, readerID, messageID, conversationID string) (bool, error) {
	return r.advance(ctx, readerID, messageID, conversationID, domain.StatusDelivered, domain.EventMessageDelivered)
}

func (r *ReceiptCoordinator) advance(
	ctx context.Context,
	readerID, messageID, conversationID string,
	status domain.MessageStatus,
	eventType string,
) (bool, error) {
	if messageID == "" || conversationID == "" {
		return false, fmt.Errorf("%w: messageId and conversationId are required", domain.ErrValidation)
	}

	msg, err := r.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return false, fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
		}
		return false, persistenceError("load message", err)
	}
	if msg.ConversationID != conversationID {
		return false, fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
	}

	conv, err := r.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return false, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
		}
		return false, persistenceError("load conversation", err)
	}
	if !conv.HasParticipant(readerID) {
		return false, fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
	}

	if msg.SenderID == readerID {
		return false, nil
	}

	changed, err := r.messages.AdvanceStatus(ctx, messageID, status)
	if err != nil {
		return false, persistenceError("update message status", err)
	}
	if !changed {
		return false, nil
	}

	l := log.Ctx(ctx)
	frame, err := domain.EncodeFrame(eventType, domain.ReceiptPayload{MessageID: messageID, ConversationID: conversationID})
	if err != nil {
		return true, err
	}
	if err := r.dispatcher.ToUser(ctx, msg.SenderID, frame); err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, messageID).Msg("failed to relay receipt")
	}

	if err := r.producer.ProduceMessageEvent(ctx, kafka.NewStatusEvent(msg, readerID, status, r.now().UTC())); err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, messageID).Msg("failed to publish message.status event")
	}
	return true, nil
}
