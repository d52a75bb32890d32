package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/audit"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/broadcast"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/idgen"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/kafka"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/keylock"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

const defaultMaxContentLength = 500

// SendRequest is one message:send from an authenticated connection.
type SendRequest struct {
	SenderID       string
	SenderName     string
	ConversationID string
	ReceiverID     string
	Content        string
}

// MessagePipeline validates, persists and fans out messages. Persisting and
// enqueueing a conversation's messages happen under that conversation's lock,
// so every participant receives them in the order they were stored.
type MessagePipeline struct {
	conversations    repository.ConversationRepository
	messages         repository.MessageRepository
	users            *UserDirectory
	resolver         *ConversationResolver
	dispatcher       broadcast.Dispatcher
	typing           *TypingCoordinator
	ids              idgen.Generator
	producer         kafka.MessageProducer
	locks            *keylock.KeyLock
	maxContentLength int
	now              func() time.Time
}

func NewMessagePipeline(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	users *UserDirectory,
	resolver *ConversationResolver,
	dispatcher broadcast.Dispatcher,
	typing *TypingCoordinator,
	ids idgen.Generator,
	producer kafka.MessageProducer,
	maxContentLength int,
) *MessagePipeline {
	if maxContentLength <= 0 {
		maxContentLength = defaultMaxContentLength
	}
	if producer == nil {
		producer = kafka.NoopProducer{}
	}
	return &MessagePipeline{
		conversations:    conversations,
		messages:         messages,
		users:            users,
		resolver:         resolver,
		dispatcher:       dispatcher,
		typing:           typing,
		ids:              ids,
		producer:         producer,
		locks:            keylock.New(),
		maxContentLength: maxContentLength,
		now:              time.Now,
	}
}

func (p *MessagePipeline) validate(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: message content is empty", domain.ErrValidation)
	}
	if n := utf8.RuneCountInString(content); n > p.maxContentLength {
		return fmt.Errorf("%w: message content is %d characters, limit is %d", domain.ErrValidation, n, p.maxContentLength)
	}
	return nil
}

// Send stores the message and broadcasts message:new to every connection in
// the conversation, the sender's included. A first message between two users
// creates their conversation and joins both users' live connections to it.
// A successful send stops the sender's typing indicator in the conversation.
func (p *MessagePipeline) Send(ctx context.Context, req SendRequest) (*domain.Message, error) {
	if err := p.validate(req.Content); err != nil {
		return nil, err
	}

	conv, err := p.conversationFor(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx = log.WithFields(ctx, log.FieldConversationID, conv.ID)

	msg, err := p.persistAndBroadcast(ctx, conv, req)
	if err != nil {
		return nil, err
	}

	if p.typing != nil {
		p.typing.ClearAfterSend(ctx, conv, req.SenderID)
	}

	l := log.Ctx(ctx)
	if err := p.producer.ProduceMessageEvent(ctx, kafka.NewCreatedEvent(msg)); err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to publish message.created event")
	}
	audit.LogTarget(ctx, audit.ActionSendMessage, req.SenderID, msg.ID, "message sent")

	return msg, nil
}

func (p *MessagePipeline) conversationFor(ctx context.Context, req SendRequest) (*domain.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := p.conversations.GetByID(ctx, req.ConversationID)
		if err != nil {
			if errors.Is(err, repository.ErrConversationNotFound) {
				return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, req.ConversationID)
			}
			return nil, persistenceError("load conversation", err)
		}
		if !conv.HasParticipant(req.SenderID) {
			return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, req.ConversationID)
		}
		return conv, nil
	}

	if req.ReceiverID == "" {
		return nil, fmt.Errorf("%w: receiverId or conversationId is required", domain.ErrValidation)
	}
	if req.ReceiverID == req.SenderID {
		return nil, fmt.Errorf("%w: cannot send a message to yourself", domain.ErrValidation)
	}

	exists, err := p.users.Exists(ctx, req.ReceiverID)
	if err != nil {
		return nil, persistenceError("load receiver", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, req.ReceiverID)
	}

	conv, created, err := p.resolver.Resolve(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		return nil, err
	}
	if created {
		audit.LogTarget(ctx, audit.ActionCreateConversation, req.SenderID, conv.ID, "conversation created")
	}
	// Joins are idempotent. Repeating them on every receiver-addressed send
	// covers a sender that lost the creation race before the winner joined.
	for _, userID := range conv.Participants() {
		if err := p.dispatcher.JoinUser(ctx, conv.ID, userID); err != nil {
			l := log.Ctx(ctx)
			l.Error().Err(err).
				Str(log.FieldConversationID, conv.ID).
				Str(log.FieldUserID, userID).
				Msg("failed to join user to conversation")
		}
	}
	return conv, nil
}

func (p *MessagePipeline) persistAndBroadcast(ctx context.Context, conv *domain.Conversation, req SendRequest) (*domain.Message, error) {
	unlock := p.locks.Lock(conv.ID)
	defer unlock()

	id, err := p.ids.Generate(p.now())
	if err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	// created_at carries the id's own timestamp so (created_at, id) and id
	// order agree even if the wall clock steps back.
	createdAt, err := idgen.Time(id)
	if err != nil {
		return nil, fmt.Errorf("read message id time: %w", err)
	}

	msg := &domain.Message{
		ID:             id,
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		Content:        req.Content,
		Status:         domain.StatusSent,
		CreatedAt:      createdAt.UTC(),
	}
	if err := p.messages.Create(ctx, msg); err != nil {
		return nil, persistenceError("store message", err)
	}

	msg.Sender = &domain.Sender{ID: req.SenderID, Username: p.senderName(ctx, req)}

	l := log.Ctx(ctx)
	if err := p.conversations.UpdateLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		l.Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to update last message pointer")
	}

	frame, err := domain.EncodeFrame(domain.EventMessageNew, msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if err := p.dispatcher.ToRoom(ctx, conv.ID, frame, ""); err != nil {
		// The message is stored; clients recover it from history.
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to broadcast message")
	}

	return msg, nil
}

func (p *MessagePipeline) senderName(ctx context.Context, req SendRequest) string {
	if req.SenderName != "" {
		return req.SenderName
	}
	user, err := p.users.Get(ctx, req.SenderID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, req.SenderID).Msg("failed to load sender name")
		return ""
	}
	return user.Username
}
