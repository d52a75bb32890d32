package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/audit"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/presence"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

type chatService struct {
	hub           *hub.Hub
	conversations repository.ConversationRepository
	presence      *presence.Tracker
	pipeline      *MessagePipeline
	typing        *TypingCoordinator
	receipts      *ReceiptCoordinator
}

func NewChatService(
	h *hub.Hub,
	conversations repository.ConversationRepository,
	tracker *presence.Tracker,
	pipeline *MessagePipeline,
	typing *TypingCoordinator,
	receipts *ReceiptCoordinator,
) ChatService {
	return &chatService{
		hub:           h,
		conversations: conversations,
		presence:      tracker,
		pipeline:      pipeline,
		typing:        typing,
		receipts:      receipts,
	}
}

// HandleConnect registers an authenticated connection, joins it to every
// conversation of its user and counts it towards the user's presence.
func (s *chatService) HandleConnect(ctx context.Context, c *hub.Client) error {
	userID := c.UserID()
	s.hub.Register(c)

	convs, err := s.conversations.ListByUser(ctx, userID)
	if err != nil {
		s.hub.Unregister(c)
		return persistenceError("list conversations", err)
	}
	for _, conv := range convs {
		s.hub.JoinRoom(conv.ID, c)
	}

	l := log.Ctx(ctx)
	if _, err := s.presence.Connect(ctx, userID); err != nil {
		l.Error().Err(err).Msg("presence connect failed")
	} else {
		c.Session.SetPresenceCounted(true)
	}

	l.Info().Int("conversations", len(convs)).Msg("client connected")
	audit.Log(ctx, audit.ActionConnect, userID, "websocket connected")
	return nil
}

// HandleDisconnect removes the connection from every room, stops its typing
// indicators and releases its presence. It is safe to call more than once.
func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	if !s.hub.Unregister(c) {
		return
	}
	userID := c.UserID()

	s.typing.ClearClient(ctx, c.ID)

	l := log.Ctx(ctx)
	if c.Session.PresenceCounted() {
		if _, err := s.presence.Disconnect(ctx, userID); err != nil {
			l.Error().Err(err).Msg("presence disconnect failed")
		}
		c.Session.SetPresenceCounted(false)
	}

	l.Info().Msg("client disconnected")
	audit.Log(ctx, audit.ActionDisconnect, userID, "websocket disconnected")
}

// HandleEvent routes one inbound frame. Failures are answered with an error
// frame on this connection only; the connection stays open.
func (s *chatService) HandleEvent(ctx context.Context, c *hub.Client, raw []byte) {
	var frame domain.Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
		s.replyError(ctx, c, "", fmt.Errorf("%w: invalid message format", domain.ErrBadRequest))
		return
	}

	if err := s.route(ctx, c, frame); err != nil {
		s.replyError(ctx, c, frame.Type, err)
	}
}

func (s *chatService) route(ctx context.Context, c *hub.Client, frame domain.Frame) error {
	identity := c.Session.Identity()

	switch frame.Type {
	case domain.EventMessageSend:
		var p domain.SendMessagePayload
		if err := decodePayload(frame, &p); err != nil {
			return err
		}
		// The message is stored and broadcast even if the sender goes away
		// mid-send.
		sendCtx := context.WithoutCancel(ctx)
		_, err := s.pipeline.Send(sendCtx, SendRequest{
			SenderID:       identity.UserID,
			SenderName:     identity.Username,
			ConversationID: p.ConversationID,
			ReceiverID:     p.ReceiverID,
			Content:        p.Content,
		})
		return err

	case domain.EventTypingStart, domain.EventTypingStop:
		var p domain.TypingPayload
		if err := decodePayload(frame, &p); err != nil {
			return err
		}
		from := Typer{ClientID: c.ID, UserID: identity.UserID, Username: identity.Username}
		if frame.Type == domain.EventTypingStart {
			return s.typing.Start(ctx, from, p.ConversationID, p.ReceiverID)
		}
		return s.typing.Stop(ctx, from, p.ConversationID, p.ReceiverID)

	case domain.EventMessageRead, domain.EventMessageDelivered:
		var p domain.ReceiptPayload
		if err := decodePayload(frame, &p); err != nil {
			return err
		}
		if frame.Type == domain.EventMessageRead {
			_, err := s.receipts.MarkRead(ctx, identity.UserID, p.MessageID, p.ConversationID)
			return err
		}
		_, err := s.receipts.MarkDelivered(ctx, identity.UserID, p.MessageID, p.ConversationID)
		return err

	case domain.EventPing:
		pong, err := domain.EncodeFrame(domain.EventPong, struct{}{})
		if err != nil {
			return err
		}
		c.Reply(pong)
		return nil

	default:
		return fmt.Errorf("%w: unknown event type %q", domain.ErrBadRequest, frame.Type)
	}
}

func decodePayload(frame domain.Frame, v interface{}) error {
	if len(frame.Data) == 0 {
		return fmt.Errorf("%w: %s requires a payload", domain.ErrBadRequest, frame.Type)
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		return fmt.Errorf("%w: invalid %s payload", domain.ErrBadRequest, frame.Type)
	}
	return nil
}

func (s *chatService) replyError(ctx context.Context, c *hub.Client, eventType string, err error) {
	code := domain.ErrorCode(err)

	l := log.Ctx(ctx)
	event := l.Warn()
	if code == domain.ErrCodeInternalError || code == domain.ErrCodePersistenceFailed {
		event = l.Error()
	}
	event.Err(err).Str(log.FieldEvent, eventType).Str("code", code).Msg("event failed")

	c.Reply(domain.NewErrorFrame(code, clientMessage(err)))
}

// clientMessage hides internal causes from clients.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPersistence):
		return "failed to store the change, please retry"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrBadRequest):
		return err.Error()
	default:
		return "internal error"
	}
}
