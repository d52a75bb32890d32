package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/presence"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

type queryServiceImpl struct {
	users         repository.UserRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	resolver      *ConversationResolver
	presence      *presence.Tracker
	pageSize      int
	maxPageSize   int
}

func NewQueryService(
	users repository.UserRepository,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	resolver *ConversationResolver,
	tracker *presence.Tracker,
	pageSize, maxPageSize int,
) QueryService {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = 50
	}
	return &queryServiceImpl{
		users:         users,
		conversations: conversations,
		messages:      messages,
		resolver:      resolver,
		presence:      tracker,
		pageSize:      pageSize,
		maxPageSize:   maxPageSize,
	}
}

// GetHistory returns one page of a conversation the caller takes part in.
// An unknown conversation is ErrNotFound, someone else's is ErrForbidden.
func (s *queryServiceImpl) GetHistory(ctx context.Context, userID, conversationID string, q HistoryQuery) (*domain.MessagePage, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
		}
		return nil, persistenceError("load conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: not a participant of conversation %s", domain.ErrForbidden, conversationID)
	}

	return s.page(ctx, conv, q.Cursor, s.clampLimit(q.Limit), repository.ParseDirection(q.Direction))
}

// FindConversation returns the latest page between the caller and otherID
// without creating anything.
func (s *queryServiceImpl) FindConversation(ctx context.Context, userID, otherID string) (*ConversationLookup, error) {
	conv, err := s.resolver.Find(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return &ConversationLookup{Messages: []domain.Message{}}, nil
	}

	page, err := s.page(ctx, conv, "", s.pageSize, repository.DirectionBackward)
	if err != nil {
		return nil, err
	}
	id := conv.ID
	return &ConversationLookup{
		ConversationID: &id,
		Messages:       page.Messages,
		NextCursor:     page.NextCursor,
		HasMore:        page.HasMore,
	}, nil
}

// ListConversations returns the caller's conversations, most recent first,
// each with the other participant and the last message.
func (s *queryServiceImpl) ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	convs, err := s.conversations.ListByUser(ctx, userID)
	if err != nil {
		return nil, persistenceError("list conversations", err)
	}

	peerIDs := make([]string, 0, len(convs))
	lastIDs := make([]string, 0, len(convs))
	for _, conv := range convs {
		peerIDs = append(peerIDs, conv.OtherParticipant(userID))
		if conv.LastMessageID != nil {
			lastIDs = append(lastIDs, *conv.LastMessageID)
		}
	}

	peers, err := s.usersByID(ctx, append(peerIDs, userID))
	if err != nil {
		return nil, err
	}
	lastMessages, err := s.messages.GetByIDs(ctx, lastIDs)
	if err != nil {
		return nil, persistenceError("load last messages", err)
	}
	lastByID := make(map[string]*domain.Message, len(lastMessages))
	for i := range lastMessages {
		msg := &lastMessages[i]
		msg.Sender = senderFor(peers, msg.SenderID)
		lastByID[msg.ID] = msg
	}

	summaries := make([]domain.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary := domain.ConversationSummary{ID: conv.ID, UpdatedAt: conv.UpdatedAt}
		if peer, ok := peers[conv.OtherParticipant(userID)]; ok {
			p := peer
			summary.Participant = &p
		}
		if conv.LastMessageID != nil {
			summary.LastMessage = lastByID[*conv.LastMessageID]
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ListUsers returns everyone except the caller with live presence.
func (s *queryServiceImpl) ListUsers(ctx context.Context, userID string) ([]domain.User, error) {
	users, err := s.users.List(ctx, userID)
	if err != nil {
		return nil, persistenceError("list users", err)
	}
	for i := range users {
		s.applyPresence(ctx, &users[i])
	}
	return users, nil
}

func (s *queryServiceImpl) page(
	ctx context.Context,
	conv *domain.Conversation,
	cursor string,
	limit int,
	direction repository.Direction,
) (*domain.MessagePage, error) {
	msgs, nextCursor, hasMore, err := s.messages.ListByConversation(ctx, conv.ID, cursor, limit, direction)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			return nil, fmt.Errorf("%w: unknown cursor %q", domain.ErrBadRequest, cursor)
		}
		return nil, persistenceError("list messages", err)
	}

	users, err := s.usersByID(ctx, conv.Participants())
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].Sender = senderFor(users, msgs[i].SenderID)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}

	return &domain.MessagePage{Messages: msgs, NextCursor: nextCursor, HasMore: hasMore}, nil
}

func (s *queryServiceImpl) usersByID(ctx context.Context, ids []string) (map[string]domain.User, error) {
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, persistenceError("load users", err)
	}
	byID := make(map[string]domain.User, len(users))
	for _, user := range users {
		s.applyPresence(ctx, &user)
		byID[user.ID] = user
	}
	return byID, nil
}

// applyPresence prefers the live connection count over the stored flag.
func (s *queryServiceImpl) applyPresence(ctx context.Context, user *domain.User) {
	if s.presence == nil {
		return
	}
	online, err := s.presence.IsOnline(ctx, user.ID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, user.ID).Msg("presence lookup failed, using stored flag")
		return
	}
	user.IsOnline = online
}

func (s *queryServiceImpl) clampLimit(limit int) int {
	if limit <= 0 {
		return s.pageSize
	}
	if limit > s.maxPageSize {
		return s.maxPageSize
	}
	return limit
}

func senderFor(users map[string]domain.User, id string) *domain.Sender {
	sender := &domain.Sender{ID: id}
	if user, ok := users[id]; ok {
		sender.Username = user.Username
	}
	return sender
}
