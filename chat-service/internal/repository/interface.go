package repository

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationExists   = errors.New("conversation already exists for this pair")
	ErrMessageNotFound      = errors.New("message not found")
	ErrInvalidCursor        = errors.New("invalid cursor")
)

type Direction string

const (
	DirectionForward  Direction = "forward"  // oldest to newest
	DirectionBackward Direction = "backward" // newest to oldest, page returned ascending
)

func ParseDirection(s string) Direction {
	if s == string(DirectionBackward) {
		return DirectionBackward
	}
	return DirectionForward
}

// UserRepository defines the interface for user data persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.User, error)
	List(ctx context.Context, excludeID string) ([]domain.User, error)
	SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error
}

// ConversationRepository defines the interface for conversation persistence.
// Create returns ErrConversationExists when the normalized pair is taken.
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	FindByPair(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	UpdateLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error
}

// MessageRepository defines the interface for message persistence.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Message, error)
	ListByConversation(
		ctx context.Context,
		conversationID string,
		cursor string,
		limit int,
		direction Direction,
	) (messages []domain.Message, nextCursor string, hasMore bool, err error)
	// AdvanceStatus moves the message to status when that is a forward
	// transition and reports whether a row changed.
	AdvanceStatus(ctx context.Context, id string, status domain.MessageStatus) (bool, error)
}
