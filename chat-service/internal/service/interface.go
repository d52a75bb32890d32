package service

import (
	"context"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/hub"
)

// ChatService drives one WebSocket connection from registration to close.
type ChatService interface {
	HandleConnect(ctx context.Context, c *hub.Client) error
	HandleEvent(ctx context.Context, c *hub.Client, raw []byte)
	HandleDisconnect(ctx context.Context, c *hub.Client)
}

// QueryService answers the HTTP read endpoints.
type QueryService interface {
	GetHistory(ctx context.Context, userID, conversationID string, q HistoryQuery) (*domain.MessagePage, error)
	FindConversation(ctx context.Context, userID, otherID string) (*ConversationLookup, error)
	ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	ListUsers(ctx context.Context, userID string) ([]domain.User, error)
}

// HistoryQuery selects one page of history.
type HistoryQuery struct {
	Cursor    string
	Limit     int
	Direction string
}

// ConversationLookup is the find-or-empty result between the caller and
// another user. ConversationID is nil when they have never talked.
type ConversationLookup struct {
	ConversationID *string          `json:"conversationId"`
	Messages       []domain.Message `json:"messages"`
	NextCursor     string           `json:"nextCursor,omitempty"`
	HasMore        bool             `json:"hasMore"`
}
