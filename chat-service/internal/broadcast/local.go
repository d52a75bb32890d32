package broadcast

import (
	"context"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/hub"
)

// Local dispatches straight to this instance's hub.
type Local struct {
	hub *hub.Hub
}

func NewLocal(h *hub.Hub) *Local {
	return &Local{hub: h}
}

func (l *Local) JoinUser(_ context.Context, conversationID, userID string) error {
	l.hub.JoinUser(conversationID, userID)
	return nil
}

func (l *Local) ToRoom(_ context.Context, conversationID string, frame []byte, excludeUserID string) error {
	l.hub.BroadcastToRoom(conversationID, frame, excludeUserID)
	return nil
}

func (l *Local) ToUser(_ context.Context, userID string, frame []byte) error {
	l.hub.BroadcastToUser(userID, frame)
	return nil
}

func (l *Local) ToAll(_ context.Context, frame []byte) error {
	l.hub.BroadcastToAll(frame)
	return nil
}
