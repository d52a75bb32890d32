package broadcast

import "context"

// Dispatcher delivers frames to rooms, users or everyone, and applies dynamic
// room joins, on every instance that holds the affected connections.
type Dispatcher interface {
	JoinUser(ctx context.Context, conversationID, userID string) error
	ToRoom(ctx context.Context, conversationID string, frame []byte, excludeUserID string) error
	ToUser(ctx context.Context, userID string, frame []byte) error
	ToAll(ctx context.Context, frame []byte) error
}
