package presence

import (
	"context"
	"time"
)

// Counter holds the number of live connections per user.
type Counter interface {
	Incr(ctx context.Context, userID string) (int64, error)
	Decr(ctx context.Context, userID string) (int64, error)
	Get(ctx context.Context, userID string) (int64, error)
}

// UserStore persists the online flag.
type UserStore interface {
	SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error
}

// Broadcaster sends a frame to every connection.
type Broadcaster interface {
	ToAll(ctx context.Context, frame []byte) error
}
