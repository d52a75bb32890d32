package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

type UserCacheResult struct {
	User domain.User `json:"user"`
}

// UserCache caches user records looked up on every handshake and message
// enrichment.
type UserCache interface {
	Get(ctx context.Context, key string) (*UserCacheResult, error)
	Set(ctx context.Context, key string, result *UserCacheResult, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildKeyByID(userID string) string
	Close() error
}
