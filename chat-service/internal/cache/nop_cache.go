package cache

import (
	"context"
	"fmt"
	"time"
)

// NopUserCache always misses. It is used when Redis is not configured.
type NopUserCache struct{}

func (NopUserCache) Get(context.Context, string) (*UserCacheResult, error) {
	return nil, ErrCacheMiss
}

func (NopUserCache) Set(context.Context, string, *UserCacheResult, time.Duration) error {
	return nil
}

func (NopUserCache) Delete(context.Context, ...string) error { return nil }

func (NopUserCache) BuildKeyByID(userID string) string {
	return fmt.Sprintf("user:id:%s", userID)
}

func (NopUserCache) Close() error { return nil }
