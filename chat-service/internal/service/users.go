package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/cache"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// UserDirectory resolves user records for handshakes and message enrichment.
// Concurrent lookups of one user share a single cache/database round trip.
type UserDirectory struct {
	repo     repository.UserRepository
	cache    cache.UserCache
	cacheTTL time.Duration
	sf       singleflight.Group
}

func NewUserDirectory(repo repository.UserRepository, userCache cache.UserCache, cacheTTL time.Duration) *UserDirectory {
	if userCache == nil {
		userCache = cache.NopUserCache{}
	}
	return &UserDirectory{
		repo:     repo,
		cache:    userCache,
		cacheTTL: cacheTTL,
	}
}

// Get returns the user or repository.ErrUserNotFound.
func (d *UserDirectory) Get(ctx context.Context, userID string) (*domain.User, error) {
	cacheKey := d.cache.BuildKeyByID(userID)

	result, err, _ := d.sf.Do(cacheKey, func() (interface{}, error) {
		return d.fetchWithCache(ctx, userID, cacheKey)
	})
	if err != nil {
		return nil, err
	}

	user, ok := result.(*domain.User)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	copied := *user
	return &copied, nil
}

func (d *UserDirectory) fetchWithCache(ctx context.Context, userID, cacheKey string) (*domain.User, error) {
	cached, err := d.cache.Get(ctx, cacheKey)
	if err == nil {
		return &cached.User, nil
	}

	if !errors.Is(err, cache.ErrCacheMiss) {
		// Log error but continue to fetch from DB
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("user cache get error")
	}

	user, err := d.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	go func(user domain.User) {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := d.cache.Set(cacheCtx, cacheKey, &cache.UserCacheResult{User: user}, d.cacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Str(log.FieldUserID, user.ID).Msg("user cache set error")
		}
	}(*user)

	return user, nil
}

// Exists reports whether the user is known.
func (d *UserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	_, err := d.Get(ctx, userID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return false, nil
	}
	return false, err
}
