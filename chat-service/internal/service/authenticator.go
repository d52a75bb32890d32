package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
)

// Authenticator turns a bearer token into the identity of an existing user.
type Authenticator struct {
	tokens middleware.TokenValidator
	users  *UserDirectory
}

func NewAuthenticator(tokens middleware.TokenValidator, users *UserDirectory) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate fails with domain.ErrAuthFailed for a missing, malformed,
// expired or foreign token and for a token whose user no longer exists.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrAuthFailed)
	}

	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthFailed, err)
	}

	userID := claims.Identity()
	user, err := a.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user %s not found", domain.ErrAuthFailed, userID)
		}
		return nil, persistenceError("load user", err)
	}

	username := user.Username
	if username == "" {
		username = claims.Username
	}
	return &domain.Identity{UserID: user.ID, Username: username}, nil
}
