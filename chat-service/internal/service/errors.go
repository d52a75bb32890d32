package service

import (
	"fmt"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
)

// persistenceError marks a storage failure. The cause is kept in the message
// for logs but not in the chain, so callers classify it as ErrPersistence only.
func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}
