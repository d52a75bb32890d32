package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/broadcast"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// typingKey identifies one typing indicator. conversationID is empty while
// the two users have no conversation yet.
type typingKey struct {
	conversationID string
	userID         string
	targetID       string
}

// Typer is the connection a typing signal comes from.
type Typer struct {
	ClientID string
	UserID   string
	Username string
}

// TypingCoordinator relays typing indicators to the other participant and
// remembers which connections hold each one, so a send or the last holder's
// disconnect can stop it without the client asking.
type TypingCoordinator struct {
	conversations repository.ConversationRepository
	dispatcher    broadcast.Dispatcher

	mu     sync.Mutex
	active map[typingKey]map[string]struct{} // key -> client ids
}

func NewTypingCoordinator(conversations repository.ConversationRepository, dispatcher broadcast.Dispatcher) *TypingCoordinator {
	return &TypingCoordinator{
		conversations: conversations,
		dispatcher:    dispatcher,
		active:        make(map[typingKey]map[string]struct{}),
	}
}

func (t *TypingCoordinator) Start(ctx context.Context, from Typer, conversationID, receiverID string) error {
	key, err := t.resolve(ctx, from.UserID, conversationID, receiverID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	holders, ok := t.active[key]
	if !ok {
		holders = make(map[string]struct{})
		t.active[key] = holders
	}
	holders[from.ClientID] = struct{}{}
	t.mu.Unlock()

	return t.relay(ctx, domain.EventTypingStart, key, from.Username)
}

// Stop releases the connection's hold on the indicator. The stop is relayed
// only once no other connection of the user is still typing.
func (t *TypingCoordinator) Stop(ctx context.Context, from Typer, conversationID, receiverID string) error {
	key, err := t.resolve(ctx, from.UserID, conversationID, receiverID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	released := t.releaseLocked(key, from.ClientID)
	t.mu.Unlock()

	if !released {
		return nil
	}
	return t.relay(ctx, domain.EventTypingStop, key, "")
}

// ClearAfterSend stops whatever typing indicator userID had towards the
// conversation, including one started before the conversation existed.
func (t *TypingCoordinator) ClearAfterSend(ctx context.Context, conv *domain.Conversation, userID string) {
	other := conv.OtherParticipant(userID)

	t.mu.Lock()
	var stopped []typingKey
	for key := range t.active {
		if key.userID != userID || key.targetID != other {
			continue
		}
		if key.conversationID == conv.ID || key.conversationID == "" {
			delete(t.active, key)
			stopped = append(stopped, key)
		}
	}
	t.mu.Unlock()

	t.stopAll(ctx, stopped)
}

// ClearClient drops the connection from every indicator it holds and stops
// those it was the last holder of.
func (t *TypingCoordinator) ClearClient(ctx context.Context, clientID string) {
	t.mu.Lock()
	var stopped []typingKey
	for key, holders := range t.active {
		if _, ok := holders[clientID]; !ok {
			continue
		}
		if t.releaseLocked(key, clientID) {
			stopped = append(stopped, key)
		}
	}
	t.mu.Unlock()

	t.stopAll(ctx, stopped)
}

// releaseLocked removes clientID from the key's holders and reports whether
// the indicator is now off. A key nobody holds counts as off.
func (t *TypingCoordinator) releaseLocked(key typingKey, clientID string) bool {
	holders, ok := t.active[key]
	if !ok {
		return true
	}
	delete(holders, clientID)
	if len(holders) > 0 {
		return false
	}
	delete(t.active, key)
	return true
}

// ActiveCount returns the number of indicators currently on.
func (t *TypingCoordinator) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

func (t *TypingCoordinator) stopAll(ctx context.Context, keys []typingKey) {
	for _, key := range keys {
		if err := t.relay(ctx, domain.EventTypingStop, key, ""); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).
				Str(log.FieldConversationID, key.conversationID).
				Str(log.FieldUserID, key.userID).
				Msg("failed to relay implicit typing stop")
		}
	}
}

func (t *TypingCoordinator) resolve(ctx context.Context, userID, conversationID, receiverID string) (typingKey, error) {
	if conversationID == "" {
		if receiverID == "" {
			return typingKey{}, fmt.Errorf("%w: conversationId or receiverId is required", domain.ErrValidation)
		}
		if receiverID == userID {
			return typingKey{}, fmt.Errorf("%w: cannot type to yourself", domain.ErrValidation)
		}
		return typingKey{userID: userID, targetID: receiverID}, nil
	}

	conv, err := t.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return typingKey{}, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
		}
		return typingKey{}, persistenceError("load conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return typingKey{}, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
	}
	return typingKey{conversationID: conv.ID, userID: userID, targetID: conv.OtherParticipant(userID)}, nil
}

func (t *TypingCoordinator) relay(ctx context.Context, eventType string, key typingKey, username string) error {
	frame, err := domain.EncodeFrame(eventType, domain.TypingEvent{
		ConversationID: key.conversationID,
		UserID:         key.userID,
		Username:       username,
	})
	if err != nil {
		return err
	}
	return t.dispatcher.ToUser(ctx, key.targetID, frame)
}
