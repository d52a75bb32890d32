package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/keylock"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Tracker turns per-connection events into per-user online/offline
// transitions. Only the first connection of a user announces user:online and
// only the last one announces user:offline.
type Tracker struct {
	counter Counter
	users   UserStore
	out     Broadcaster
	locks   *keylock.KeyLock
	now     func() time.Time
}

func NewTracker(counter Counter, users UserStore, out Broadcaster) *Tracker {
	return &Tracker{
		counter: counter,
		users:   users,
		out:     out,
		locks:   keylock.New(),
		now:     time.Now,
	}
}

// Connect records a new connection and reports whether the user just came
// online.
func (t *Tracker) Connect(ctx context.Context, userID string) (bool, error) {
	unlock := t.locks.Lock(userID)
	defer unlock()

	n, err := t.counter.Incr(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("presence connect: %w", err)
	}
	if n != 1 {
		return false, nil
	}

	l := log.Ctx(ctx)
	if err := t.users.SetPresence(ctx, userID, true, nil); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to persist online status")
	}

	frame, err := domain.EncodeFrame(domain.EventUserOnline, domain.PresenceEvent{UserID: userID})
	if err != nil {
		return true, err
	}
	if err := t.out.ToAll(ctx, frame); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to broadcast user online")
	}
	return true, nil
}

// Disconnect records a closed connection and reports whether the user just
// went offline.
func (t *Tracker) Disconnect(ctx context.Context, userID string) (bool, error) {
	unlock := t.locks.Lock(userID)
	defer unlock()

	n, err := t.counter.Decr(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("presence disconnect: %w", err)
	}
	if n != 0 {
		return false, nil
	}
	return true, t.announceOffline(ctx, userID)
}

// ReleaseStale announces users whose connections were dropped by a counter
// sweep rather than by a disconnect. Users that reconnected in the meantime
// are left alone.
func (t *Tracker) ReleaseStale(ctx context.Context, userIDs []string) {
	for _, userID := range userIDs {
		t.releaseStale(ctx, userID)
	}
}

func (t *Tracker) releaseStale(ctx context.Context, userID string) {
	unlock := t.locks.Lock(userID)
	defer unlock()

	l := log.Ctx(ctx)
	n, err := t.counter.Get(ctx, userID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to read presence for stale user")
		return
	}
	if n > 0 {
		return
	}
	if err := t.announceOffline(ctx, userID); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to announce stale user offline")
	}
}

func (t *Tracker) announceOffline(ctx context.Context, userID string) error {
	l := log.Ctx(ctx)
	lastSeen := t.now().UTC()
	if err := t.users.SetPresence(ctx, userID, false, &lastSeen); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to persist offline status")
	}

	frame, err := domain.EncodeFrame(domain.EventUserOffline, domain.PresenceEvent{UserID: userID, LastSeen: &lastSeen})
	if err != nil {
		return err
	}
	if err := t.out.ToAll(ctx, frame); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to broadcast user offline")
	}
	return nil
}

// IsOnline reports whether the user has at least one live connection.
func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := t.counter.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
