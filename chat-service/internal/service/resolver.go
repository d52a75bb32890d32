package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

type resolution struct {
	conv    *domain.Conversation
	created bool
}

// ConversationResolver finds or creates the single conversation of a pair.
// Concurrent resolutions of one pair in this process share one attempt; a
// race with another process is lost on the pair's unique index and settled
// by reading the winner's row.
type ConversationResolver struct {
	repo repository.ConversationRepository
	sf   singleflight.Group
}

func NewConversationResolver(repo repository.ConversationRepository) *ConversationResolver {
	return &ConversationResolver{repo: repo}
}

// Resolve returns the pair's conversation and whether this call created it.
func (r *ConversationResolver) Resolve(ctx context.Context, userA, userB string) (*domain.Conversation, bool, error) {
	candidate, err := domain.NewConversation(userA, userB)
	if err != nil {
		return nil, false, err
	}

	key := domain.PairKey(candidate.ParticipantLow, candidate.ParticipantHigh)
	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		return r.findOrCreate(ctx, candidate)
	})
	if err != nil {
		return nil, false, err
	}

	res, ok := result.(*resolution)
	if !ok {
		return nil, false, fmt.Errorf("unexpected result type from singleflight")
	}
	conv := *res.conv
	return &conv, res.created, nil
}

func (r *ConversationResolver) findOrCreate(ctx context.Context, candidate *domain.Conversation) (*resolution, error) {
	existing, err := r.repo.FindByPair(ctx, candidate.ParticipantLow, candidate.ParticipantHigh)
	if err == nil {
		return &resolution{conv: existing}, nil
	}
	if !errors.Is(err, repository.ErrConversationNotFound) {
		return nil, persistenceError("find conversation", err)
	}

	err = r.repo.Create(ctx, candidate)
	if err == nil {
		return &resolution{conv: candidate, created: true}, nil
	}
	if !errors.Is(err, repository.ErrConversationExists) {
		return nil, persistenceError("create conversation", err)
	}

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldUserID, candidate.ParticipantLow).
		Str(log.FieldPeerID, candidate.ParticipantHigh).
		Msg("conversation created concurrently, re-reading pair")

	existing, err = r.repo.FindByPair(ctx, candidate.ParticipantLow, candidate.ParticipantHigh)
	if err != nil {
		return nil, persistenceError("re-read conversation", err)
	}
	return &resolution{conv: existing}, nil
}

// Find returns the pair's conversation, or nil when there is none.
func (r *ConversationResolver) Find(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	candidate, err := domain.NewConversation(userA, userB)
	if err != nil {
		return nil, err
	}
	conv, err := r.repo.FindByPair(ctx, candidate.ParticipantLow, candidate.ParticipantHigh)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, nil
		}
		return nil, persistenceError("find conversation", err)
	}
	return conv, nil
}
