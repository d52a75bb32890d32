package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/kafka"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
)

func TestAuthenticator(t *testing.T) {
	f := newFixture(t, "alice")
	tokens, err := jwt.NewManager("secret", time.Hour, "test")
	require.NoError(t, err)
	auth := NewAuthenticator(tokens, f.directory)
	ctx := context.Background()

	valid, _, err := tokens.GenerateToken("alice", "")
	require.NoError(t, err)
	ghost, _, err := tokens.GenerateToken("ghost", "Ghost")
	require.NoError(t, err)
	expiredTokens, err := jwt.NewManager("secret", -time.Minute, "test")
	require.NoError(t, err)
	expired, _, err := expiredTokens.GenerateToken("alice", "Alice")
	require.NoError(t, err)

	identity, err := auth.Authenticate(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.UserID)
	assert.Equal(t, "Alice", identity.Username)

	for name, token := range map[string]string{
		"missing":      "",
		"garbage":      "abc.def.ghi",
		"expired":      expired,
		"unknown user": ghost,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Authenticate(ctx, token)
			assert.ErrorIs(t, err, domain.ErrAuthFailed)
		})
	}
}

func TestConversationResolver_RaceAcrossProcesses(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	// Separate resolvers do not share a singleflight group, like two
	// instances; the pair index decides the winner.
	const n = 8
	ids := make([]string, n)
	created := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := NewConversationResolver(f.conversations)
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			conv, c, err := r.Resolve(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
				created[i] = c
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, int64(1), countRows(t, f.db, &domain.ConversationModel{}))
}

// losingRepo reports the pair as free and then loses the insert, as a
// resolver does when another instance inserts in between.
type losingRepo struct {
	repository.ConversationRepository
	lookups int
}

func (r *losingRepo) FindByPair(ctx context.Context, a, b string) (*domain.Conversation, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, repository.ErrConversationNotFound
	}
	return r.ConversationRepository.FindByPair(ctx, a, b)
}

func (r *losingRepo) Create(context.Context, *domain.Conversation) error {
	return repository.ErrConversationExists
}

func TestConversationResolver_RecoversFromLostInsert(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	winner := f.seedConversation(t, "alice", "bob")

	r := NewConversationResolver(&losingRepo{ConversationRepository: f.conversations})
	conv, created, err := r.Resolve(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, conv.ID)
}

func TestConversationResolver_RejectsSelfAndFindNeverCreates(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	_, _, err := f.resolver.Resolve(ctx, "alice", "alice")
	assert.ErrorIs(t, err, domain.ErrValidation)

	conv, err := f.resolver.Find(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Nil(t, conv)
	assert.Equal(t, int64(0), countRows(t, f.db, &domain.ConversationModel{}))
}

func TestConversationResolver_FindIgnoresSurroundingWhitespace(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	conv := f.seedConversation(t, "alice", "bob")

	found, err := f.resolver.Find(context.Background(), " bob", "alice ")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, conv.ID, found.ID)
}

func sendMessage(t *testing.T, f *fixture, conv *domain.Conversation, from, content string) *domain.Message {
	t.Helper()
	msg, err := f.pipeline.Send(context.Background(), SendRequest{SenderID: from, ConversationID: conv.ID, Content: content})
	require.NoError(t, err)
	return msg
}

func TestReceiptCoordinator_StatusOnlyMovesForward(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	conv := f.seedConversation(t, "alice", "bob")
	msg := sendMessage(t, f, conv, "alice", "hello")
	<-f.producer.events
	ctx := context.Background()

	changed, err := f.receipts.MarkDelivered(ctx, "bob", msg.ID, conv.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.receipts.MarkRead(ctx, "bob", msg.ID, conv.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.receipts.MarkDelivered(ctx, "bob", msg.ID, conv.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.receipts.MarkRead(ctx, "bob", msg.ID, conv.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := f.messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, stored.Status)

	for _, want := range []domain.MessageStatus{domain.StatusDelivered, domain.StatusRead} {
		event := <-f.producer.events
		assert.Equal(t, kafka.EventMessageStatus, event.Type)
		assert.Equal(t, want, event.Status)
		assert.Equal(t, "bob", event.ActorID)
	}
	assert.Empty(t, f.producer.events)
}

func TestReceiptCoordinator_Guards(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	conv := f.seedConversation(t, "alice", "bob")
	other := f.seedConversation(t, "alice", "carol")
	msg := sendMessage(t, f, conv, "alice", "hello")
	ctx := context.Background()

	changed, err := f.receipts.MarkRead(ctx, "alice", msg.ID, conv.ID)
	require.NoError(t, err)
	assert.False(t, changed, "reading one's own message is a no-op")

	_, err = f.receipts.MarkRead(ctx, "carol", msg.ID, conv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.receipts.MarkRead(ctx, "carol", msg.ID, other.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "message must belong to the named conversation")

	_, err = f.receipts.MarkRead(ctx, "bob", "01HZZZZZZZZZZZZZZZZZZZZZZZ", conv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.receipts.MarkRead(ctx, "bob", msg.ID, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	stored, err := f.messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)
}

func TestUserDirectory_CoalescesAndCopies(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	user, err := f.directory.Get(ctx, "alice")
	require.NoError(t, err)
	user.Username = "mutated"

	again, err := f.directory.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.Username)

	exists, err := f.directory.Exists(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, exists)
}
