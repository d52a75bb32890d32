package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/testutil"
)

func TestUserRepository(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedUsers(t, db, "alice", "bob", "carol")
	repo := repository.NewGormUserRepository(db)
	ctx := context.Background()

	t.Run("duplicate create", func(t *testing.T) {
		err := repo.Create(ctx, &domain.User{ID: "alice", Username: "Again"})
		assert.ErrorIs(t, err, repository.ErrUserExists)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "nobody")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
	})

	t.Run("list excludes caller", func(t *testing.T) {
		users, err := repo.List(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "alice", users[0].ID)
		assert.Equal(t, "carol", users[1].ID)
	})

	t.Run("presence", func(t *testing.T) {
		require.NoError(t, repo.SetPresence(ctx, "alice", true, nil))
		u, err := repo.GetByID(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, u.IsOnline)
		assert.Nil(t, u.LastSeen)

		seen := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, repo.SetPresence(ctx, "alice", false, &seen))
		u, err = repo.GetByID(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, u.IsOnline)
		require.NotNil(t, u.LastSeen)
		assert.True(t, seen.Equal(*u.LastSeen))

		assert.ErrorIs(t, repo.SetPresence(ctx, "nobody", true, nil), repository.ErrUserNotFound)
	})
}

func TestConversationRepository_PairIsUnique(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewGormConversationRepository(db)
	ctx := context.Background()

	first, err := domain.NewConversation("alice", "bob")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, first))
	assert.NotEmpty(t, first.ID)

	reversed, err := domain.NewConversation("bob", "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, reversed), repository.ErrConversationExists)

	found, err := repo.FindByPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = repo.FindByPair(ctx, "alice", "carol")
	assert.ErrorIs(t, err, repository.ErrConversationNotFound)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrConversationNotFound)
}

func TestConversationRepository_ListByUserOrdersByActivity(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewGormConversationRepository(db)
	ctx := context.Background()

	ab, _ := domain.NewConversation("alice", "bob")
	ac, _ := domain.NewConversation("alice", "carol")
	bc, _ := domain.NewConversation("bob", "carol")
	for _, c := range []*domain.Conversation{ab, ac, bc} {
		require.NoError(t, repo.Create(ctx, c))
	}

	later := time.Now().UTC().Add(time.Minute)
	require.NoError(t, repo.UpdateLastMessage(ctx, ab.ID, "01HZZZZZZZZZZZZZZZZZZZZZZZ", later))

	convs, err := repo.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, ab.ID, convs[0].ID)
	require.NotNil(t, convs[0].LastMessageID)
	assert.Equal(t, "01HZZZZZZZZZZZZZZZZZZZZZZZ", *convs[0].LastMessageID)
	assert.Equal(t, ac.ID, convs[1].ID)

	assert.ErrorIs(t, repo.UpdateLastMessage(ctx, "missing", "x", later), repository.ErrConversationNotFound)
}

// seedMessages stores n messages numbered from first; callers seeding several
// conversations pass disjoint ranges.
func seedMessages(t *testing.T, repo repository.MessageRepository, convID string, first, n int) []domain.Message {
	t.Helper()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		// Pairs share a timestamp so the id tie-break is exercised.
		msg := domain.Message{
			ID:             fmt.Sprintf("01J%023d", first+i),
			ConversationID: convID,
			SenderID:       "alice",
			Content:        fmt.Sprintf("m%d", i),
			Status:         domain.StatusSent,
			CreatedAt:      base.Add(time.Duration(i/2) * time.Millisecond),
		}
		require.NoError(t, repo.Create(context.Background(), &msg))
		out = append(out, msg)
	}
	return out
}

func TestMessageRepository_ForwardPagination(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewGormMessageRepository(db)
	ctx := context.Background()

	want := seedMessages(t, repo, "c1", 0, 7)
	seedMessages(t, repo, "c2", 100, 2)

	var got []domain.Message
	cursor := ""
	pages := 0
	for {
		page, next, hasMore, err := repo.ListByConversation(ctx, "c1", cursor, 3, repository.DirectionForward)
		require.NoError(t, err)
		got = append(got, page...)
		pages++
		if !hasMore {
			assert.Empty(t, next)
			break
		}
		cursor = next
	}

	assert.Equal(t, 3, pages)
	require.Len(t, got, len(want))
	seen := make(map[string]bool)
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.False(t, seen[got[i].ID], "duplicate %s", got[i].ID)
		seen[got[i].ID] = true
	}
}

func TestMessageRepository_BackwardPagination(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewGormMessageRepository(db)
	ctx := context.Background()

	want := seedMessages(t, repo, "c1", 0, 5)

	page, next, hasMore, err := repo.ListByConversation(ctx, "c1", "", 2, repository.DirectionBackward)
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, page, 2)
	assert.Equal(t, want[3].ID, page[0].ID)
	assert.Equal(t, want[4].ID, page[1].ID)
	assert.Equal(t, want[3].ID, next)

	page, _, hasMore, err = repo.ListByConversation(ctx, "c1", next, 10, repository.DirectionBackward)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, page, 3)
	assert.Equal(t, want[0].ID, page[0].ID)
	assert.Equal(t, want[2].ID, page[2].ID)
}

func TestMessageRepository_InvalidCursor(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewGormMessageRepository(db)

	_, _, _, err := repo.ListByConversation(context.Background(), "c1", "nope", 10, repository.DirectionForward)
	assert.ErrorIs(t, err, repository.ErrInvalidCursor)
}

func TestMessageRepository_AdvanceStatusForwardOnly(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewGormMessageRepository(db)
	ctx := context.Background()

	msgs := seedMessages(t, repo, "c1", 0, 1)
	id := msgs[0].ID

	changed, err := repo.AdvanceStatus(ctx, id, domain.StatusDelivered)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.AdvanceStatus(ctx, id, domain.StatusRead)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.AdvanceStatus(ctx, id, domain.StatusRead)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.AdvanceStatus(ctx, id, domain.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, got.Status)

	_, err = repo.AdvanceStatus(ctx, "missing", domain.StatusRead)
	assert.ErrorIs(t, err, repository.ErrMessageNotFound)
}
