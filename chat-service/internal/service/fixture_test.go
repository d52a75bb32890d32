package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/broadcast"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/cache"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/config"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/idgen"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/kafka"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/presence"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/testutil"
)

// recordingProducer captures message events.
type recordingProducer struct {
	events chan *kafka.MessageEvent
}

func newRecordingProducer() *recordingProducer {
	return &recordingProducer{events: make(chan *kafka.MessageEvent, 256)}
}

func (p *recordingProducer) ProduceMessageEvent(_ context.Context, event *kafka.MessageEvent) error {
	p.events <- event
	return nil
}

func (p *recordingProducer) Close() error { return nil }

type fixture struct {
	db            *gorm.DB
	hub           *hub.Hub
	users         *repository.GormUserRepository
	conversations *repository.GormConversationRepository
	messages      *repository.GormMessageRepository
	directory     *UserDirectory
	resolver      *ConversationResolver
	typing        *TypingCoordinator
	pipeline      *MessagePipeline
	receipts      *ReceiptCoordinator
	tracker       *presence.Tracker
	producer      *recordingProducer
	chat          ChatService
	query         QueryService
}

func newFixture(t *testing.T, userIDs ...string) *fixture {
	t.Helper()
	return newFixtureWithCounter(t, presence.NewMemoryCounter(), userIDs...)
}

func newFixtureWithCounter(t *testing.T, counter presence.Counter, userIDs ...string) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	testutil.SeedUsers(t, db, userIDs...)

	h := hub.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	f := &fixture{
		db:            db,
		hub:           h,
		users:         repository.NewGormUserRepository(db),
		conversations: repository.NewGormConversationRepository(db),
		messages:      repository.NewGormMessageRepository(db),
		producer:      newRecordingProducer(),
	}
	dispatcher := broadcast.NewLocal(h)

	f.directory = NewUserDirectory(f.users, cache.NopUserCache{}, time.Minute)
	f.resolver = NewConversationResolver(f.conversations)
	f.typing = NewTypingCoordinator(f.conversations, dispatcher)
	f.pipeline = NewMessagePipeline(f.conversations, f.messages, f.directory, f.resolver, dispatcher, f.typing, idgen.NewULIDGenerator(), f.producer, 500)
	f.receipts = NewReceiptCoordinator(f.conversations, f.messages, dispatcher, f.producer)
	f.tracker = presence.NewTracker(counter, f.users, dispatcher)
	f.chat = NewChatService(h, f.conversations, f.tracker, f.pipeline, f.typing, f.receipts)
	f.query = NewQueryService(f.users, f.conversations, f.messages, f.resolver, f.tracker, 50, 100)
	return f
}

// connect opens a socketless connection for userID and drains the presence
// frames its arrival produced.
func (f *fixture) connect(t *testing.T, clientID, userID string) *hub.Client {
	t.Helper()
	session := domain.NewSession(clientID, domain.Identity{UserID: userID, Username: testutil.DisplayName(userID)})
	c := hub.NewClient(clientID, f.hub, nil, session, config.WebSocketConfig{SendBuffer: 256})
	require.NoError(t, f.chat.HandleConnect(context.Background(), c))
	return c
}

func (f *fixture) disconnect(c *hub.Client) {
	f.chat.HandleDisconnect(context.Background(), c)
}

// emit feeds a client frame into the service as the read loop would.
func (f *fixture) emit(t *testing.T, c *hub.Client, eventType string, payload interface{}) {
	t.Helper()
	raw, err := domain.EncodeFrame(eventType, payload)
	require.NoError(t, err)
	f.chat.HandleEvent(context.Background(), c, raw)
}

// seedConversation creates the pair's conversation directly in storage.
func (f *fixture) seedConversation(t *testing.T, a, b string) *domain.Conversation {
	t.Helper()
	conv, err := domain.NewConversation(a, b)
	require.NoError(t, err)
	require.NoError(t, f.conversations.Create(context.Background(), conv))
	return conv
}

// drain collects every frame that reaches c within a short quiet period.
func drain(t *testing.T, c *hub.Client) []domain.Frame {
	t.Helper()
	var frames []domain.Frame
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return frames
			}
			var frame domain.Frame
			require.NoError(t, json.Unmarshal(raw, &frame))
			frames = append(frames, frame)
		case <-time.After(100 * time.Millisecond):
			return frames
		}
	}
}

func ofType(frames []domain.Frame, eventType string) []domain.Frame {
	var out []domain.Frame
	for _, frame := range frames {
		if frame.Type == eventType {
			out = append(out, frame)
		}
	}
	return out
}

func decodeData[T any](t *testing.T, frame domain.Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(frame.Data, &v))
	return v
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
