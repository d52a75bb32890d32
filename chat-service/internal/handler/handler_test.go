package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/broadcast"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/cache"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/config"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/idgen"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/kafka"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/presence"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/service"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/testutil"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
)

type testServer struct {
	*httptest.Server
	hub           *hub.Hub
	tokens        *jwt.Manager
	conversations repository.ConversationRepository
	pipeline      *service.MessagePipeline
}

func newTestServer(t *testing.T, userIDs ...string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	testutil.SeedUsers(t, db, userIDs...)

	users := repository.NewGormUserRepository(db)
	conversations := repository.NewGormConversationRepository(db)
	messages := repository.NewGormMessageRepository(db)

	h := hub.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	tokens, err := jwt.NewManager("test-secret", time.Hour, "test")
	require.NoError(t, err)

	dispatcher := broadcast.NewLocal(h)
	directory := service.NewUserDirectory(users, cache.NopUserCache{}, time.Minute)
	resolver := service.NewConversationResolver(conversations)
	typing := service.NewTypingCoordinator(conversations, dispatcher)
	pipeline := service.NewMessagePipeline(conversations, messages, directory, resolver, dispatcher, typing, idgen.NewULIDGenerator(), kafka.NoopProducer{}, 500)
	receipts := service.NewReceiptCoordinator(conversations, messages, dispatcher, kafka.NoopProducer{})
	tracker := presence.NewTracker(presence.NewMemoryCounter(), users, dispatcher)
	chat := service.NewChatService(h, conversations, tracker, pipeline, typing, receipts)
	query := service.NewQueryService(users, conversations, messages, resolver, tracker, 50, 100)

	wsCfg := config.WebSocketConfig{
		PingInterval:   time.Minute,
		PongWait:       2 * time.Minute,
		WriteWait:      time.Second,
		MaxMessageSize: 8192,
		SendBuffer:     64,
	}

	r := gin.New()
	r.Use(log.GinMiddleware(log.L()))
	NewHandler(query, middleware.NewAuthMiddleware(tokens)).RegisterRoutes(r)
	NewWSHandler(h, service.NewAuthenticator(tokens, directory), chat, wsCfg).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{
		Server:        srv,
		hub:           h,
		tokens:        tokens,
		conversations: conversations,
		pipeline:      pipeline,
	}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(userID, testutil.DisplayName(userID))
	require.NoError(t, err)
	return token
}

func (s *testServer) get(t *testing.T, path, userID string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set(middleware.AuthHeaderKey, middleware.BearerPrefix+s.token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func (s *testServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/chat/ws?token=" + s.token(t, userID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) domain.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame domain.Frame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == eventType {
			return frame
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	raw, err := domain.EncodeFrame(eventType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_RejectsBeforeUpgrade(t *testing.T) {
	s := newTestServer(t, "alice")
	base := "ws" + strings.TrimPrefix(s.URL, "http") + "/chat/ws"

	ghost, _, err := s.tokens.GenerateToken("ghost", "Ghost")
	require.NoError(t, err)

	for name, url := range map[string]string{
		"no token":     base,
		"bad token":    base + "?token=nope",
		"unknown user": base + "?token=" + ghost,
	} {
		t.Run(name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(url, nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
	assert.Equal(t, 0, s.hub.ClientCount())
}

func TestWebSocket_Conversation(t *testing.T) {
	s := newTestServer(t, "alice", "bob")

	alice := s.dial(t, "alice")
	waitFor(t, func() bool { return s.hub.UserConnections("alice") == 1 })
	bob := s.dial(t, "bob")
	waitFor(t, func() bool { return s.hub.UserConnections("bob") == 1 })

	online := readUntil(t, alice, domain.EventUserOnline)
	var presenceEvent domain.PresenceEvent
	require.NoError(t, json.Unmarshal(online.Data, &presenceEvent))
	assert.Equal(t, "alice", presenceEvent.UserID)

	send(t, alice, domain.EventMessageSend, domain.SendMessagePayload{ReceiverID: "bob", Content: "hello over the wire"})

	var msg domain.Message
	require.NoError(t, json.Unmarshal(readUntil(t, bob, domain.EventMessageNew).Data, &msg))
	assert.Equal(t, "hello over the wire", msg.Content)
	assert.Equal(t, domain.StatusSent, msg.Status)
	assert.Equal(t, "Alice", msg.Sender.Username)
	readUntil(t, alice, domain.EventMessageNew)

	send(t, bob, domain.EventMessageRead, domain.ReceiptPayload{MessageID: msg.ID, ConversationID: msg.ConversationID})
	var receipt domain.ReceiptPayload
	require.NoError(t, json.Unmarshal(readUntil(t, alice, domain.EventMessageRead).Data, &receipt))
	assert.Equal(t, msg.ID, receipt.MessageID)

	send(t, alice, domain.EventMessageSend, domain.SendMessagePayload{ConversationID: msg.ConversationID, Content: ""})
	var errPayload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, alice, domain.EventError).Data, &errPayload))
	assert.Equal(t, domain.ErrCodeValidationFailed, errPayload.Code)

	require.NoError(t, bob.Close())
	offline := readUntil(t, alice, domain.EventUserOffline)
	require.NoError(t, json.Unmarshal(offline.Data, &presenceEvent))
	assert.Equal(t, "bob", presenceEvent.UserID)
	waitFor(t, func() bool { return s.hub.UserConnections("bob") == 0 })
}

func TestHTTP_Health(t *testing.T) {
	s := newTestServer(t)
	status, body := s.get(t, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestHTTP_RequiresAuth(t *testing.T) {
	s := newTestServer(t, "alice")
	status, body := s.get(t, "/api/v1/users", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])
}

func TestHTTP_Messages(t *testing.T) {
	s := newTestServer(t, "alice", "bob", "carol")
	ctx := context.Background()

	conv, err := domain.NewConversation("alice", "bob")
	require.NoError(t, err)
	require.NoError(t, s.conversations.Create(ctx, conv))
	for _, content := range []string{"one", "two", "three"} {
		_, err := s.pipeline.Send(ctx, service.SendRequest{SenderID: "alice", ConversationID: conv.ID, Content: content})
		require.NoError(t, err)
	}

	status, body := s.get(t, "/api/v1/conversations/"+conv.ID+"/messages?limit=2", "bob")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, true, data["hasMore"])
	page := data["messages"].([]interface{})
	require.Len(t, page, 2)
	assert.Equal(t, "one", page[0].(map[string]interface{})["content"])

	status, body = s.get(t, "/api/v1/conversations/"+conv.ID+"/messages?cursor="+data["nextCursor"].(string), "bob")
	require.Equal(t, http.StatusOK, status)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, false, data["hasMore"])
	page = data["messages"].([]interface{})
	require.Len(t, page, 1)
	assert.Equal(t, "three", page[0].(map[string]interface{})["content"])

	status, _ = s.get(t, "/api/v1/conversations/"+conv.ID+"/messages", "carol")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.get(t, "/api/v1/conversations/missing/messages", "bob")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.get(t, "/api/v1/conversations/"+conv.ID+"/messages?limit=-1", "bob")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHTTP_FindConversationNeverCreates(t *testing.T) {
	s := newTestServer(t, "alice", "bob")

	status, body := s.get(t, "/api/v1/conversations/user/bob", "alice")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Nil(t, data["conversationId"])
	assert.Empty(t, data["messages"])

	status, body = s.get(t, "/api/v1/conversations", "alice")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["data"].(map[string]interface{})["conversations"])
}

func TestHTTP_ListUsers(t *testing.T) {
	s := newTestServer(t, "alice", "bob", "carol")
	s.dial(t, "bob")
	waitFor(t, func() bool { return s.hub.UserConnections("bob") == 1 })

	status, body := s.get(t, "/api/v1/users", "alice")
	require.Equal(t, http.StatusOK, status)
	users := body["data"].(map[string]interface{})["users"].([]interface{})
	require.Len(t, users, 2)

	online := map[string]bool{}
	for _, u := range users {
		user := u.(map[string]interface{})
		online[user["id"].(string)] = user["isOnline"].(bool)
	}
	assert.Equal(t, map[string]bool{"bob": true, "carol": false}, online)
}
