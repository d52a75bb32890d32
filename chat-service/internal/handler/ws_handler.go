package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/audit"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/config"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

type WSHandler struct {
	hub      *hub.Hub
	auth     *service.Authenticator
	service  service.ChatService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, auth *service.Authenticator, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		auth:    auth,
		service: svc,
		wsCfg:   wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(wsCfg.AllowedOrigins),
		},
	}
}

// originChecker allows every origin when none are configured.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWebSocket authenticates the handshake and only then upgrades it; a
// rejected handshake gets a plain 401 and never touches the hub.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	identity, err := h.auth.Authenticate(ctx, middleware.ExtractToken(c.Request))
	if err != nil {
		if errors.Is(err, domain.ErrAuthFailed) {
			audit.LogWithDetail(ctx, audit.ActionAuthFailed, "", err.Error(), "websocket authentication failed")
			response.Unauthorized(c, "authentication failed")
			return
		}
		l.Error().Err(err).Msg("websocket authentication error")
		response.InternalError(c, "authentication unavailable")
		return
	}
	c.Set(log.FieldUserID, identity.UserID)
	c.Set(log.FieldUsername, identity.Username)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	clientID := uuid.New().String()
	// The connection outlives the handshake request.
	connCtx := log.WithFields(context.WithoutCancel(ctx),
		log.FieldClientID, clientID,
		log.FieldUserID, identity.UserID,
	)

	client := hub.NewClient(clientID, h.hub, conn, domain.NewSession(clientID, *identity), h.wsCfg)
	if err := h.service.HandleConnect(connCtx, client); err != nil {
		cl := log.Ctx(connCtx)
		cl.Error().Err(err).Msg("failed to set up connection")
		_ = conn.WriteMessage(websocket.TextMessage, domain.NewErrorFrame(domain.ErrorCode(err), "failed to set up connection"))
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(
		func(c *hub.Client, message []byte) { h.service.HandleEvent(connCtx, c, message) },
		func(c *hub.Client) { h.service.HandleDisconnect(connCtx, c) },
	)
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/chat/ws", h.HandleWebSocket)
}
