package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

// Handler handles the chat REST API.
type Handler struct {
	queryService   service.QueryService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(queryService service.QueryService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		queryService:   queryService,
		authMiddleware: authMiddleware,
	}
}

type historyRequest struct {
	Cursor    string `form:"cursor"`
	Limit     int    `form:"limit" binding:"omitempty,min=1"`
	Direction string `form:"direction" binding:"omitempty,oneof=forward backward"`
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1", h.authMiddleware.RequireAuth())
	{
		conversations := api.Group("/conversations")
		{
			conversations.GET("", h.ListConversations)
			conversations.GET("/user/:userId", h.FindConversation)
			conversations.GET("/:id/messages", h.GetMessages)
		}
		api.GET("/users", h.ListUsers)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetMessages returns one page of a conversation's history.
func (h *Handler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req historyRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind history request")
		response.BadRequest(c, err.Error())
		return
	}

	page, err := h.queryService.GetHistory(ctx, middleware.GetUserID(c), c.Param("id"), service.HistoryQuery{
		Cursor:    req.Cursor,
		Limit:     req.Limit,
		Direction: req.Direction,
	})
	if err != nil {
		h.writeError(c, err, "failed to get messages")
		return
	}

	response.Success(c, page)
}

// FindConversation returns the caller's conversation with another user, or
// an empty result. It never creates one.
func (h *Handler) FindConversation(c *gin.Context) {
	ctx := c.Request.Context()

	lookup, err := h.queryService.FindConversation(ctx, middleware.GetUserID(c), c.Param("userId"))
	if err != nil {
		h.writeError(c, err, "failed to find conversation")
		return
	}

	response.Success(c, lookup)
}

// ListConversations lists the caller's conversations, most recent first.
func (h *Handler) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()

	summaries, err := h.queryService.ListConversations(ctx, middleware.GetUserID(c))
	if err != nil {
		h.writeError(c, err, "failed to list conversations")
		return
	}

	response.Success(c, gin.H{"conversations": summaries})
}

// ListUsers lists everyone but the caller with their presence.
func (h *Handler) ListUsers(c *gin.Context) {
	ctx := c.Request.Context()

	users, err := h.queryService.ListUsers(ctx, middleware.GetUserID(c))
	if err != nil {
		h.writeError(c, err, "failed to list users")
		return
	}

	response.Success(c, gin.H{"users": users})
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(c, "you are not a participant of this conversation")
	case errors.Is(err, domain.ErrBadRequest):
		response.BadRequest(c, err.Error())
	case errors.Is(err, domain.ErrValidation):
		response.ValidationFailed(c, err.Error())
	case errors.Is(err, domain.ErrPersistence):
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(fallback)
		response.Error(c, http.StatusInternalServerError, response.CodePersistenceFailed, fallback)
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(fallback)
		response.InternalError(c, fallback)
	}
}
