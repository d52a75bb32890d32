package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Audit actions for chat-service.
const (
	ActionConnect            = "chat.connect"
	ActionAuthFailed         = "chat.auth_failed"
	ActionCreateConversation = "chat.create_conversation"
	ActionSendMessage        = "chat.send_message"
	ActionMarkRead           = "chat.mark_read"
	ActionDisconnect         = "chat.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// entry starts an audit event on the context logger. Anonymous actors (a
// rejected handshake) carry no user field.
func entry(ctx context.Context, action, userID string) *zerolog.Event {
	l := log.Ctx(ctx)
	ev := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action)
	if userID != "" {
		ev = ev.Str(log.FieldUserID, userID)
	}
	return ev
}

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, userID, msg string) {
	entry(ctx, action, userID).Msg(msg)
}

// LogTarget records an action on a conversation or message.
func LogTarget(ctx context.Context, action, userID, targetID, msg string) {
	entry(ctx, action, userID).Str(FieldTargetID, targetID).Msg(msg)
}

func LogWithDetail(ctx context.Context, action, userID, detail, msg string) {
	entry(ctx, action, userID).Str(FieldDetail, detail).Msg(msg)
}
