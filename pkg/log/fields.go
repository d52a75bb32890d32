package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Realtime
	FieldClientID       = "client_id"
	FieldConversationID = "conversation_id"
	FieldMessageID      = "message_id"
	FieldEvent          = "event"
	FieldPeerID         = "peer_id"
	FieldChannel        = "channel"

	// Service
	FieldService    = "service"
	FieldInstanceID = "instance_id"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
