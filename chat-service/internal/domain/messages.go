package domain

import (
	"encoding/json"
	"time"
)

// WebSocket event types from client.
const (
	EventMessageSend      = "message:send"
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"
	EventMessageRead      = "message:read"
	EventMessageDelivered = "message:delivered"
	EventPing             = "ping"
)

// WebSocket event types to client.
const (
	EventMessageNew  = "message:new"
	EventUserOnline  = "user:online"
	EventUserOffline = "user:offline"
	EventError       = "error"
	EventPong        = "pong"
)

// Error codes
const (
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodePersistenceFailed = "PERSISTENCE_FAILED"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Frame is the envelope of every WebSocket message in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals data into a frame of the given type.
func EncodeFrame(eventType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: eventType, Data: raw})
}

// Client -> Server payloads

type SendMessagePayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	ReceiverID     string `json:"receiverId,omitempty"`
	Content        string `json:"content"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	ReceiverID     string `json:"receiverId,omitempty"`
}

// ReceiptPayload is used for message:read and message:delivered in both
// directions.
type ReceiptPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// Server -> Client payloads

type TypingEvent struct {
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId"`
	Username       string `json:"username,omitempty"`
}

type PresenceEvent struct {
	UserID   string     `json:"userId"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorFrame encodes an error frame. Encoding a fixed struct cannot fail.
func NewErrorFrame(code, message string) []byte {
	frame, _ := EncodeFrame(EventError, ErrorPayload{Code: code, Message: message})
	return frame
}
