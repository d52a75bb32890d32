package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversation(t *testing.T) {
	c, err := NewConversation("bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", c.ParticipantLow)
	assert.Equal(t, "bob", c.ParticipantHigh)
	assert.True(t, c.HasParticipant("bob"))
	assert.False(t, c.HasParticipant("carol"))
	assert.Equal(t, "alice", c.OtherParticipant("bob"))
	assert.Equal(t, "", c.OtherParticipant("carol"))

	_, err = NewConversation("alice", "alice")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewConversation("alice", " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPairKey_Unordered(t *testing.T) {
	assert.Equal(t, PairKey("a", "b"), PairKey("b", "a"))
}

func TestMessageStatus_ForwardOnly(t *testing.T) {
	assert.True(t, StatusSent.CanAdvanceTo(StatusDelivered))
	assert.True(t, StatusSent.CanAdvanceTo(StatusRead))
	assert.True(t, StatusDelivered.CanAdvanceTo(StatusRead))
	assert.False(t, StatusRead.CanAdvanceTo(StatusRead))
	assert.False(t, StatusRead.CanAdvanceTo(StatusDelivered))
	assert.False(t, StatusDelivered.CanAdvanceTo(StatusSent))

	assert.Equal(t, []MessageStatus{StatusSent, StatusDelivered}, StatusRead.Below())
	assert.Empty(t, StatusSent.Below())
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeValidationFailed, ErrorCode(fmt.Errorf("x: %w", ErrValidation)))
	assert.Equal(t, ErrCodeNotFound, ErrorCode(ErrNotFound))
	assert.Equal(t, ErrCodeNotFound, ErrorCode(ErrForbidden))
	assert.Equal(t, ErrCodePersistenceFailed, ErrorCode(fmt.Errorf("x: %w", ErrPersistence)))
	assert.Equal(t, ErrCodeBadRequest, ErrorCode(ErrBadRequest))
	assert.Equal(t, ErrCodeInternalError, ErrorCode(errors.New("boom")))
}

func TestEncodeFrame_MessageShape(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	frame, err := EncodeFrame(EventMessageNew, &Message{
		ID:             "01HZX",
		ConversationID: "c1",
		SenderID:       "u1",
		Sender:         &Sender{ID: "u1", Username: "alice"},
		Content:        "hi",
		Status:         StatusSent,
		CreatedAt:      created,
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"type": "message:new",
		"data": {
			"id": "01HZX",
			"conversationId": "c1",
			"senderId": "u1",
			"sender": {"id": "u1", "username": "alice"},
			"content": "hi",
			"status": "sent",
			"createdAt": "2024-01-02T03:04:05Z"
		}
	}`, string(frame))
}

func TestNewErrorFrame(t *testing.T) {
	var f Frame
	require.NoError(t, json.Unmarshal(NewErrorFrame(ErrCodeNotFound, "conversation not found"), &f))
	assert.Equal(t, EventError, f.Type)

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, ErrCodeNotFound, p.Code)
}
