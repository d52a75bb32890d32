package domain

import (
	"fmt"
	"strings"
	"time"
)

// Conversation is a durable two-party thread. Participants are stored as a
// normalized pair so that (a, b) and (b, a) map to the same row.
type Conversation struct {
	ID              string    `json:"id"`
	ParticipantLow  string    `json:"-"`
	ParticipantHigh string    `json:"-"`
	LastMessageID   *string   `json:"lastMessageId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NormalizePair orders two user ids lexicographically.
func NormalizePair(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// PairKey is a stable key for an unordered pair.
func PairKey(a, b string) string {
	low, high := NormalizePair(a, b)
	return low + "|" + high
}

// NewConversation builds an unsaved conversation between two distinct users.
func NewConversation(a, b string) (*Conversation, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return nil, fmt.Errorf("%w: conversation needs two participants", ErrValidation)
	}
	if a == b {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	}
	low, high := NormalizePair(a, b)
	return &Conversation{ParticipantLow: low, ParticipantHigh: high}, nil
}

// Participants returns both participant ids.
func (c *Conversation) Participants() []string {
	return []string{c.ParticipantLow, c.ParticipantHigh}
}

func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ParticipantLow == userID || c.ParticipantHigh == userID)
}

// OtherParticipant returns the participant that is not userID, or "" when
// userID does not participate.
func (c *Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.ParticipantLow:
		return c.ParticipantHigh
	case c.ParticipantHigh:
		return c.ParticipantLow
	default:
		return ""
	}
}

// ConversationSummary is the caller-centric listing entry.
type ConversationSummary struct {
	ID          string    `json:"id"`
	Participant *User     `json:"participant"`
	LastMessage *Message  `json:"lastMessage,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
