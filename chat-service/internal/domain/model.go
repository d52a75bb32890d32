package domain

import "time"

// UserModel is the GORM model for users table.
type UserModel struct {
	ID        string `gorm:"type:varchar(64);primaryKey"`
	Username  string `gorm:"type:varchar(100);not null"`
	IsOnline  bool   `gorm:"not null;default:false"`
	LastSeen  *time.Time
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:        m.ID,
		Username:  m.Username,
		IsOnline:  m.IsOnline,
		LastSeen:  m.LastSeen,
		CreatedAt: m.CreatedAt,
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	return &UserModel{
		ID:        u.ID,
		Username:  u.Username,
		IsOnline:  u.IsOnline,
		LastSeen:  u.LastSeen,
		CreatedAt: u.CreatedAt,
	}
}

// ConversationModel is the GORM model for conversations table. The unique
// index on the normalized pair is what keeps one conversation per pair across
// processes.
type ConversationModel struct {
	ID              string    `gorm:"type:varchar(36);primaryKey"`
	ParticipantLow  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_conversations_pair,priority:1"`
	ParticipantHigh string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_conversations_pair,priority:2;index"`
	LastMessageID   *string   `gorm:"type:varchar(26)"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime;index"`
}

// TableName specifies the table name for ConversationModel.
func (ConversationModel) TableName() string {
	return "conversations"
}

// ToDomain converts ConversationModel to domain Conversation.
func (m *ConversationModel) ToDomain() *Conversation {
	return &Conversation{
		ID:              m.ID,
		ParticipantLow:  m.ParticipantLow,
		ParticipantHigh: m.ParticipantHigh,
		LastMessageID:   m.LastMessageID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// ConversationToModel converts domain Conversation to ConversationModel.
func ConversationToModel(c *Conversation) *ConversationModel {
	return &ConversationModel{
		ID:              c.ID,
		ParticipantLow:  c.ParticipantLow,
		ParticipantHigh: c.ParticipantHigh,
		LastMessageID:   c.LastMessageID,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// MessageModel is the GORM model for messages table. History is read by
// (conversation_id, created_at, id).
type MessageModel struct {
	ID             string    `gorm:"type:varchar(26);primaryKey;index:idx_messages_history,priority:3"`
	ConversationID string    `gorm:"type:varchar(36);not null;index:idx_messages_history,priority:1"`
	SenderID       string    `gorm:"type:varchar(64);not null"`
	Content        string    `gorm:"type:text;not null"`
	Status         string    `gorm:"type:varchar(16);not null;default:'sent'"`
	CreatedAt      time.Time `gorm:"not null;index:idx_messages_history,priority:2"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Status:         MessageStatus(m.Status),
		CreatedAt:      m.CreatedAt,
	}
}

// MessageToModel converts domain Message to MessageModel.
func MessageToModel(m *Message) *MessageModel {
	return &MessageModel{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Status:         string(m.Status),
		CreatedAt:      m.CreatedAt,
	}
}
