package repository

import (
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/database"
)

// Models lists every table owned by the chat service.
func Models() []interface{} {
	return []interface{}{
		&domain.UserModel{},
		&domain.ConversationModel{},
		&domain.MessageModel{},
	}
}

// Migrate creates or updates the chat tables and indexes.
func Migrate(db *gorm.DB) error {
	return database.AutoMigrate(db, Models()...)
}
