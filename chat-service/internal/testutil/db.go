// Package testutil holds fixtures shared by the chat-service tests.
package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
)

// NewTestDB creates an in-memory SQLite database with the chat schema.
//
// The pool is pinned to one connection: every new connection to ":memory:"
// would otherwise open a different, empty database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// SeedUsers inserts users with the given ids; the username is the id with
// its first letter upper-cased.
func SeedUsers(t *testing.T, db *gorm.DB, ids ...string) {
	t.Helper()

	repo := repository.NewGormUserRepository(db)
	for _, id := range ids {
		user := &domain.User{ID: id, Username: DisplayName(id), CreatedAt: time.Now()}
		if err := repo.Create(context.Background(), user); err != nil {
			t.Fatalf("failed to seed user %s: %v", id, err)
		}
	}
}

// DisplayName is the username SeedUsers gives id.
func DisplayName(id string) string {
	if id == "" {
		return ""
	}
	return strings.ToUpper(id[:1]) + id[1:]
}
