package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// GormUserRepository implements UserRepository using GORM.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based user repository.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Create inserts a user record. Identities are issued elsewhere, so the id is
// taken from the caller.
func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	model := domain.UserToModel(user)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return r.handleError(result.Error)
	}

	user.CreatedAt = model.CreatedAt
	return nil
}

// GetByID retrieves a user by ID.
func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var model domain.UserModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// GetByIDs retrieves the users that exist among ids, in no particular order.
func (r *GormUserRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []domain.UserModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}

	users := make([]domain.User, len(models))
	for i, model := range models {
		users[i] = *model.ToDomain()
	}
	return users, nil
}

// List returns every user except excludeID ordered by username.
func (r *GormUserRepository) List(ctx context.Context, excludeID string) ([]domain.User, error) {
	query := r.db.WithContext(ctx).Model(&domain.UserModel{})
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var models []domain.UserModel
	if err := query.Order("username ASC").Order("id ASC").Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list users")
		return nil, err
	}

	users := make([]domain.User, len(models))
	for i, model := range models {
		users[i] = *model.ToDomain()
	}
	return users, nil
}

// SetPresence persists the online flag and, when given, the last seen time.
func (r *GormUserRepository) SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error {
	updates := map[string]interface{}{"is_online": online}
	if lastSeen != nil {
		updates["last_seen"] = *lastSeen
	}

	result := r.db.WithContext(ctx).Model(&domain.UserModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// handleError converts database-specific errors to repository errors.
func (r *GormUserRepository) handleError(err error) error {
	if isUniqueViolation(err) {
		return ErrUserExists
	}
	return err
}
