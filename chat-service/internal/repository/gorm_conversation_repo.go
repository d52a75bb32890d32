package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// GormConversationRepository implements ConversationRepository using GORM.
type GormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository creates a new GORM-based conversation repository.
func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

// Create inserts the conversation. Losing the race on the pair index yields
// ErrConversationExists; the caller re-reads the pair.
func (r *GormConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	conv.ParticipantLow, conv.ParticipantHigh = domain.NormalizePair(conv.ParticipantLow, conv.ParticipantHigh)

	model := domain.ConversationToModel(conv)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return r.handleError(result.Error)
	}

	conv.CreatedAt = model.CreatedAt
	conv.UpdatedAt = model.UpdatedAt

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldConversationID, conv.ID).Msg("conversation created in db")
	return nil
}

// GetByID retrieves a conversation by ID.
func (r *GormConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var model domain.ConversationModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// FindByPair retrieves the conversation between two users in either order.
func (r *GormConversationRepository) FindByPair(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	low, high := domain.NormalizePair(userA, userB)

	var model domain.ConversationModel
	result := r.db.WithContext(ctx).
		Where("participant_low = ? AND participant_high = ?", low, high).
		Take(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListByUser returns the user's conversations, most recent activity first.
func (r *GormConversationRepository) ListByUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	var models []domain.ConversationModel
	result := r.db.WithContext(ctx).
		Where("participant_low = ? OR participant_high = ?", userID, userID).
		Order("updated_at DESC").
		Order("id ASC").
		Find(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Msg("failed to list conversations")
		return nil, result.Error
	}

	convs := make([]domain.Conversation, len(models))
	for i, model := range models {
		convs[i] = *model.ToDomain()
	}
	return convs, nil
}

// UpdateLastMessage moves the last-message pointer and the activity time.
func (r *GormConversationRepository) UpdateLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.ConversationModel{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"last_message_id": messageID,
			"updated_at":      at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// handleError converts database-specific errors to repository errors.
func (r *GormConversationRepository) handleError(err error) error {
	if isUniqueViolation(err) {
		return ErrConversationExists
	}
	return err
}
