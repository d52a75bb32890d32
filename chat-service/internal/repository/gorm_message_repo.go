package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create inserts a message. The id and creation time are assigned by the
// caller so that they match the order messages were accepted in.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if msg.Status == "" {
		msg.Status = domain.StatusSent
	}
	model := domain.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to create message in db")
		return err
	}
	return nil
}

// GetByID retrieves a message by ID.
func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// GetByIDs retrieves the messages that exist among ids.
func (r *GormMessageRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []domain.MessageModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, len(models))
	for i, model := range models {
		msgs[i] = *model.ToDomain()
	}
	return msgs, nil
}

// ListByConversation pages through a conversation ordered by (created_at, id).
// The cursor is the id of the last message of the previous page; pages are
// always returned in ascending order.
func (r *GormMessageRepository) ListByConversation(
	ctx context.Context,
	conversationID string,
	cursor string,
	limit int,
	direction Direction,
) ([]domain.Message, string, bool, error) {
	// Query limit + 1 to determine if there are more results
	query := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("conversation_id = ?", conversationID)

	if cursor != "" {
		var anchor domain.MessageModel
		err := r.db.WithContext(ctx).
			Where("id = ? AND conversation_id = ?", cursor, conversationID).
			Take(&anchor).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, "", false, ErrInvalidCursor
			}
			return nil, "", false, err
		}

		if direction == DirectionBackward {
			query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", anchor.CreatedAt, anchor.CreatedAt, anchor.ID)
		} else {
			query = query.Where("(created_at > ? OR (created_at = ? AND id > ?))", anchor.CreatedAt, anchor.CreatedAt, anchor.ID)
		}
	}

	if direction == DirectionBackward {
		query = query.Order("created_at DESC").Order("id DESC")
	} else {
		query = query.Order("created_at ASC").Order("id ASC")
	}

	var models []domain.MessageModel
	if err := query.Limit(limit + 1).Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldConversationID, conversationID).Msg("failed to list messages")
		return nil, "", false, err
	}

	hasMore := len(models) > limit
	if hasMore {
		models = models[:limit]
	}

	msgs := make([]domain.Message, len(models))
	for i, model := range models {
		msgs[i] = *model.ToDomain()
	}

	// Next cursor is the last row read in query order
	var nextCursor string
	if len(msgs) > 0 {
		nextCursor = msgs[len(msgs)-1].ID
	}

	if direction == DirectionBackward {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}

	if !hasMore {
		nextCursor = ""
	}
	return msgs, nextCursor, hasMore, nil
}

// AdvanceStatus updates the status only from a lower-ranked one, so a
// concurrent or repeated receipt can never move a message backwards.
func (r *GormMessageRepository) AdvanceStatus(ctx context.Context, id string, status domain.MessageStatus) (bool, error) {
	below := status.Below()
	if len(below) == 0 {
		return false, nil
	}

	lower := make([]string, len(below))
	for i, st := range below {
		lower[i] = string(st)
	}

	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ? AND status IN ?", id, lower).
		Update("status", string(status))
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// Nothing changed: either the message is gone or already at/after status.
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
