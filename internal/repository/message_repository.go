package repository

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"homeai/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListByConversationID(conversationID uuid.UUID, limit int) ([]model.Message, error) {
	if limit > 500 {
		limit = 500
	}

	query := r.db.Where("conversation_id = ?", conversationID).Order("created_at ASC")
	if limit > 0 {
		// Keep the most recent messages but return them oldest first.
		var ids []uuid.UUID
		if err := r.db.Model(&model.Message{}).
			Where("conversation_id = ?", conversationID).
			Order("created_at DESC").Limit(limit).Pluck("id", &ids).Error; err != nil {
			return nil, fmt.Errorf("list recent message ids failed: %w", err)
		}
		query = r.db.Where("id IN ?", ids).Order("created_at ASC")
	}

	var messages []model.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) DeleteByConversationID(conversationID uuid.UUID) error {
	if err := r.db.Where("conversation_id = ?", conversationID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete messages failed: %w", err)
	}
	return nil
}
