package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"homeai/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(document *model.Document) error {
	if err := r.db.Create(document).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(id uuid.UUID) (*model.Document, error) {
	var document model.Document
	if err := r.db.Where("id = ?", id).First(&document).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query document failed: %w", err)
	}
	return &document, nil
}

func (r *DocumentRepository) GetByIDAndUserID(id, userID uuid.UUID) (*model.Document, error) {
	var document model.Document
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&document).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query document failed: %w", err)
	}
	return &document, nil
}

func (r *DocumentRepository) GetByUserIDAndChecksum(userID uuid.UUID, checksum string) (*model.Document, error) {
	var document model.Document
	if err := r.db.Where("user_id = ? AND checksum = ?", userID, checksum).First(&document).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query document by checksum failed: %w", err)
	}
	return &document, nil
}

func (r *DocumentRepository) ListByUserID(userID uuid.UUID) ([]model.Document, error) {
	var documents []model.Document
	if err := r.db.Where("user_id = ?", userID).Order("upload_time DESC").Find(&documents).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return documents, nil
}

func (r *DocumentRepository) CountByUserIDAndIDs(userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.Model(&model.Document{}).
		Where("user_id = ? AND id IN ?", userID, ids).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count documents failed: %w", err)
	}
	return count, nil
}

func (r *DocumentRepository) DeleteByIDAndUserID(id, userID uuid.UUID) error {
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
