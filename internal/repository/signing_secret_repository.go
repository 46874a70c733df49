package repository

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"homeai/internal/model"
)

type SigningSecretRepository struct {
	db *gorm.DB
}

func NewSigningSecretRepository(db *gorm.DB) *SigningSecretRepository {
	return &SigningSecretRepository{db: db}
}

// GetOrCreate returns the persisted signing key, generating one on first run.
func (r *SigningSecretRepository) GetOrCreate() (string, error) {
	var secret model.SigningSecret
	err := r.db.First(&secret).Error
	if err == nil {
		return secret.Key, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("query signing secret failed: %w", err)
	}

	raw := make([]byte, 64)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate signing secret failed: %w", err)
	}
	secret = model.SigningSecret{Key: base64.RawURLEncoding.EncodeToString(raw)}
	if err := r.db.Create(&secret).Error; err != nil {
		return "", fmt.Errorf("store signing secret failed: %w", err)
	}
	return secret.Key, nil
}
