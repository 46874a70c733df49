package model

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index:idx_documents_user_checksum,priority:1" json:"user_id"`
	FileName   string    `gorm:"size:256;not null" json:"file_name"`
	FilePath   string    `gorm:"size:512;not null" json:"-"`
	UploadTime time.Time `json:"upload_time"`
	// Size is the stored file size in megabytes.
	Size     float64 `gorm:"not null;default:0" json:"size"`
	Checksum string  `gorm:"size:64;not null;index:idx_documents_user_checksum,priority:2" json:"checksum"`
}
