package model

import "time"

// SigningSecret holds the generated JWT signing key when none is configured,
// so issued tokens survive restarts.
type SigningSecret struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"size:128;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
