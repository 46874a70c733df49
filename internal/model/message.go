package model

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID  uuid.UUID `gorm:"type:uuid;not null;index" json:"conversation_id"`
	SenderID        uuid.UUID `gorm:"type:uuid;not null;index" json:"sender_id"`
	Content         string    `gorm:"type:text;not null" json:"content"`
	LLMModel        string    `gorm:"size:128" json:"llm_model"`
	TokensGenerated int       `gorm:"not null;default:0" json:"tokens_generated"`
	ResponseTime    float64   `gorm:"not null;default:0" json:"response_time"`
	CreatedAt       time.Time `json:"timestamp"`
}

// FromAssistant reports whether the message was produced by the AI.
func (m *Message) FromAssistant() bool {
	return m.SenderID == AssistantID
}
