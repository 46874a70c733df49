package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ConversationActive = "active"
	ConversationClosed = "closed"
)

type Conversation struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Title     string     `gorm:"size:256" json:"title"`
	Status    string     `gorm:"size:16;not null;default:active" json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// SelectedDocuments is the JSON-encoded list of document ids the user
	// pinned for retrieval. Stored as text for portability.
	SelectedDocuments string `gorm:"type:text" json:"-"`
}

// SelectedDocumentIDs returns the parsed document id list; empty on parse error.
func (c *Conversation) SelectedDocumentIDs() []uuid.UUID {
	if c.SelectedDocuments == "" {
		return nil
	}
	var ids []uuid.UUID
	_ = json.Unmarshal([]byte(c.SelectedDocuments), &ids)
	return ids
}

// SetSelectedDocumentIDs stores the document id list as JSON.
func (c *Conversation) SetSelectedDocumentIDs(ids []uuid.UUID) {
	if len(ids) == 0 {
		c.SelectedDocuments = "[]"
		return
	}
	b, _ := json.Marshal(ids)
	c.SelectedDocuments = string(b)
}

// MarshalJSON flattens the selected document ids into the API shape.
func (c Conversation) MarshalJSON() ([]byte, error) {
	ids := c.SelectedDocumentIDs()
	if ids == nil {
		ids = []uuid.UUID{}
	}
	type alias Conversation
	return json.Marshal(struct {
		alias
		SelectedDocumentIDs []uuid.UUID `json:"selected_document_ids"`
	}{
		alias:               alias(c),
		SelectedDocumentIDs: ids,
	})
}
