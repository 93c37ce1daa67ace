package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleUser      string = "user"
	RoleAssistant string = "assistant"
)

// Conversation is one chat session. SessionID is the caller-supplied natural
// key; rows are created lazily on a session's first turn and never deleted by
// the chat subsystem.
type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID string    `gorm:"uniqueIndex;not null"`
	UserID    sql.NullString

	Language string `gorm:"size:10"`

	StartedAt     time.Time
	LastMessageAt time.Time

	// Set by the platform's feedback flow, not by the orchestrator.
	Resolved           bool `gorm:"default:false"`
	SatisfactionRating sql.NullInt32
	Feedback           sql.NullString

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// Message is one persisted turn. Tool-call and tool-result payloads are
// request-scoped and never stored as rows.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID `gorm:"type:uuid;index;not null"`
	Role           string    `gorm:"size:20;not null"`
	Content        string
	CreatedAt      time.Time
}

// Property is a listing row owned by the wider platform; the chat tools only
// read it.
type Property struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title string    `gorm:"not null"`
	Type  string    `gorm:"size:30;index"`
	City  string    `gorm:"index"`

	Price     float64
	Bedrooms  int
	Bathrooms int
	AreaSqm   float64

	Description string
	Amenities   datatypes.JSON `gorm:"type:jsonb"` // ["pool","garage",…]
	Available   bool           `gorm:"default:true"`

	CreatedAt time.Time
}
