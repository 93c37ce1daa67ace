package chat

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"propchat-backend/internal/database"
)

// Recorder persists conversation history. All of its operations are
// best-effort from the caller's point of view: a failed write must never
// interrupt an in-flight stream.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Ensure returns the conversation for sessionID, creating it on the session's
// first turn. Concurrent first turns race on the unique session_id index; the
// conflict clause makes the insert idempotent so every caller reads back the
// same row.
func (r *Recorder) Ensure(ctx context.Context, sessionID, userID, firstUserText string) (database.Conversation, error) {
	now := time.Now().UTC()

	conv := database.Conversation{
		ID:            uuid.New(),
		SessionID:     sessionID,
		Language:      detectLanguage(firstUserText),
		StartedAt:     now,
		LastMessageAt: now,
	}
	if userID != "" {
		conv.UserID = sql.NullString{String: userID, Valid: true}
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.Assignments(map[string]any{"last_message_at": now}),
	}).Create(&conv).Error
	if err != nil {
		return database.Conversation{}, fmt.Errorf("unable to upsert conversation: %w", err)
	}

	var existing database.Conversation
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&existing).Error; err != nil {
		return database.Conversation{}, fmt.Errorf("unable to load conversation: %w", err)
	}
	return existing, nil
}

// SaveUser records the inbound user turn before the upstream call starts.
func (r *Recorder) SaveUser(ctx context.Context, conversationID uuid.UUID, content string) error {
	return r.saveMessage(ctx, conversationID, database.RoleUser, content)
}

// SaveAssistant records the assistant reply after a turn completes. It is
// also called with partial text when a stream is cut short, so the stored
// history matches what the client saw.
func (r *Recorder) SaveAssistant(ctx context.Context, conversationID uuid.UUID, content string) error {
	return r.saveMessage(ctx, conversationID, database.RoleAssistant, content)
}

func (r *Recorder) saveMessage(ctx context.Context, conversationID uuid.UUID, role, content string) error {
	msg := database.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("unable to save %s message: %w", role, err)
	}
	return nil
}
