package chat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"propchat-backend/internal/chat"
	"propchat-backend/internal/database"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

func TestRecorderEnsureCreatesConversation(t *testing.T) {
	db := createDB(t)
	recorder := chat.NewRecorder(db)

	conv, err := recorder.Ensure(context.Background(), "session-1", "user-9", "looking for a house")
	require.NoError(t, err)
	assert.Equal(t, "session-1", conv.SessionID)
	assert.Equal(t, "user-9", conv.UserID.String)
	assert.True(t, conv.UserID.Valid)
	assert.Equal(t, "en", conv.Language)
	assert.False(t, conv.StartedAt.IsZero())
}

func TestRecorderEnsureIsIdempotent(t *testing.T) {
	db := createDB(t)
	recorder := chat.NewRecorder(db)

	first, err := recorder.Ensure(context.Background(), "session-1", "", "hello")
	require.NoError(t, err)

	second, err := recorder.Ensure(context.Background(), "session-1", "", "hello again")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.LastMessageAt.Before(first.LastMessageAt))

	var count int64
	require.NoError(t, db.Model(&database.Conversation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecorderEnsureDetectsSpanish(t *testing.T) {
	db := createDB(t)
	recorder := chat.NewRecorder(db)

	conv, err := recorder.Ensure(context.Background(), "session-es", "", "Hola, busco una casa en la ciudad")
	require.NoError(t, err)
	assert.Equal(t, "es", conv.Language)
}

func TestRecorderSavesMessages(t *testing.T) {
	db := createDB(t)
	recorder := chat.NewRecorder(db)

	conv, err := recorder.Ensure(context.Background(), "session-1", "", "hi")
	require.NoError(t, err)

	require.NoError(t, recorder.SaveUser(context.Background(), conv.ID, "hi"))
	require.NoError(t, recorder.SaveAssistant(context.Background(), conv.ID, "hello, how can I help?"))

	var messages []database.Message
	require.NoError(t, db.Where("conversation_id = ?", conv.ID).Order("created_at ASC").Find(&messages).Error)
	require.Len(t, messages, 2)
	assert.Equal(t, database.RoleUser, messages[0].Role)
	assert.Equal(t, "hi", messages[0].Content)
	assert.Equal(t, database.RoleAssistant, messages[1].Role)
	assert.Equal(t, "hello, how can I help?", messages[1].Content)
}
