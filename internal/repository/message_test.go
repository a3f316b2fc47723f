package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webatelier/livechat-server-go/internal/model"
)

func appendTestMessage(t *testing.T, repo MessageRepository, sessionID, body string, isUser, isRead bool) *model.ChatMessage {
	t.Helper()
	msg, err := repo.Append(context.Background(), model.AppendMessageParams{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		SenderName:     "Jamie",
		SenderIdentity: "jamie@example.com",
		Body:           body,
		IsUser:         isUser,
		IsRead:         isRead,
		Meta:           model.NormalMeta("").Value(),
	})
	require.NoError(t, err)
	return msg
}

func TestMessageRepository_ListBySessionOrder(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	sessions := NewSessionRepository(db.DB)
	messages := NewMessageRepository(db.DB)
	ctx := context.Background()

	sess := createTestSession(t, sessions)
	first := appendTestMessage(t, messages, sess.ID, "first", true, false)
	second := appendTestMessage(t, messages, sess.ID, "second", false, true)
	third := appendTestMessage(t, messages, sess.ID, "third", true, false)

	list, err := messages.ListBySession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, third.ID, list[2].ID)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
	}
}

func TestMessageRepository_MarkSessionRead(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	sessions := NewSessionRepository(db.DB)
	messages := NewMessageRepository(db.DB)
	ctx := context.Background()

	sess := createTestSession(t, sessions)
	appendTestMessage(t, messages, sess.ID, "hello", true, false)
	appendTestMessage(t, messages, sess.ID, "anyone there?", true, false)
	// Agent messages are born read and must not be counted.
	appendTestMessage(t, messages, sess.ID, "on it", false, true)

	marked, err := messages.MarkSessionRead(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	// Idempotent: nothing left to flip.
	marked, err = messages.MarkSessionRead(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), marked)

	unread, err := messages.CountUnread(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestMessageRepository_MarkRead(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	sessions := NewSessionRepository(db.DB)
	messages := NewMessageRepository(db.DB)
	ctx := context.Background()

	sess := createTestSession(t, sessions)
	msg := appendTestMessage(t, messages, sess.ID, "hello", true, false)

	require.NoError(t, messages.MarkRead(ctx, msg.ID))

	found, err := messages.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.IsRead)

	missing, err := messages.FindByID(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMessageRepository_UnreadBySession(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	sessions := NewSessionRepository(db.DB)
	messages := NewMessageRepository(db.DB)
	ctx := context.Background()

	sessA := createTestSession(t, sessions)
	sessB := createTestSession(t, sessions)
	appendTestMessage(t, messages, sessA.ID, "one", true, false)
	appendTestMessage(t, messages, sessA.ID, "two", true, false)
	appendTestMessage(t, messages, sessB.ID, "three", true, true)

	counts, err := messages.UnreadBySession(ctx, []string{sessA.ID, sessB.ID})
	require.NoError(t, err)

	byID := make(map[string]int, len(counts))
	for _, c := range counts {
		byID[c.SessionID] = c.Unread
	}
	assert.Equal(t, 2, byID[sessA.ID])
	// Sessions with no unread messages are absent from the result.
	_, ok := byID[sessB.ID]
	assert.False(t, ok)
}

func TestMessageRepository_LastBySession(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	sessions := NewSessionRepository(db.DB)
	messages := NewMessageRepository(db.DB)
	ctx := context.Background()

	sessA := createTestSession(t, sessions)
	sessB := createTestSession(t, sessions)
	appendTestMessage(t, messages, sessA.ID, "older", true, false)
	lastA := appendTestMessage(t, messages, sessA.ID, "newest in A", false, true)
	lastB := appendTestMessage(t, messages, sessB.ID, "only in B", true, false)

	last, err := messages.LastBySession(ctx, []string{sessA.ID, sessB.ID})
	require.NoError(t, err)
	require.Len(t, last, 2)

	byID := make(map[string]model.ChatMessage, len(last))
	for _, m := range last {
		byID[m.SessionID] = m
	}
	assert.Equal(t, lastA.ID, byID[sessA.ID].ID)
	assert.Equal(t, lastB.ID, byID[sessB.ID].ID)
}
