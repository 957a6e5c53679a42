package repository

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/fyerfyer/docchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestSession(t *testing.T, repo ChatRepository, title string) *models.ChatSession {
	session := &models.ChatSession{
		Title: title,
	}
	require.NoError(t, repo.CreateSession(session), "Session creation should succeed")
	require.NotEmpty(t, session.ID, "Session ID should be generated")
	return session
}

func TestChatRepository_CreateAndGetSession(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	session := createTestSession(t, repo, "关于分布式系统的问答")

	saved, err := repo.GetSession(session.ID)
	assert.NoError(t, err, "Should be able to retrieve created session")
	assert.Equal(t, session.Title, saved.Title, "Session title should match")
	assert.False(t, saved.CreatedAt.IsZero(), "CreatedAt should be set")

	// 不存在的会话
	_, err = repo.GetSession("no-such-session")
	assert.ErrorIs(t, err, models.ErrSessionNotFound, "Missing session should return ErrSessionNotFound")
}

func TestChatRepository_ListSessions(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	for i := 0; i < 3; i++ {
		createTestSession(t, repo, fmt.Sprintf("session-%d", i))
	}

	sessions, total, err := repo.ListSessions(0, 10, nil)
	assert.NoError(t, err, "List should succeed")
	assert.Equal(t, int64(3), total, "Total should count all sessions")
	assert.Len(t, sessions, 3, "All sessions should be returned")

	// 标题筛选
	sessions, total, err = repo.ListSessions(0, 10, map[string]interface{}{
		"title": "session-1",
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), total, "Title filter should match single session")
	assert.Equal(t, "session-1", sessions[0].Title)
}

func TestChatRepository_Messages(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewChatRepository()
	session := createTestSession(t, repo, "message-test")

	// 交替写入问答消息
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateMessage(&models.ChatMessage{
			SessionID: session.ID,
			Role:      models.RoleUser,
			Content:   fmt.Sprintf("question %d", i),
		}))

		sources, _ := json.Marshal([]models.Source{
			{FileID: "doc-1", FileName: "doc.pdf", Position: i, Text: "context"},
		})
		require.NoError(t, repo.CreateMessage(&models.ChatMessage{
			SessionID: session.ID,
			Role:      models.RoleAssistant,
			Content:   fmt.Sprintf("answer %d", i),
			Sources:   sources,
		}))
	}

	// 消息按时间升序返回
	messages, total, err := repo.GetMessages(session.ID, 0, 10)
	assert.NoError(t, err, "Message retrieval should succeed")
	assert.Equal(t, int64(6), total, "All messages should be counted")
	require.Len(t, messages, 6)
	assert.Equal(t, models.RoleUser, messages[0].Role, "First message should be the user question")
	assert.Equal(t, "question 0", messages[0].Content)
	assert.Equal(t, "answer 2", messages[5].Content, "Last message should be the latest answer")

	// 会话不存在时报错
	_, _, err = repo.GetMessages("no-such-session", 0, 10)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	// 消息数量统计
	count, err := repo.CountMessages(session.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(6), count, "Message count should match")

	// SessionID为空时报错
	err = repo.CreateMessage(&models.ChatMessage{Role: models.RoleUser, Content: "orphan"})
	assert.Error(t, err, "Message without session ID should fail")
}

func TestChatRepository_GetRecentMessages(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewChatRepository()
	session := createTestSession(t, repo, "recent-test")

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateMessage(&models.ChatMessage{
			SessionID: session.ID,
			Role:      models.RoleUser,
			Content:   fmt.Sprintf("message %d", i),
		}))
	}

	// 取最近3条，应按时间升序排列
	messages, err := repo.GetRecentMessages(session.ID, 3)
	assert.NoError(t, err, "Recent message retrieval should succeed")
	require.Len(t, messages, 3, "Only the most recent messages should be returned")
	assert.Equal(t, "message 2", messages[0].Content, "Oldest of the recent messages should come first")
	assert.Equal(t, "message 4", messages[2].Content, "Latest message should come last")
}

func TestChatRepository_DeleteSession(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewChatRepository()
	session := createTestSession(t, repo, "delete-test")

	require.NoError(t, repo.CreateMessage(&models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   "hello",
	}))

	// 删除会话应同时删除消息
	err := repo.DeleteSession(session.ID)
	assert.NoError(t, err, "Session deletion should succeed")

	_, err = repo.GetSession(session.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound, "Deleted session should not be found")

	count, err := repo.CountMessages(session.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count, "Messages should be deleted with the session")
}
