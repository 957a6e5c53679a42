package api

import (
	"net/http"
	"testing"

	"github.com/fyerfyer/docchat/api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQAAPI_OneOffQuestion(t *testing.T) {
	env := setupTestEnv(t, "向量数据库是存储高维向量的数据库。")
	seedVectors(t, env)

	w := performJSON(t, env.Router, http.MethodPost, "/api/qa", model.QARequest{
		Question: "什么是向量数据库？",
	})
	require.Equal(t, http.StatusOK, w.Code, "QA request should succeed: %s", w.Body.String())

	var resp model.QAResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "向量数据库是存储高维向量的数据库。", resp.Answer)
	assert.Empty(t, resp.SessionID)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "guide.md", resp.Sources[0].FileName)
}

func TestQAAPI_SessionQuestion(t *testing.T) {
	env := setupTestEnv(t, "会话内的回答。")
	seedVectors(t, env)

	// 先创建会话
	w := performJSON(t, env.Router, http.MethodPost, "/api/chats", model.CreateChatRequest{Title: "问答会话"})
	require.Equal(t, http.StatusOK, w.Code)

	var chatResp model.CreateChatResponse
	decodeData(t, w, &chatResp)

	w = performJSON(t, env.Router, http.MethodPost, "/api/qa", model.QARequest{
		Question:  "什么是向量数据库？",
		SessionID: chatResp.SessionID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.QAResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "会话内的回答。", resp.Answer)
	assert.Equal(t, chatResp.SessionID, resp.SessionID)

	// 问答应写入会话历史
	w = performJSON(t, env.Router, http.MethodGet, "/api/chats/"+chatResp.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var history model.ChatHistoryResponse
	decodeData(t, w, &history)
	assert.Equal(t, int64(2), history.Total)
}

func TestQAAPI_MissingQuestion(t *testing.T) {
	env := setupTestEnv(t)

	w := performJSON(t, env.Router, http.MethodPost, "/api/qa", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "Missing question should be rejected")
}

func TestQAAPI_FileFilterRequiresSession(t *testing.T) {
	env := setupTestEnv(t)

	w := performJSON(t, env.Router, http.MethodPost, "/api/qa", model.QARequest{
		Question: "问题",
		FileID:   "file-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "File filter without a session should be rejected")
}

func TestQAAPI_UnknownSession(t *testing.T) {
	env := setupTestEnv(t)
	seedVectors(t, env)

	w := performJSON(t, env.Router, http.MethodPost, "/api/qa", model.QARequest{
		Question:  "问题",
		SessionID: "no-such-session",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
