package api

import (
	"net/http"
	"testing"

	"github.com/fyerfyer/docchat/api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createChat(t *testing.T, env *testEnv, title string) model.CreateChatResponse {
	t.Helper()

	w := performJSON(t, env.Router, http.MethodPost, "/api/chats", model.CreateChatRequest{Title: title})
	require.Equal(t, http.StatusOK, w.Code, "Chat creation should succeed: %s", w.Body.String())

	var resp model.CreateChatResponse
	decodeData(t, w, &resp)
	require.NotEmpty(t, resp.SessionID)
	return resp
}

func TestChatAPI_Create(t *testing.T) {
	env := setupTestEnv(t)

	resp := createChat(t, env, "文档讨论")
	assert.Equal(t, "文档讨论", resp.Title)

	// 空标题应生成默认标题
	resp = createChat(t, env, "")
	assert.Contains(t, resp.Title, "新对话")
}

func TestChatAPI_SendMessageAndHistory(t *testing.T) {
	env := setupTestEnv(t, "向量数据库用于相似度检索。")
	seedVectors(t, env)

	chat := createChat(t, env, "消息测试")

	w := performJSON(t, env.Router, http.MethodPost, "/api/chats/"+chat.SessionID+"/messages", model.SendMessageRequest{
		Content: "什么是向量数据库？",
	})
	require.Equal(t, http.StatusOK, w.Code, "Sending a message should succeed: %s", w.Body.String())

	var qaResp model.QAResponse
	decodeData(t, w, &qaResp)
	assert.Equal(t, "向量数据库用于相似度检索。", qaResp.Answer)
	require.NotEmpty(t, qaResp.Sources)

	// 历史应包含用户问题和助手回答，助手消息携带来源
	w = performJSON(t, env.Router, http.MethodGet, "/api/chats/"+chat.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var history model.ChatHistoryResponse
	decodeData(t, w, &history)
	assert.Equal(t, int64(2), history.Total)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "user", history.Messages[0].Role)
	assert.Equal(t, "assistant", history.Messages[1].Role)
	assert.NotEmpty(t, history.Messages[1].Sources, "Assistant message should carry its sources")
}

func TestChatAPI_SendMessageUnknownSession(t *testing.T) {
	env := setupTestEnv(t)

	w := performJSON(t, env.Router, http.MethodPost, "/api/chats/no-such-session/messages", model.SendMessageRequest{
		Content: "问题",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatAPI_List(t *testing.T) {
	env := setupTestEnv(t, "回答。")
	seedVectors(t, env)

	chat := createChat(t, env, "列表测试")
	w := performJSON(t, env.Router, http.MethodPost, "/api/chats/"+chat.SessionID+"/messages", model.SendMessageRequest{
		Content: "问题",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = performJSON(t, env.Router, http.MethodGet, "/api/chats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listResp model.ChatListResponse
	decodeData(t, w, &listResp)
	assert.Equal(t, int64(1), listResp.Total)
	require.Len(t, listResp.Chats, 1)
	assert.Equal(t, chat.SessionID, listResp.Chats[0].SessionID)
	assert.Equal(t, 2, listResp.Chats[0].MessageCount)
}

func TestChatAPI_RenameAndDelete(t *testing.T) {
	env := setupTestEnv(t)

	chat := createChat(t, env, "旧标题")

	w := performJSON(t, env.Router, http.MethodPatch, "/api/chats/"+chat.SessionID, model.RenameChatRequest{
		Title: "新标题",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var renameResp model.RenameChatResponse
	decodeData(t, w, &renameResp)
	assert.Equal(t, "新标题", renameResp.Title)

	w = performJSON(t, env.Router, http.MethodDelete, "/api/chats/"+chat.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var deleteResp model.DeleteChatResponse
	decodeData(t, w, &deleteResp)
	assert.True(t, deleteResp.Success)

	// 删除后历史查询应返回404
	w = performJSON(t, env.Router, http.MethodGet, "/api/chats/"+chat.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatAPI_RenameMissingTitle(t *testing.T) {
	env := setupTestEnv(t)

	chat := createChat(t, env, "标题校验")

	w := performJSON(t, env.Router, http.MethodPatch, "/api/chats/"+chat.SessionID, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "Rename without a title should be rejected")
}
