package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/fyerfyer/docchat/api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentAPI_UploadAndStatus(t *testing.T) {
	env := setupTestEnv(t)

	content := "第一段介绍向量数据库。\n\n第二段介绍检索增强生成。"
	w := uploadFile(t, env.Router, "intro.txt", content, "手册,入门")
	require.Equal(t, http.StatusOK, w.Code, "Upload should succeed: %s", w.Body.String())

	var uploadResp model.DocumentUploadResponse
	decodeData(t, w, &uploadResp)
	assert.NotEmpty(t, uploadResp.FileID)
	assert.Equal(t, "intro.txt", uploadResp.FileName)
	assert.Equal(t, "completed", uploadResp.Status, "Synchronous processing should complete the document")

	// 状态查询
	w = performJSON(t, env.Router, http.MethodGet, "/api/documents/"+uploadResp.FileID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var statusResp model.DocumentStatusResponse
	decodeData(t, w, &statusResp)
	assert.Equal(t, "completed", statusResp.Status)
	assert.Equal(t, 2, statusResp.Segments)
	assert.Greater(t, statusResp.CharCount, 0)
}

func TestDocumentAPI_UploadUnsupportedType(t *testing.T) {
	env := setupTestEnv(t)

	w := uploadFile(t, env.Router, "archive.zip", "binary", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "Unsupported file type should be rejected")
}

func TestDocumentAPI_UploadMissingFile(t *testing.T) {
	env := setupTestEnv(t)

	w := performJSON(t, env.Router, http.MethodPost, "/api/documents", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "Upload without a file should be rejected")
}

func TestDocumentAPI_List(t *testing.T) {
	env := setupTestEnv(t)

	for i := 0; i < 3; i++ {
		w := uploadFile(t, env.Router, fmt.Sprintf("doc-%d.txt", i), "一些内容。", "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := performJSON(t, env.Router, http.MethodGet, "/api/documents?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listResp model.DocumentListResponse
	decodeData(t, w, &listResp)
	assert.Equal(t, int64(3), listResp.Total)
	assert.Len(t, listResp.Documents, 2, "Page size should cap the result")

	// 按状态过滤
	w = performJSON(t, env.Router, http.MethodGet, "/api/documents?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &listResp)
	assert.Equal(t, int64(3), listResp.Total)
}

func TestDocumentAPI_Delete(t *testing.T) {
	env := setupTestEnv(t)

	w := uploadFile(t, env.Router, "delete-me.txt", "要删除的内容。", "")
	require.Equal(t, http.StatusOK, w.Code)

	var uploadResp model.DocumentUploadResponse
	decodeData(t, w, &uploadResp)

	w = performJSON(t, env.Router, http.MethodDelete, "/api/documents/"+uploadResp.FileID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var deleteResp model.DocumentDeleteResponse
	decodeData(t, w, &deleteResp)
	assert.True(t, deleteResp.Success)

	// 删除后状态查询应返回404
	w = performJSON(t, env.Router, http.MethodGet, "/api/documents/"+uploadResp.FileID+"/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentAPI_DeleteNotFound(t *testing.T) {
	env := setupTestEnv(t)

	w := performJSON(t, env.Router, http.MethodDelete, "/api/documents/no-such-doc", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentAPI_Reindex(t *testing.T) {
	env := setupTestEnv(t)

	w := uploadFile(t, env.Router, "reindex.txt", "第一段。\n\n第二段。", "")
	require.Equal(t, http.StatusOK, w.Code)

	var uploadResp model.DocumentUploadResponse
	decodeData(t, w, &uploadResp)

	w = performJSON(t, env.Router, http.MethodPost, "/api/documents/"+uploadResp.FileID+"/reindex", nil)
	require.Equal(t, http.StatusOK, w.Code, "Reindex should succeed: %s", w.Body.String())

	var reindexResp model.DocumentReindexResponse
	decodeData(t, w, &reindexResp)
	assert.Equal(t, "completed", reindexResp.Status)

	count, err := env.VectorDB.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count, "Vectors should not be duplicated by reindexing")
}

func TestDocumentAPI_ReindexNotFound(t *testing.T) {
	env := setupTestEnv(t)

	w := performJSON(t, env.Router, http.MethodPost, "/api/documents/no-such-doc/reindex", nil)
	assert.NotEqual(t, http.StatusOK, w.Code, "Reindexing a missing document should fail")
}

func TestHealthCheck(t *testing.T) {
	env := setupTestEnv(t)

	w := performJSON(t, env.Router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
