package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fyerfyer/docchat/api/handler"
	"github.com/fyerfyer/docchat/internal/cache"
	"github.com/fyerfyer/docchat/internal/document"
	"github.com/fyerfyer/docchat/internal/llm"
	"github.com/fyerfyer/docchat/internal/models"
	"github.com/fyerfyer/docchat/internal/repository"
	"github.com/fyerfyer/docchat/internal/services"
	"github.com/fyerfyer/docchat/internal/vectordb"
	"github.com/fyerfyer/docchat/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testEnv 测试环境
// 组装一套完整的内存服务栈和路由
type testEnv struct {
	Router    *gin.Engine
	Documents *services.DocumentService
	Chats     *services.ChatService
	QA        *services.QAService
	VectorDB  vectordb.Repository
	Embedder  *fakeEmbedder
	LLM       *scriptedLLM
}

// setupTestEnv 创建测试环境
// replies为大模型按顺序返回的回复
func setupTestEnv(t *testing.T, replies ...string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:api_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Test database should open")
	require.NoError(t, db.AutoMigrate(
		&models.Document{},
		&models.DocumentSegment{},
		&models.ChatSession{},
		&models.ChatMessage{},
	))

	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	vectorDB, err := vectordb.NewRepository(vectordb.Config{
		Type:         "memory",
		Dimension:    4,
		DistanceType: vectordb.Cosine,
	})
	require.NoError(t, err)
	t.Cleanup(func() { vectorDB.Close() })

	splitter, err := document.NewCharacterSplitter(document.SplitterConfig{
		Separator:    "\n\n",
		ChunkSize:    100,
		ChunkOverlap: 0,
	})
	require.NoError(t, err)

	embedder := &fakeEmbedder{dimension: 4, vectors: make(map[string][]float32)}
	llmClient := &scriptedLLM{replies: replies}

	docRepo := repository.NewDocumentRepositoryWithDB(db)
	chatRepo := repository.NewChatRepositoryWithDB(db)

	documents := services.NewDocumentService(store, splitter, embedder, vectorDB, docRepo)
	chats := services.NewChatService(chatRepo)

	answerCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	qa := services.NewQAService(
		embedder,
		vectorDB,
		llm.NewRetrievalChain(llmClient),
		chats,
		answerCache,
	)

	router := SetupRouter(
		handler.NewDocumentHandler(documents),
		handler.NewChatHandler(chats, qa),
		handler.NewQAHandler(qa),
		nil,
	)

	return &testEnv{
		Router:    router,
		Documents: documents,
		Chats:     chats,
		QA:        qa,
		VectorDB:  vectorDB,
		Embedder:  embedder,
		LLM:       llmClient,
	}
}

// performJSON 发起JSON请求
func performJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// uploadFile 通过multipart表单上传文件
func uploadFile(t *testing.T, router *gin.Engine, filename, content, tags string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)

	if tags != "" {
		require.NoError(t, writer.WriteField("tags", tags))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeData 解析通用响应并把data部分反序列化到目标结构
func decodeData(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()

	var resp struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Response should be valid JSON")
	require.Equal(t, 0, resp.Code, "Response code should indicate success: %s", resp.Message)

	if target != nil {
		require.NoError(t, json.Unmarshal(resp.Data, target))
	}
}

// seedVectors 往向量库放一个固定方向的分块
func seedVectors(t *testing.T, env *testEnv) {
	t.Helper()

	require.NoError(t, env.VectorDB.AddBatch([]vectordb.Document{
		{
			ID:        "file-1_0",
			FileID:    "file-1",
			FileName:  "guide.md",
			Position:  0,
			Text:      "向量数据库用于存储和检索高维向量。",
			Vector:    []float32{1, 0, 0, 0},
			CreatedAt: time.Now(),
		},
	}))
}

// fakeEmbedder 测试用嵌入客户端，未预设的文本落到默认方向
type fakeEmbedder struct {
	mu        sync.Mutex
	dimension int
	vectors   map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v, ok := f.vectors[text]; ok {
		return v, nil
	}

	v := make([]float32, f.dimension)
	v[0] = 1
	return v, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (f *fakeEmbedder) Name() string {
	return "fake-embedder"
}

// scriptedLLM 测试用大模型客户端，按顺序返回预设回复
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (m *scriptedLLM) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	reply := "默认回答"
	if len(m.replies) > 0 {
		reply = m.replies[0]
		if len(m.replies) > 1 {
			m.replies = m.replies[1:]
		}
	}

	return &llm.Response{Text: reply, FinishTime: time.Now()}, nil
}

func (m *scriptedLLM) Chat(ctx context.Context, messages []llm.Message, options ...llm.GenerateOption) (*llm.Response, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("empty messages")
	}
	return m.Generate(ctx, messages[len(messages)-1].Content, options...)
}

func (m *scriptedLLM) Name() string {
	return "scripted"
}
