package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fyerfyer/docchat/internal/llm"
	"github.com/fyerfyer/docchat/internal/models"
	"github.com/fyerfyer/docchat/internal/repository"
	"github.com/fyerfyer/docchat/internal/vectordb"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 创建独立的内存数据库并迁移全部模型
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:services_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Test database should open")

	err = db.AutoMigrate(
		&models.Document{},
		&models.DocumentSegment{},
		&models.ChatSession{},
		&models.ChatMessage{},
	)
	require.NoError(t, err, "Migration should succeed")

	return db
}

// newTestVectorDB 创建小维度的内存向量库
func newTestVectorDB(t *testing.T, dimension int) vectordb.Repository {
	t.Helper()

	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:         "memory",
		Dimension:    dimension,
		DistanceType: vectordb.Cosine,
	})
	require.NoError(t, err, "Vector repository creation should succeed")
	t.Cleanup(func() { repo.Close() })

	return repo
}

// fakeEmbedder 测试用嵌入客户端
// 按文本精确匹配返回预设向量，未预设的文本统一落到默认方向
type fakeEmbedder struct {
	mu        sync.Mutex
	dimension int
	vectors   map[string][]float32
	queries   []string // 记录收到的文本，用于断言检索用的是改写后的问题
	batches   []int    // 记录每次批量调用的文本数量
}

func newFakeEmbedder(dimension int) *fakeEmbedder {
	return &fakeEmbedder{
		dimension: dimension,
		vectors:   make(map[string][]float32),
	}
}

func (f *fakeEmbedder) register(text string, vector []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[text] = vector
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, text)
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}

	v := make([]float32, f.dimension)
	v[0] = 1
	return v, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, len(texts))
	f.mu.Unlock()

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

func (f *fakeEmbedder) queryLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *fakeEmbedder) batchLog() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.batches...)
}

// scriptedLLM 测试用大模型客户端
// 按调用顺序返回预设回复，耗尽后返回最后一条
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func newScriptedLLM(replies ...string) *scriptedLLM {
	return &scriptedLLM{replies: replies}
}

func (m *scriptedLLM) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	reply := ""
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

func (m *scriptedLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func (m *scriptedLLM) promptLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// newTestChatService 创建基于内存数据库的对话服务
func newTestChatService(t *testing.T) (*ChatService, repository.ChatRepository) {
	t.Helper()

	repo := repository.NewChatRepositoryWithDB(newTestDB(t))
	return NewChatService(repo), repo
}
