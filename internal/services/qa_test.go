package services

import (
	"context"
	"testing"
	"time"

	"github.com/fyerfyer/docchat/internal/cache"
	"github.com/fyerfyer/docchat/internal/llm"
	"github.com/fyerfyer/docchat/internal/models"
	"github.com/fyerfyer/docchat/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestQAService 组装问答服务及其全部测试替身
func newTestQAService(t *testing.T, client llm.Client) (*QAService, *ChatService, *fakeEmbedder, vectordb.Repository) {
	t.Helper()

	embedder := newFakeEmbedder(4)
	vectorDB := newTestVectorDB(t, 4)
	chatService, _ := newTestChatService(t)

	answerCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	chain := llm.NewRetrievalChain(client)
	qa := NewQAService(embedder, vectorDB, chain, chatService, answerCache)

	return qa, chatService, embedder, vectorDB
}

// seedVectorDocs 往向量库里放两个方向正交的分块
func seedVectorDocs(t *testing.T, vectorDB vectordb.Repository) {
	t.Helper()

	docs := []vectordb.Document{
		{
			ID:        "file-1_0",
			FileID:    "file-1",
			FileName:  "vector-db.md",
			Position:  0,
			Text:      "向量数据库用于存储和检索高维向量。",
			Vector:    []float32{1, 0, 0, 0},
			CreatedAt: time.Now(),
		},
		{
			ID:        "file-2_0",
			FileID:    "file-2",
			FileName:  "cooking.md",
			Position:  0,
			Text:      "先把水烧开，再下面条。",
			Vector:    []float32{0, 1, 0, 0},
			CreatedAt: time.Now(),
		},
	}
	require.NoError(t, vectorDB.AddBatch(docs))
}

func TestQAService_Ask_FirstQuestion(t *testing.T) {
	client := newScriptedLLM("向量数据库是存储高维向量并支持相似度检索的数据库。")
	qa, chatService, embedder, vectorDB := newTestQAService(t, client)
	seedVectorDocs(t, vectorDB)

	ctx := context.Background()
	session, err := chatService.CreateChat(ctx, "问答测试")
	require.NoError(t, err)

	question := "什么是向量数据库？"
	embedder.register(question, []float32{1, 0, 0, 0})

	resp, err := qa.Ask(ctx, session.ID, question)
	require.NoError(t, err, "Ask should succeed")
	assert.Equal(t, "向量数据库是存储高维向量并支持相似度检索的数据库。", resp.Answer)
	// 没有历史时问题不改写，模型只被调用一次
	assert.Equal(t, question, resp.Question)
	assert.Equal(t, 1, client.callCount(), "Only the answer step should call the model")

	// 检索结果按相似度排序，最相关的分块在前
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "file-1", resp.Sources[0].FileID)

	// 问答应写入会话历史
	messages, total, err := chatService.GetChatMessages(ctx, session.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
}

func TestQAService_Ask_FollowUpUsesCondensedQuestion(t *testing.T) {
	condensed := "向量数据库支持哪些距离度量？"
	client := newScriptedLLM(condensed, "支持余弦相似度、点积和欧氏距离。")
	qa, chatService, embedder, vectorDB := newTestQAService(t, client)
	seedVectorDocs(t, vectorDB)

	ctx := context.Background()
	session, err := chatService.CreateChat(ctx, "追问测试")
	require.NoError(t, err)

	// 预置一轮历史，让追问触发问题改写
	_, err = chatService.AddMessage(ctx, session.ID, models.RoleUser, "什么是向量数据库？")
	require.NoError(t, err)
	_, err = chatService.SaveAnswerWithSources(ctx, session.ID, "向量数据库用于存储向量。", nil)
	require.NoError(t, err)

	embedder.register(condensed, []float32{1, 0, 0, 0})

	resp, err := qa.Ask(ctx, session.ID, "它支持哪些距离度量？")
	require.NoError(t, err)
	assert.Equal(t, condensed, resp.Question, "Response should carry the condensed question")
	assert.Equal(t, 2, client.callCount(), "Condense and answer should each call the model once")

	// 检索用的是改写后的独立问题，而不是原始追问
	queries := embedder.queryLog()
	require.NotEmpty(t, queries)
	assert.Equal(t, condensed, queries[len(queries)-1])
}

func TestQAService_Ask_NoResults(t *testing.T) {
	client := newScriptedLLM("不该被调用的回答")
	qa, chatService, _, _ := newTestQAService(t, client)

	ctx := context.Background()
	session, err := chatService.CreateChat(ctx, "空库测试")
	require.NoError(t, err)

	resp, err := qa.Ask(ctx, session.ID, "什么是向量数据库？")
	require.NoError(t, err)
	assert.Equal(t, NoAnswerMessage, resp.Answer, "Empty retrieval should return the fixed no-answer message")
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 0, client.callCount(), "Model should not be called without retrieved context")
}

func TestQAService_Ask_CachedAnswer(t *testing.T) {
	client := newScriptedLLM("缓存测试回答。")
	qa, chatService, embedder, vectorDB := newTestQAService(t, client)
	seedVectorDocs(t, vectorDB)

	ctx := context.Background()
	session, err := chatService.CreateChat(ctx, "缓存测试")
	require.NoError(t, err)

	question := "什么是向量数据库？"
	embedder.register(question, []float32{1, 0, 0, 0})

	first, err := qa.Ask(ctx, session.ID, question)
	require.NoError(t, err)
	calls := client.callCount()

	second, err := qa.Ask(ctx, session.ID, question)
	require.NoError(t, err)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, calls, client.callCount(), "Repeated question should be served from cache")

	// 缓存命中的问答同样要追加一条用户消息和一条助手消息
	_, total, err := chatService.GetChatMessages(ctx, session.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total, "Each ask should append exactly one user and one assistant message")
}

func TestQAService_AskWithFile(t *testing.T) {
	client := newScriptedLLM("指定文件中的回答。")
	qa, chatService, embedder, vectorDB := newTestQAService(t, client)
	seedVectorDocs(t, vectorDB)

	ctx := context.Background()
	session, err := chatService.CreateChat(ctx, "文件过滤测试")
	require.NoError(t, err)

	question := "怎么下面条？"
	embedder.register(question, []float32{1, 0, 0, 0})

	// 查询向量指向file-1，但过滤条件限定file-2
	resp, err := qa.AskWithFile(ctx, session.ID, question, "file-2")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Sources)
	for _, src := range resp.Sources {
		assert.Equal(t, "file-2", src.FileID, "Sources should come only from the requested file")
	}

	_, err = qa.AskWithFile(ctx, session.ID, question, "")
	assert.Error(t, err, "Empty file ID should be rejected")
}

func TestQAService_AnswerOnce(t *testing.T) {
	client := newScriptedLLM("一次性问答的回答。")
	qa, _, embedder, vectorDB := newTestQAService(t, client)
	seedVectorDocs(t, vectorDB)

	question := "什么是向量数据库？"
	embedder.register(question, []float32{1, 0, 0, 0})

	resp, err := qa.AnswerOnce(context.Background(), question)
	require.NoError(t, err, "One-off answering should succeed")
	assert.Equal(t, "一次性问答的回答。", resp.Answer)
	assert.NotEmpty(t, resp.Sources)
}

func TestQAService_Ask_Validation(t *testing.T) {
	client := newScriptedLLM("回答")
	qa, chatService, _, _ := newTestQAService(t, client)

	ctx := context.Background()
	session, err := chatService.CreateChat(ctx, "校验测试")
	require.NoError(t, err)

	_, err = qa.Ask(ctx, session.ID, "")
	assert.Error(t, err, "Empty question should be rejected")

	_, err = qa.Ask(ctx, "", "问题")
	assert.Error(t, err, "Empty session ID should be rejected")

	_, err = qa.Ask(ctx, "no-such-session", "问题")
	assert.Error(t, err, "Unknown session should be rejected")
}

func TestQAService_SearchLimit(t *testing.T) {
	client := newScriptedLLM("回答")
	qa, chatService, embedder, vectorDB := newTestQAService(t, client)

	// 放入三个同方向的分块，默认只取前两个
	docs := make([]vectordb.Document, 3)
	for i := range docs {
		docs[i] = vectordb.Document{
			ID:       "file-1_" + string(rune('0'+i)),
			FileID:   "file-1",
			FileName: "doc.md",
			Position: i,
			Text:     "内容",
			Vector:   []float32{1, 0, 0, 0},
		}
	}
	require.NoError(t, vectorDB.AddBatch(docs))

	ctx := context.Background()
	session, err := chatService.CreateChat(ctx, "条数测试")
	require.NoError(t, err)

	question := "问题"
	embedder.register(question, []float32{1, 0, 0, 0})

	resp, err := qa.Ask(ctx, session.ID, question)
	require.NoError(t, err)
	assert.Len(t, resp.Sources, 2, "Retrieval should be capped at the default top-k")
}
