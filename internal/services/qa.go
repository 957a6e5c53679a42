package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyerfyer/docchat/internal/cache"
	"github.com/fyerfyer/docchat/internal/embedding"
	"github.com/fyerfyer/docchat/internal/llm"
	"github.com/fyerfyer/docchat/internal/models"
	"github.com/fyerfyer/docchat/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// NoAnswerMessage 检索不到相关内容时的固定回答
const NoAnswerMessage = "抱歉，我没有找到相关信息。"

// QAService 问答服务
// 串起问题改写、向量检索和回答生成，并把问答写入会话历史
type QAService struct {
	embedder     embedding.Client    // 嵌入模型客户端
	vectorDB     vectordb.Repository // 向量数据库
	chain        *llm.RetrievalChain // 检索问答链
	chat         *ChatService        // 对话服务
	cache        cache.Cache         // 回答缓存
	cacheTTL     time.Duration       // 缓存有效期
	searchLimit  int                 // 检索分块数量
	minScore     float32             // 最低相似度分数
	historyLimit int                 // 改写问题时携带的历史消息条数
	logger       *logrus.Logger      // 日志记录器
}

// QAOption 问答服务配置选项
type QAOption func(*QAService)

// NewQAService 创建问答服务实例
func NewQAService(
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	chain *llm.RetrievalChain,
	chat *ChatService,
	answerCache cache.Cache,
	opts ...QAOption,
) *QAService {
	defaults := vectordb.DefaultSearchFilter()

	service := &QAService{
		embedder:     embedder,
		vectorDB:     vectorDB,
		chain:        chain,
		chat:         chat,
		cache:        answerCache,
		cacheTTL:     24 * time.Hour,
		searchLimit:  defaults.MaxResults,
		minScore:     defaults.MinScore,
		historyLimit: 10,
		logger:       logrus.New(),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// WithCacheTTL 设置回答缓存有效期
func WithCacheTTL(ttl time.Duration) QAOption {
	return func(s *QAService) {
		s.cacheTTL = ttl
	}
}

// WithSearchLimit 设置检索分块数量
func WithSearchLimit(limit int) QAOption {
	return func(s *QAService) {
		if limit > 0 {
			s.searchLimit = limit
		}
	}
}

// WithMinScore 设置最低相似度分数
func WithMinScore(score float32) QAOption {
	return func(s *QAService) {
		s.minScore = score
	}
}

// WithHistoryLimit 设置改写问题时携带的历史消息条数
func WithHistoryLimit(limit int) QAOption {
	return func(s *QAService) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// WithQALogger 设置日志记录器
func WithQALogger(logger *logrus.Logger) QAOption {
	return func(s *QAService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Ask 在会话中回答问题
// 用会话历史把追问改写成独立问题，检索相关分块生成回答，并把问答写入历史
func (s *QAService) Ask(ctx context.Context, sessionID string, question string) (*llm.ChainResponse, error) {
	return s.ask(ctx, sessionID, question, nil)
}

// AskWithFile 在会话中针对指定文档回答问题
func (s *QAService) AskWithFile(ctx context.Context, sessionID string, question string, fileID string) (*llm.ChainResponse, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID cannot be empty")
	}
	return s.ask(ctx, sessionID, question, []string{fileID})
}

// ask 对话式问答的公共实现
func (s *QAService) ask(ctx context.Context, sessionID string, question string, fileIDs []string) (*llm.ChainResponse, error) {
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}

	// 确认会话存在
	if _, err := s.chat.GetChatSession(ctx, sessionID); err != nil {
		return nil, err
	}

	history, err := s.chat.BuildHistory(ctx, sessionID, s.historyLimit)
	if err != nil {
		return nil, err
	}

	// 回答依赖会话历史，缓存键带上会话ID和文件过滤条件
	// 缓存命中的问答同样要写入历史
	cacheKey := cache.HashedKey("qa", append([]string{sessionID, question}, fileIDs...)...)
	if cached, found := s.getCachedResponse(cacheKey); found {
		s.logger.WithField("session_id", sessionID).Debug("Answer served from cache")
		s.recordTurn(ctx, sessionID, question, cached)
		return cached, nil
	}

	// 1. 把追问改写成不依赖历史的独立问题
	condensed, err := s.chain.CondenseQuestion(ctx, question, history)
	if err != nil {
		return nil, err
	}

	// 2. 用独立问题检索相关分块
	sources, err := s.retrieve(ctx, condensed, fileIDs)
	if err != nil {
		return nil, err
	}

	// 3. 生成回答；没有检索到内容时直接返回固定回答，不调用模型
	var response *llm.ChainResponse
	if len(sources) == 0 {
		response = &llm.ChainResponse{
			Answer:   NoAnswerMessage,
			Question: condensed,
		}
	} else {
		response, err = s.chain.Answer(ctx, condensed, sources)
		if err != nil {
			return nil, err
		}
		response.Question = condensed
	}

	// 4. 把问答写入会话历史
	s.recordTurn(ctx, sessionID, question, response)

	s.cacheResponse(cacheKey, response)

	return response, nil
}

// recordTurn 把一轮问答追加到会话历史
// 每次提问固定追加一条用户消息和一条助手消息
func (s *QAService) recordTurn(ctx context.Context, sessionID string, question string, response *llm.ChainResponse) {
	if _, err := s.chat.AddMessage(ctx, sessionID, models.RoleUser, question); err != nil {
		s.logger.WithError(err).Warn("Failed to record user message")
	}
	if _, err := s.chat.SaveAnswerWithSources(ctx, sessionID, response.Answer, toModelSources(response.Sources)); err != nil {
		s.logger.WithError(err).Warn("Failed to record assistant message")
	}
}

// AnswerOnce 不依赖会话的单次问答
// 不读写对话历史，适合一次性提问
func (s *QAService) AnswerOnce(ctx context.Context, question string) (*llm.ChainResponse, error) {
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	cacheKey := cache.HashedKey("qa_once", question)
	if cached, found := s.getCachedResponse(cacheKey); found {
		return cached, nil
	}

	response, err := s.chain.Run(ctx, question, nil, func(ctx context.Context, query string) ([]llm.SourceReference, error) {
		return s.retrieve(ctx, query, nil)
	})
	if err != nil {
		return nil, err
	}

	s.cacheResponse(cacheKey, response)
	return response, nil
}

// retrieve 将问题向量化后在向量库中检索相关分块
func (s *QAService) retrieve(ctx context.Context, query string, fileIDs []string) ([]llm.SourceReference, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	filter := vectordb.SearchFilter{
		FileIDs:    fileIDs,
		MinScore:   s.minScore,
		MaxResults: s.searchLimit,
	}

	results, err := s.vectorDB.Search(vector, filter)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	sources := make([]llm.SourceReference, 0, len(results))
	for _, result := range results {
		if result.Score < s.minScore {
			continue
		}
		sources = append(sources, llm.SourceReference{
			ID:       result.Document.ID,
			FileID:   result.Document.FileID,
			FileName: result.Document.FileName,
			Position: result.Document.Position,
			Content:  result.Document.Text,
			Score:    result.Score,
			Metadata: result.Document.Metadata,
		})
	}

	return sources, nil
}

// getCachedResponse 从缓存读取序列化的回答
func (s *QAService) getCachedResponse(key string) (*llm.ChainResponse, bool) {
	data, found, err := s.cache.Get(key)
	if err != nil || !found {
		return nil, false
	}

	var response llm.ChainResponse
	if err := json.Unmarshal([]byte(data), &response); err != nil {
		// 缓存内容损坏时当作未命中
		s.logger.WithError(err).Warn("Failed to unmarshal cached answer")
		return nil, false
	}
	return &response, true
}

// cacheResponse 把回答序列化后写入缓存
func (s *QAService) cacheResponse(key string, response *llm.ChainResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to marshal answer for caching")
		return
	}
	if err := s.cache.Set(key, string(data), s.cacheTTL); err != nil {
		s.logger.WithError(err).Warn("Failed to cache answer")
	}
}

// toModelSources 把链的引用来源转换成消息存储格式
func toModelSources(refs []llm.SourceReference) []models.Source {
	if len(refs) == 0 {
		return nil
	}

	sources := make([]models.Source, len(refs))
	for i, ref := range refs {
		sources[i] = models.Source{
			FileID:   ref.FileID,
			FileName: ref.FileName,
			Position: ref.Position,
			Text:     ref.Content,
			Score:    ref.Score,
		}
	}
	return sources
}

// ClearCache 清空问答缓存
func (s *QAService) ClearCache() error {
	return s.cache.Clear()
}
