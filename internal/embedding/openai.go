package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI嵌入向量客户端
type OpenAIClient struct {
	client *openai.Client // OpenAI API客户端
	config *Config        // 客户端配置
}

// NewOpenAIClient 创建一个新的OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	config := NewConfig(opts...)

	if config.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	// 创建OpenAI客户端配置
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.config.Model
}

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	embeddings, err := c.createEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "embedding API returned no data")
	}

	return embeddings[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量
// 返回的向量与输入文本一一对应，空文本对应nil向量
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if len(texts) > c.config.BatchSize {
		return nil, NewEmbeddingError(ErrCodeBatchTooLarge, ErrMsgBatchTooLarge)
	}

	// 过滤空文本，记录其原始位置
	nonEmptyTexts := make([]string, 0, len(texts))
	emptyIndices := make(map[int]bool)
	for i, text := range texts {
		if text == "" {
			emptyIndices[i] = true
		} else {
			nonEmptyTexts = append(nonEmptyTexts, text)
		}
	}

	if len(nonEmptyTexts) == 0 {
		return make([][]float32, len(texts)), nil
	}

	embeddings, err := c.createEmbeddings(ctx, nonEmptyTexts)
	if err != nil {
		return nil, err
	}

	if len(emptyIndices) == 0 {
		return embeddings, nil
	}

	// 将向量放回输入文本的原始位置
	results := make([][]float32, len(texts))
	vectorIndex := 0
	for i := range texts {
		if emptyIndices[i] {
			continue
		}
		if vectorIndex < len(embeddings) {
			results[i] = embeddings[vectorIndex]
			vectorIndex++
		}
	}

	return results, nil
}

// createEmbeddings 发送嵌入请求，对速率限制错误按指数退避重试
func (c *OpenAIClient) createEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.config.Model),
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err := c.client.CreateEmbeddings(timeoutCtx, req)
		cancel()

		if err == nil {
			embeddings := make([][]float32, len(resp.Data))
			for i, data := range resp.Data {
				embeddings[i] = data.Embedding
			}
			return embeddings, nil
		}

		lastErr = err

		// 只对速率限制错误重试
		if !isRateLimitError(err) {
			return nil, NewEmbeddingError(ErrCodeServerError, "embedding API error: "+err.Error())
		}

		if attempt < maxRetries {
			waitTime := time.Duration(1<<uint(attempt+1)) * time.Second
			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited+": "+lastErr.Error())
}

// isRateLimitError 检查是否为速率限制错误
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
