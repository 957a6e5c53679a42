package llm

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI对话模型客户端
type OpenAIClient struct {
	client *openai.Client // OpenAI API客户端
	config *Config        // 客户端配置
}

// NewOpenAIClient 创建一个新的OpenAI对话客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	config := NewConfig(opts...)

	if config.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

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

// Generate 根据提示词生成回答
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	messages := []Message{
		{Role: RoleUser, Content: prompt},
	}

	return c.Chat(ctx, messages, options...)
}

// Chat 进行多轮对话
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "messages cannot be empty")
	}

	opts := &GenerateOptions{}
	for _, opt := range options {
		opt(opts)
	}

	req := c.buildRequest(messages, opts)

	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err := c.client.CreateChatCompletion(timeoutCtx, req)
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 {
				return nil, NewLLMError(ErrCodeServerError, "chat API returned no choices")
			}
			return &Response{
				Text:       resp.Choices[0].Message.Content,
				TokenCount: resp.Usage.TotalTokens,
				ModelName:  resp.Model,
				FinishTime: time.Now(),
			}, nil
		}

		lastErr = err

		// 只对速率限制错误重试
		if !isRateLimitError(err) {
			return nil, NewLLMError(ErrCodeServerError, "chat API error: "+err.Error())
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

	return nil, NewLLMError(ErrCodeRateLimited, ErrMsgRateLimited+": "+lastErr.Error())
}

// buildRequest 将统一的消息结构转换为OpenAI请求
func (c *OpenAIClient) buildRequest(messages []Message, opts *GenerateOptions) openai.ChatCompletionRequest {
	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    chatMessages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		TopP:        c.config.TopP,
	}

	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}

	// 请求体里温度字段带omitempty，温度0会被丢弃并落回API默认值1，
	// 用最小正数代替0以保证确定性输出
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}

	return req
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
