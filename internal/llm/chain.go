package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultCondenseTemplate 问题改写提示词模板
// 把依赖对话历史的追问改写成独立完整的问题
// 包含变量：
// {{.ChatHistory}} - 对话历史
// {{.Question}} - 用户的后续问题
const DefaultCondenseTemplate = `下面是一段对话历史和用户提出的后续问题。
请把后续问题改写成一个不依赖对话历史、语义完整的独立问题。
只输出改写后的问题，不要添加任何解释。

对话历史:
{{.ChatHistory}}

后续问题: {{.Question}}

独立问题:`

// DefaultAnswerTemplate 基于检索上下文的回答提示词模板
// 包含变量：
// {{.Question}} - 用户问题
// {{.Context}} - 检索的上下文
const DefaultAnswerTemplate = `请你作为一个智能问答助手，基于下面提供的参考上下文回答问题。
如果参考上下文中没有足够信息回答问题，请直接说"抱歉，我没有找到相关信息"，不要猜测或编造信息。

参考上下文:
{{.Context}}

用户问题: {{.Question}}

请直接回答问题，不要重复问题内容，不要说参考上下文之类的话语。`

// ChainConfig 检索问答链配置
type ChainConfig struct {
	CondenseTemplate string        // 问题改写模板
	AnswerTemplate   string        // 回答模板
	MaxTokens        int           // 最大生成Token数
	Temperature      float32       // 温度参数
	Timeout          time.Duration // 单次请求超时时间
	MaxHistoryTurns  int           // 改写问题时参考的最大历史轮数
	IncludeSources   bool          // 是否带上引用来源
}

// DefaultChainConfig 默认检索问答链配置
func DefaultChainConfig() *ChainConfig {
	return &ChainConfig{
		CondenseTemplate: DefaultCondenseTemplate,
		AnswerTemplate:   DefaultAnswerTemplate,
		MaxTokens:        2048,
		Temperature:      0,
		Timeout:          30 * time.Second,
		MaxHistoryTurns:  6,
		IncludeSources:   true,
	}
}

// ChainOption 链配置选项函数类型
type ChainOption func(*ChainConfig)

// WithCondenseTemplate 设置问题改写模板
func WithCondenseTemplate(template string) ChainOption {
	return func(c *ChainConfig) {
		c.CondenseTemplate = template
	}
}

// WithAnswerTemplate 设置回答模板
func WithAnswerTemplate(template string) ChainOption {
	return func(c *ChainConfig) {
		c.AnswerTemplate = template
	}
}

// WithChainMaxTokens 设置最大Token数
func WithChainMaxTokens(tokens int) ChainOption {
	return func(c *ChainConfig) {
		c.MaxTokens = tokens
	}
}

// WithChainTemperature 设置温度参数
func WithChainTemperature(temp float32) ChainOption {
	return func(c *ChainConfig) {
		c.Temperature = temp
	}
}

// WithChainTimeout 设置请求超时时间
func WithChainTimeout(timeout time.Duration) ChainOption {
	return func(c *ChainConfig) {
		c.Timeout = timeout
	}
}

// WithMaxHistoryTurns 设置改写问题时参考的最大历史轮数
func WithMaxHistoryTurns(turns int) ChainOption {
	return func(c *ChainConfig) {
		c.MaxHistoryTurns = turns
	}
}

// WithSources 设置是否包含引用来源
func WithSources(include bool) ChainOption {
	return func(c *ChainConfig) {
		c.IncludeSources = include
	}
}

// RetrievalChain 对话式检索问答链
// 分两步工作：先把追问和对话历史压缩成独立问题（供检索使用），
// 再基于检索到的上下文生成最终回答
type RetrievalChain struct {
	client Client       // 大模型客户端
	config *ChainConfig // 配置
	mu     sync.RWMutex // 配置互斥锁
}

// NewRetrievalChain 创建新的检索问答链
func NewRetrievalChain(client Client, opts ...ChainOption) *RetrievalChain {
	cfg := DefaultChainConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &RetrievalChain{
		client: client,
		config: cfg,
	}
}

// CondenseQuestion 将追问改写为独立问题
// 没有对话历史时原样返回问题，不消耗模型调用
func (c *RetrievalChain) CondenseQuestion(ctx context.Context, question string, history []Message) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	if len(history) == 0 {
		return question, nil
	}

	c.mu.RLock()
	cfg := c.config
	c.mu.RUnlock()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	prompt := renderTemplate(cfg.CondenseTemplate, map[string]string{
		"ChatHistory": formatHistory(history, cfg.MaxHistoryTurns),
		"Question":    question,
	})

	response, err := c.client.Generate(
		ctxWithTimeout,
		prompt,
		WithGenerateTemperature(cfg.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("failed to condense question: %w", err)
	}

	condensed := strings.TrimSpace(response.Text)
	if condensed == "" {
		// 改写失败时退回原始问题，检索仍可进行
		return question, nil
	}

	return condensed, nil
}

// Answer 基于检索到的上下文生成回答
func (c *RetrievalChain) Answer(ctx context.Context, question string, sources []SourceReference) (*ChainResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	c.mu.RLock()
	cfg := c.config
	c.mu.RUnlock()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	contexts := make([]string, len(sources))
	for i, src := range sources {
		contexts[i] = src.Content
	}

	prompt := renderTemplate(cfg.AnswerTemplate, map[string]string{
		"Context":  formatContext(contexts),
		"Question": question,
	})

	response, err := c.client.Generate(
		ctxWithTimeout,
		prompt,
		WithGenerateMaxTokens(cfg.MaxTokens),
		WithGenerateTemperature(cfg.Temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	chainResponse := &ChainResponse{
		Answer:   strings.TrimSpace(response.Text),
		Question: question,
	}

	if cfg.IncludeSources && len(sources) > 0 {
		chainResponse.Sources = sources
	}

	return chainResponse, nil
}

// Run 执行完整的对话式问答流程
// retrieve由调用方提供，接收独立问题并返回相关上下文
func (c *RetrievalChain) Run(
	ctx context.Context,
	question string,
	history []Message,
	retrieve func(ctx context.Context, query string) ([]SourceReference, error),
) (*ChainResponse, error) {
	condensed, err := c.CondenseQuestion(ctx, question, history)
	if err != nil {
		return nil, err
	}

	sources, err := retrieve(ctx, condensed)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	response, err := c.Answer(ctx, condensed, sources)
	if err != nil {
		return nil, err
	}

	response.Question = condensed
	return response, nil
}

// formatHistory 将对话历史格式化为文本
// 只保留最近maxTurns条消息，避免提示词超出上下文限制
func formatHistory(history []Message, maxTurns int) string {
	if maxTurns > 0 && len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}

	var sb strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("用户: ")
		case RoleAssistant:
			sb.WriteString("助手: ")
		default:
			continue
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String())
}

// formatContext 格式化检索到的上下文内容
func formatContext(contexts []string) string {
	var sb strings.Builder
	for i, ctx := range contexts {
		sb.WriteString(fmt.Sprintf("【%d】%s\n\n", i+1, ctx))
	}
	return sb.String()
}

// renderTemplate 简单的模板变量替换
func renderTemplate(template string, vars map[string]string) string {
	result := template
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{."+key+"}}", value)
	}
	return result
}

// SetAnswerTemplate 设置自定义回答模板
func (c *RetrievalChain) SetAnswerTemplate(template string) *RetrievalChain {
	c.mu.Lock()
	c.config.AnswerTemplate = template
	c.mu.Unlock()
	return c
}
