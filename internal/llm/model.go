package llm

import "time"

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`    // 角色
	Content string      `json:"content"` // 内容
}

// Response 统一的响应结构
type Response struct {
	Text       string    // 生成的文本
	TokenCount int       // 使用的token数
	ModelName  string    // 使用的模型名称
	FinishTime time.Time // 完成时间
}

// ChainResponse 检索问答链的响应结构
type ChainResponse struct {
	Answer   string            // 回答内容
	Question string            // 实际用于检索的问题（多轮对话时为改写后的独立问题）
	Sources  []SourceReference // 引用来源
}

// SourceReference 引用来源
type SourceReference struct {
	ID       string                 // 分块ID
	FileID   string                 // 文件ID
	FileName string                 // 文件名
	Position int                    // 分块在原文中的顺序
	Content  string                 // 引用内容
	Score    float32                // 相似度分数
	Metadata map[string]interface{} // 元数据
}

// 常用模型名称
const (
	ModelGPT35Turbo = "gpt-3.5-turbo" // 默认对话模型
	ModelGPT4o      = "gpt-4o"        // 多模态旗舰模型
	ModelGPT4oMini  = "gpt-4o-mini"   // 轻量模型，成本低
)
