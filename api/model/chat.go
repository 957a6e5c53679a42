package model

import (
	"time"
)

// CreateChatRequest 创建对话会话请求
type CreateChatRequest struct {
	Title string `json:"title,omitempty"` // 会话标题，可选，不提供时使用默认标题
}

// CreateChatResponse 创建对话会话响应
type CreateChatResponse struct {
	SessionID string    `json:"session_id"` // 会话ID
	Title     string    `json:"title"`      // 会话标题
	CreatedAt time.Time `json:"created_at"` // 创建时间
}

// SendMessageRequest 会话内提问请求
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"` // 问题内容
	FileID  string `json:"file_id" binding:"omitempty"` // 可选的文件ID，限定检索范围
}

// GetChatHistoryRequest 获取对话历史请求
type GetChatHistoryRequest struct {
	SessionID         string `uri:"session_id" binding:"required"` // 会话ID
	PaginationRequest        // 嵌入分页请求
}

// ChatListRequest 对话会话列表请求
type ChatListRequest struct {
	PaginationRequest
}

// RenameChatRequest 重命名对话会话请求
type RenameChatRequest struct {
	Title string `json:"title" binding:"required"` // 新标题
}

// DeleteChatRequest 删除对话会话请求
type DeleteChatRequest struct {
	SessionID string `uri:"session_id" binding:"required"` // 会话ID
}

// MessageInfo 对话消息信息
type MessageInfo struct {
	ID        string         `json:"id"`                // 消息ID
	Role      string         `json:"role"`              // 消息角色
	Content   string         `json:"content"`           // 消息内容
	CreatedAt time.Time      `json:"created_at"`        // 创建时间
	Sources   []QASourceInfo `json:"sources,omitempty"` // 引用来源（如果有）
}

// ChatHistoryResponse 对话历史响应
type ChatHistoryResponse struct {
	SessionID string        `json:"session_id"` // 会话ID
	Title     string        `json:"title"`      // 会话标题
	Total     int64         `json:"total"`      // 消息总数
	Messages  []MessageInfo `json:"messages"`   // 消息列表，按时间正序
}

// ChatInfo 对话会话信息
type ChatInfo struct {
	SessionID    string    `json:"session_id"`    // 会话ID
	Title        string    `json:"title"`         // 会话标题
	CreatedAt    time.Time `json:"created_at"`    // 创建时间
	UpdatedAt    time.Time `json:"updated_at"`    // 更新时间
	MessageCount int       `json:"message_count"` // 消息数量
}

// ChatListResponse 对话会话列表响应
type ChatListResponse struct {
	Total    int64      `json:"total"`     // 总数量
	Page     int        `json:"page"`      // 当前页码
	PageSize int        `json:"page_size"` // 每页大小
	Chats    []ChatInfo `json:"chats"`     // 会话列表
}

// RenameChatResponse 重命名会话响应
type RenameChatResponse struct {
	SessionID string    `json:"session_id"` // 会话ID
	Title     string    `json:"title"`      // 新标题
	UpdatedAt time.Time `json:"updated_at"` // 更新时间
}

// DeleteChatResponse 删除会话响应
type DeleteChatResponse struct {
	Success   bool   `json:"success"`    // 是否成功
	SessionID string `json:"session_id"` // 会话ID
}
