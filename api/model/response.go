package model

import (
	"time"

	"github.com/fyerfyer/docchat/internal/llm"
	"github.com/fyerfyer/docchat/internal/models"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// DocumentUploadResponse 文档上传响应
type DocumentUploadResponse struct {
	FileID   string `json:"file_id"`           // 文件ID
	FileName string `json:"filename"`          // 文件名
	Status   string `json:"status"`            // 文档状态
	TaskID   string `json:"task_id,omitempty"` // 异步处理任务ID（启用队列时）
}

// DocumentStatusResponse 文档状态查询响应
type DocumentStatusResponse struct {
	FileID    string `json:"file_id"`            // 文档ID
	Status    string `json:"status"`             // 处理状态
	FileName  string `json:"filename"`           // 文件名
	Error     string `json:"error,omitempty"`    // 错误信息（如果有）
	CharCount int    `json:"char_count"`         // 解析出的字符数
	Segments  int    `json:"segments,omitempty"` // 分块数量（处理完成后）
	CreatedAt string `json:"created_at"`         // 创建时间
	UpdatedAt string `json:"updated_at"`         // 更新时间
}

// DocumentInfo 文档信息
type DocumentInfo struct {
	FileID     string    `json:"file_id"`     // 文件ID
	FileName   string    `json:"filename"`    // 文件名
	FileType   string    `json:"file_type"`   // 文件类型
	Status     string    `json:"status"`      // 状态
	Tags       string    `json:"tags"`        // 标签
	UploadTime time.Time `json:"upload_time"` // 上传时间
	Segments   int       `json:"segments"`    // 分块数量
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Total     int64          `json:"total"`     // 总数量
	Page      int            `json:"page"`      // 当前页码
	PageSize  int            `json:"page_size"` // 每页大小
	Documents []DocumentInfo `json:"documents"` // 文档列表
}

// DocumentDeleteResponse 文档删除响应
type DocumentDeleteResponse struct {
	Success bool   `json:"success"` // 是否成功
	FileID  string `json:"file_id"` // 文件ID
}

// DocumentReindexResponse 文档重建索引响应
type DocumentReindexResponse struct {
	FileID string `json:"file_id"` // 文件ID
	Status string `json:"status"`  // 重建后的文档状态
}

// QASourceInfo 问答来源信息
type QASourceInfo struct {
	Text     string  `json:"text"`            // 相关文本分块
	FileID   string  `json:"file_id"`         // 文件ID
	FileName string  `json:"filename"`        // 文件名
	Position int     `json:"position"`        // 分块位置
	Score    float32 `json:"score,omitempty"` // 相似度分数
}

// QAResponse 问答响应
type QAResponse struct {
	SessionID string         `json:"session_id,omitempty"` // 会话ID（会话内问答时）
	Question  string         `json:"question"`             // 实际用于检索的问题
	Answer    string         `json:"answer"`               // 生成的回答
	Sources   []QASourceInfo `json:"sources"`              // 来源信息
}

// ConvertSources 将检索链的引用来源转换为响应格式
func ConvertSources(refs []llm.SourceReference) []QASourceInfo {
	sources := make([]QASourceInfo, 0, len(refs))
	for _, ref := range refs {
		sources = append(sources, QASourceInfo{
			Text:     ref.Content,
			FileID:   ref.FileID,
			FileName: ref.FileName,
			Position: ref.Position,
			Score:    ref.Score,
		})
	}
	return sources
}

// ConvertModelSources 将消息中持久化的来源转换为响应格式
func ConvertModelSources(srcs []models.Source) []QASourceInfo {
	sources := make([]QASourceInfo, 0, len(srcs))
	for _, src := range srcs {
		sources = append(sources, QASourceInfo{
			Text:     src.Text,
			FileID:   src.FileID,
			FileName: src.FileName,
			Position: src.Position,
			Score:    src.Score,
		})
	}
	return sources
}

// TaskStatusResponse 任务状态查询响应
type TaskStatusResponse struct {
	ID          string     `json:"id"`           // 任务ID
	Type        string     `json:"type"`         // 任务类型
	DocumentID  string     `json:"document_id"`  // 关联的文档ID
	Status      string     `json:"status"`       // 任务状态
	Error       string     `json:"error,omitempty"` // 错误信息
	Progress    float64    `json:"progress"`     // 处理进度（0-100）
	CreatedAt   time.Time  `json:"created_at"`   // 创建时间
	StartedAt   *time.Time `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time `json:"completed_at"` // 完成时间
}

// TaskListResponse 任务列表响应
type TaskListResponse struct {
	DocumentID string               `json:"document_id"` // 文档ID
	Tasks      []TaskStatusResponse `json:"tasks"`       // 任务列表
}
