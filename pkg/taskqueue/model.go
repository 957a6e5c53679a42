package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskDocumentIngest 文档入库任务：解析、分块、向量化、写入向量库的完整流程
	TaskDocumentIngest TaskType = "document_ingest"
	// TaskDocumentReindex 文档重建索引任务：用已有文本重新分块和向量化
	TaskDocumentReindex TaskType = "document_reindex"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	DocumentID  string          `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据
	Result      json.RawMessage `json:"result"`       // 任务结果数据
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// IngestPayload 文档入库任务载荷
type IngestPayload struct {
	FileID       string `json:"file_id"`       // 存储层文件ID
	FileName     string `json:"file_name"`     // 原始文件名
	FileType     string `json:"file_type"`     // 文件类型: pdf, markdown, text
	ChunkSize    int    `json:"chunk_size"`    // 分块大小（字符数）
	ChunkOverlap int    `json:"chunk_overlap"` // 分块重叠（字符数）
	Model        string `json:"model"`         // 嵌入模型名称
}

// IngestResult 文档入库任务结果
type IngestResult struct {
	DocumentID   string `json:"document_id"`   // 文档ID
	CharCount    int    `json:"char_count"`    // 解析出的字符数
	SegmentCount int    `json:"segment_count"` // 分块数量
	VectorCount  int    `json:"vector_count"`  // 写入向量库的向量数量
	Dimension    int    `json:"dimension"`     // 向量维度
	Model        string `json:"model"`         // 使用的嵌入模型
}

// ReindexPayload 重建索引任务载荷
type ReindexPayload struct {
	ChunkSize    int    `json:"chunk_size"`    // 分块大小（字符数）
	ChunkOverlap int    `json:"chunk_overlap"` // 分块重叠（字符数）
	Model        string `json:"model"`         // 嵌入模型名称
}

// TaskInfo 任务元信息
// 传给客户端的简化视图，不携带载荷和结果原文
type TaskInfo struct {
	ID          string     `json:"id"`           // 任务唯一标识符
	Type        TaskType   `json:"type"`         // 任务类型
	DocumentID  string     `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus `json:"status"`       // 任务状态
	Error       string     `json:"error"`        // 错误信息
	CreatedAt   time.Time  `json:"created_at"`   // 创建时间
	StartedAt   *time.Time `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time `json:"completed_at"` // 完成时间
	Progress    float64    `json:"progress"`     // 处理进度（0-100）
}

// NewTaskInfo 从Task创建TaskInfo
func NewTaskInfo(task *Task) *TaskInfo {
	return &TaskInfo{
		ID:          task.ID,
		Type:        task.Type,
		DocumentID:  task.DocumentID,
		Status:      task.Status,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
		Progress:    taskProgress(task.Status),
	}
}

// taskProgress 根据任务状态估算进度
func taskProgress(status TaskStatus) float64 {
	switch status {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 50
	case StatusCompleted:
		return 100
	case StatusFailed:
		return 50
	default:
		return 0
	}
}

// TaskError 任务错误类型
type TaskError string

// Error 实现error接口
func (e TaskError) Error() string {
	return string(e)
}

// ErrTaskNotFound 任务未找到错误
var ErrTaskNotFound = TaskError("task not found")

// ErrTaskTimeout 任务超时错误
var ErrTaskTimeout = TaskError("task timed out")

// MarshalPayload 将任务载荷序列化为JSON
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload 将JSON反序列化为任务载荷
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
