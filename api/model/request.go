package model

import (
	"mime/multipart"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// DocumentUploadRequest 文档上传请求
type DocumentUploadRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"`              // 文件对象
	Tags string                `form:"tags" binding:"omitempty,taglist"`     // 文档标签，逗号分隔
}

// DocumentStatusRequest 文档状态查询请求
type DocumentStatusRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// DocumentListRequest 文档列表请求
type DocumentListRequest struct {
	PaginationRequest
	Status string `form:"status" json:"status" binding:"omitempty,oneof=uploaded processing completed failed"` // 文档状态过滤
	Tags   string `form:"tags" json:"tags" binding:"omitempty,taglist"`                                        // 标签过滤
}

// DocumentDeleteRequest 文档删除请求
type DocumentDeleteRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// DocumentReindexRequest 文档重建索引请求
type DocumentReindexRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// DocumentTasksRequest 文档任务列表请求
type DocumentTasksRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// QARequest 问答请求
// 提供session_id时在会话内多轮问答，否则为一次性问答
type QARequest struct {
	Question  string `json:"question" binding:"required"`   // 问题内容
	SessionID string `json:"session_id" binding:"omitempty"` // 可选的会话ID
	FileID    string `json:"file_id" binding:"omitempty"`    // 可选的文件ID，限定从特定文件中回答
}

// taglistPattern 标签为逗号分隔的非空片段
var taglistPattern = regexp.MustCompile(`^[^,]+(,[^,]+)*$`)

// TagListValidator 校验逗号分隔的标签列表
// 注册到gin的binding引擎后通过binding:"taglist"使用
func TagListValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return taglistPattern.MatchString(value)
}
