package repository

import (
	"context"

	"github.com/fyerfyer/docchat/internal/models"
)

// DocumentRepository 文档仓储接口
// 负责文档元数据和分块记录的存储与检索
type DocumentRepository interface {
	// Create 创建文档记录
	Create(doc *models.Document) error

	// Update 更新文档记录
	Update(doc *models.Document) error

	// GetByID 根据ID获取文档
	GetByID(id string) (*models.Document, error)

	// List 列出文档列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete 删除文档及其所有分块
	Delete(id string) error

	// UpdateStatus 更新文档状态
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// UpdateCounts 更新文档的字符数和分块数
	UpdateCounts(id string, charCount, segmentCount int) error

	// SaveSegment 保存文档分块
	SaveSegment(segment *models.DocumentSegment) error

	// SaveSegments 批量保存文档分块
	SaveSegments(segments []*models.DocumentSegment) error

	// GetSegments 获取文档的所有分块
	GetSegments(docID string) ([]*models.DocumentSegment, error)

	// CountSegments 统计文档的分块数量
	CountSegments(docID string) (int, error)

	// DeleteSegments 删除文档的所有分块
	DeleteSegments(docID string) error

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) DocumentRepository
}
