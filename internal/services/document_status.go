package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyerfyer/docchat/internal/models"
	"github.com/fyerfyer/docchat/internal/repository"
	"github.com/sirupsen/logrus"
)

// DocumentStatusManager 文档状态管理器
// 管理文档从上传到可问答的生命周期状态流转
type DocumentStatusManager struct {
	repo   repository.DocumentRepository // 文档仓储接口
	logger *logrus.Logger                // 日志记录器
	mu     sync.Mutex                    // 互斥锁，保证状态转换的原子性
}

// NewDocumentStatusManager 创建文档状态管理器
func NewDocumentStatusManager(repo repository.DocumentRepository, logger *logrus.Logger) *DocumentStatusManager {
	if logger == nil {
		logger = logrus.New()
	}

	return &DocumentStatusManager{
		repo:   repo,
		logger: logger,
	}
}

// MarkAsUploaded 将文档标记为已上传状态
// 创建文档记录，等待后续处理
func (m *DocumentStatusManager) MarkAsUploaded(ctx context.Context, docID string, fileName string, filePath string, fileSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"doc_id":   docID,
		"filename": fileName,
	}).Info("Marking document as uploaded")

	doc := &models.Document{
		ID:         docID,
		FileName:   fileName,
		FileType:   fileTypeOf(fileName),
		FilePath:   filePath,
		FileSize:   fileSize,
		Status:     models.DocStatusUploaded,
		UploadedAt: time.Now(),
		UpdatedAt:  time.Now(),
	}

	return m.repo.WithContext(ctx).Create(doc)
}

// MarkAsProcessing 将文档标记为处理中状态
func (m *DocumentStatusManager) MarkAsProcessing(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.WithContext(ctx).GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	if err := ValidateStateTransition(doc.Status, models.DocStatusProcessing); err != nil {
		return fmt.Errorf("document %s: %w", docID, err)
	}

	m.logger.WithField("doc_id", docID).Info("Marking document as processing")

	return m.repo.WithContext(ctx).UpdateStatus(docID, models.DocStatusProcessing, "")
}

// MarkAsCompleted 将文档标记为处理完成状态
// 同时记录解析出的字符数和分块数
func (m *DocumentStatusManager) MarkAsCompleted(ctx context.Context, docID string, charCount, segmentCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo := m.repo.WithContext(ctx)

	doc, err := repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	if err := ValidateStateTransition(doc.Status, models.DocStatusCompleted); err != nil {
		return fmt.Errorf("document %s: %w", docID, err)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id":        docID,
		"char_count":    charCount,
		"segment_count": segmentCount,
	}).Info("Marking document as completed")

	if err := repo.UpdateCounts(docID, charCount, segmentCount); err != nil {
		return err
	}

	return repo.UpdateStatus(docID, models.DocStatusCompleted, "")
}

// MarkAsFailed 将文档标记为处理失败状态
func (m *DocumentStatusManager) MarkAsFailed(ctx context.Context, docID string, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.repo.WithContext(ctx).GetByID(docID); err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id": docID,
		"error":  errorMsg,
	}).Error("Marking document as failed")

	return m.repo.WithContext(ctx).UpdateStatus(docID, models.DocStatusFailed, errorMsg)
}

// GetStatus 获取文档当前状态
func (m *DocumentStatusManager) GetStatus(ctx context.Context, docID string) (models.DocumentStatus, error) {
	doc, err := m.repo.WithContext(ctx).GetByID(docID)
	if err != nil {
		return "", fmt.Errorf("failed to get document status: %w", err)
	}
	return doc.Status, nil
}

// GetDocument 获取完整的文档对象
func (m *DocumentStatusManager) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	return m.repo.WithContext(ctx).GetByID(docID)
}

// ListDocuments 获取文档列表
func (m *DocumentStatusManager) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	return m.repo.WithContext(ctx).List(offset, limit, filters)
}

// DeleteDocument 删除文档记录及其分块
func (m *DocumentStatusManager) DeleteDocument(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithField("doc_id", docID).Info("Deleting document record")
	return m.repo.WithContext(ctx).Delete(docID)
}

// ErrInvalidStateTransition 非法状态流转错误
var ErrInvalidStateTransition = errors.New("invalid state transition")

// ValidateStateTransition 验证状态转换的有效性
func ValidateStateTransition(from, to models.DocumentStatus) error {
	validTransitions := map[models.DocumentStatus][]models.DocumentStatus{
		models.DocStatusUploaded: {
			models.DocStatusProcessing,
			// 小文件可能同步处理直接完成或立即失败
			models.DocStatusCompleted,
			models.DocStatusFailed,
		},
		models.DocStatusProcessing: {
			models.DocStatusCompleted,
			models.DocStatusFailed,
		},
		// 重建索引时已完成的文档允许回到处理中，失败允许重试
		models.DocStatusCompleted: {models.DocStatusProcessing},
		models.DocStatusFailed:    {models.DocStatusProcessing},
	}

	for _, validTo := range validTransitions[from] {
		if validTo == to {
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
}

// fileTypeOf 根据文件名获取文件类型标识
func fileTypeOf(fileName string) string {
	for i := len(fileName) - 1; i >= 0; i-- {
		if fileName[i] == '.' {
			return fileName[i+1:]
		}
	}
	return ""
}
