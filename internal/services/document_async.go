package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/docchat/internal/models"
	"github.com/fyerfyer/docchat/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// processDocumentAsync 将文档处理任务入队后立即返回
func (s *DocumentService) processDocumentAsync(ctx context.Context, fileID string) error {
	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	payload := taskqueue.IngestPayload{
		FileID:       fileID,
		FileName:     doc.FileName,
		FileType:     doc.FileType,
		ChunkSize:    s.chunkSize,
		ChunkOverlap: s.chunkOverlap,
		Model:        s.embedder.Name(),
	}

	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskDocumentIngest, fileID, payload)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to enqueue ingest task: %v", err))
		return fmt.Errorf("failed to enqueue ingest task: %w", err)
	}

	// 在文档记录上留下当前任务ID，便于查询处理进展
	doc.TaskID = taskID
	if err := s.repo.WithContext(ctx).Update(doc); err != nil {
		s.logger.WithError(err).WithField("file_id", fileID).Warn("Failed to record task ID on document")
	}

	s.logger.WithFields(logrus.Fields{
		"file_id": fileID,
		"task_id": taskID,
	}).Info("Document ingest task enqueued")

	return nil
}

// ReindexDocument 重建文档索引
// 清掉旧的分块和向量，用当前分块参数重新处理
func (s *DocumentService) ReindexDocument(ctx context.Context, fileID string) error {
	if _, err := s.statusManager.GetDocument(ctx, fileID); err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	if s.asyncEnabled && s.taskQueue != nil {
		payload := taskqueue.ReindexPayload{
			ChunkSize:    s.chunkSize,
			ChunkOverlap: s.chunkOverlap,
			Model:        s.embedder.Name(),
		}
		taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskDocumentReindex, fileID, payload)
		if err != nil {
			return fmt.Errorf("failed to enqueue reindex task: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"file_id": fileID,
			"task_id": taskID,
		}).Info("Document reindex task enqueued")
		return nil
	}

	return s.reindexSync(ctx, fileID)
}

// reindexSync 同步重建文档索引
func (s *DocumentService) reindexSync(ctx context.Context, fileID string) error {
	if err := s.vectorDB.DeleteByFileID(fileID); err != nil {
		return fmt.Errorf("failed to delete old vectors: %w", err)
	}
	if err := s.repo.WithContext(ctx).DeleteSegments(fileID); err != nil {
		return fmt.Errorf("failed to delete old segments: %w", err)
	}

	// 失败后的重新处理属于合法流转，处理中状态打不上时继续执行
	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).WithField("file_id", fileID).Debug("Skipping processing transition")
	}

	_, err := s.runPipeline(ctx, fileID)
	return err
}

// GetDocumentTasks 获取文档关联的异步任务
func (s *DocumentService) GetDocumentTasks(ctx context.Context, fileID string) ([]*taskqueue.Task, error) {
	if s.taskQueue == nil {
		return nil, errors.New("async processing not enabled")
	}
	return s.taskQueue.GetTasksByDocument(ctx, fileID)
}

// WaitForDocumentProcessing 等待文档处理完成
// 未启用异步处理时直接检查文档状态
func (s *DocumentService) WaitForDocumentProcessing(ctx context.Context, fileID string, timeout time.Duration) error {
	if !s.asyncEnabled || s.taskQueue == nil {
		status, err := s.statusManager.GetStatus(ctx, fileID)
		if err != nil {
			return err
		}
		switch status {
		case models.DocStatusCompleted:
			return nil
		case models.DocStatusFailed:
			return fmt.Errorf("document processing failed")
		default:
			return fmt.Errorf("document not processed")
		}
	}

	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return err
	}
	if doc.TaskID == "" {
		return fmt.Errorf("no processing task found for document %s", fileID)
	}

	task, err := s.taskQueue.WaitForTask(ctx, doc.TaskID, timeout)
	if err != nil {
		return fmt.Errorf("failed to wait for document processing: %w", err)
	}

	if task.Status == taskqueue.StatusFailed {
		return fmt.Errorf("document processing failed: %s", task.Error)
	}

	status, err := s.statusManager.GetStatus(ctx, fileID)
	if err != nil {
		return err
	}
	if status != models.DocStatusCompleted {
		return fmt.Errorf("document processing incomplete")
	}

	return nil
}

// IngestHandler 文档处理任务处理器
// 由工作者进程运行，消费入库和重建索引任务
type IngestHandler struct {
	service *DocumentService
	logger  *logrus.Logger
}

// NewIngestHandler 创建文档处理任务处理器
func NewIngestHandler(service *DocumentService, logger *logrus.Logger) *IngestHandler {
	if logger == nil {
		logger = service.logger
	}
	return &IngestHandler{
		service: service,
		logger:  logger,
	}
}

// TaskTypes 返回支持的任务类型
func (h *IngestHandler) TaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{
		taskqueue.TaskDocumentIngest,
		taskqueue.TaskDocumentReindex,
	}
}

// ProcessTask 处理单个任务
func (h *IngestHandler) ProcessTask(ctx context.Context, task *taskqueue.Task) error {
	switch task.Type {
	case taskqueue.TaskDocumentIngest:
		return h.processIngest(ctx, task)
	case taskqueue.TaskDocumentReindex:
		return h.processReindex(ctx, task)
	default:
		return fmt.Errorf("unsupported task type: %s", task.Type)
	}
}

// processIngest 执行文档入库任务
func (h *IngestHandler) processIngest(ctx context.Context, task *taskqueue.Task) error {
	if err := h.service.statusManager.MarkAsProcessing(ctx, task.DocumentID); err != nil {
		h.logger.WithError(err).WithField("file_id", task.DocumentID).Warn("Failed to mark document as processing")
	}

	result, err := h.service.runPipeline(ctx, task.DocumentID)
	if err != nil {
		return err
	}

	return h.recordResult(ctx, task.ID, result)
}

// processReindex 执行文档重建索引任务
func (h *IngestHandler) processReindex(ctx context.Context, task *taskqueue.Task) error {
	if err := h.service.vectorDB.DeleteByFileID(task.DocumentID); err != nil {
		return fmt.Errorf("failed to delete old vectors: %w", err)
	}
	if err := h.service.repo.WithContext(ctx).DeleteSegments(task.DocumentID); err != nil {
		return fmt.Errorf("failed to delete old segments: %w", err)
	}

	if err := h.service.statusManager.MarkAsProcessing(ctx, task.DocumentID); err != nil {
		h.logger.WithError(err).WithField("file_id", task.DocumentID).Debug("Skipping processing transition")
	}

	result, err := h.service.runPipeline(ctx, task.DocumentID)
	if err != nil {
		return err
	}

	return h.recordResult(ctx, task.ID, result)
}

// recordResult 把处理结果写回任务记录
func (h *IngestHandler) recordResult(ctx context.Context, taskID string, result *taskqueue.IngestResult) error {
	if h.service.taskQueue == nil {
		return nil
	}

	if err := h.service.taskQueue.UpdateTaskStatus(ctx, taskID, taskqueue.StatusCompleted, result, ""); err != nil {
		h.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to record task result")
	}
	return nil
}

// StartIngestWorker 启动文档处理工作者
// 注册入库处理器并开始消费队列
func StartIngestWorker(queue *taskqueue.RedisQueue, service *DocumentService, cfg *taskqueue.Config, logger *logrus.Logger) (taskqueue.Worker, error) {
	worker := taskqueue.NewRedisWorker(queue, cfg)

	handler := taskqueue.WithLogging(NewIngestHandler(service, logger), logger)
	for _, taskType := range handler.TaskTypes() {
		worker.RegisterHandler(taskType, handler)
	}

	if err := worker.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ingest worker: %w", err)
	}
	return worker, nil
}
