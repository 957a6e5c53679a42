package taskqueue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// HandlerFunc 把函数适配为Handler
type HandlerFunc struct {
	Types []TaskType
	Fn    func(ctx context.Context, task *Task) error
}

// ProcessTask 处理任务
func (h HandlerFunc) ProcessTask(ctx context.Context, task *Task) error {
	return h.Fn(ctx, task)
}

// TaskTypes 返回支持的任务类型
func (h HandlerFunc) TaskTypes() []TaskType {
	return h.Types
}

// loggingHandler 在处理前后记录日志和耗时的Handler包装
type loggingHandler struct {
	inner  Handler
	logger *logrus.Logger
}

// WithLogging 包装处理器，记录每个任务的开始、结束和耗时
func WithLogging(handler Handler, logger *logrus.Logger) Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &loggingHandler{inner: handler, logger: logger}
}

// ProcessTask 处理任务并记录结果
func (h *loggingHandler) ProcessTask(ctx context.Context, task *Task) error {
	entry := h.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   task.Type,
		"document_id": task.DocumentID,
	})

	entry.Info("Processing task")
	start := time.Now()

	err := h.inner.ProcessTask(ctx, task)
	elapsed := time.Since(start)

	if err != nil {
		entry.WithError(err).WithField("elapsed", elapsed.String()).Error("Task processing failed")
		return err
	}

	entry.WithField("elapsed", elapsed.String()).Info("Task processed successfully")
	return nil
}

// TaskTypes 返回支持的任务类型
func (h *loggingHandler) TaskTypes() []TaskType {
	return h.inner.TaskTypes()
}
