package handler

import (
	"errors"
	"net/http"

	"github.com/fyerfyer/docchat/api/middleware"
	"github.com/fyerfyer/docchat/api/model"
	"github.com/fyerfyer/docchat/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TaskHandler 处理异步任务相关的API请求
type TaskHandler struct {
	queue  taskqueue.Queue // 任务队列
	logger *logrus.Logger  // 日志记录器
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(queue taskqueue.Queue) *TaskHandler {
	return &TaskHandler{
		queue:  queue,
		logger: middleware.GetLogger(),
	}
}

// GetTaskStatus 获取任务状态
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"任务ID不能为空",
		))
		return
	}

	task, err := h.queue.GetTask(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(
				http.StatusNotFound,
				"任务不存在",
			))
			return
		}

		h.logger.WithError(err).WithField("task_id", taskID).Error("Failed to get task")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取任务状态失败",
		))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(toTaskStatusResponse(task)))
}

// ListDocumentTasks 获取文档关联的任务列表
// GET /api/documents/:id/tasks
func (h *TaskHandler) ListDocumentTasks(c *gin.Context) {
	var req model.DocumentTasksRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	tasks, err := h.queue.GetTasksByDocument(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithError(err).WithField("document_id", req.ID).Error("Failed to list document tasks")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取任务列表失败",
		))
		return
	}

	infos := make([]model.TaskStatusResponse, 0, len(tasks))
	for _, task := range tasks {
		infos = append(infos, toTaskStatusResponse(task))
	}

	resp := model.TaskListResponse{
		DocumentID: req.ID,
		Tasks:      infos,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// toTaskStatusResponse 将任务转换为响应格式
func toTaskStatusResponse(task *taskqueue.Task) model.TaskStatusResponse {
	info := taskqueue.NewTaskInfo(task)
	return model.TaskStatusResponse{
		ID:          info.ID,
		Type:        string(info.Type),
		DocumentID:  info.DocumentID,
		Status:      string(info.Status),
		Error:       info.Error,
		Progress:    info.Progress,
		CreatedAt:   info.CreatedAt,
		StartedAt:   info.StartedAt,
		CompletedAt: info.CompletedAt,
	}
}
