package handler

import (
	"net/http"

	"github.com/fyerfyer/docchat/api/middleware"
	"github.com/fyerfyer/docchat/api/model"
	"github.com/fyerfyer/docchat/internal/llm"
	"github.com/fyerfyer/docchat/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// QAHandler 处理问答相关的API请求
type QAHandler struct {
	qa     *services.QAService // 问答服务
	logger *logrus.Logger      // 日志记录器
}

// NewQAHandler 创建新的问答处理器
func NewQAHandler(qa *services.QAService) *QAHandler {
	return &QAHandler{
		qa:     qa,
		logger: middleware.GetLogger(),
	}
}

// AnswerQuestion 处理问答请求
// POST /api/qa
// 带session_id时在会话内多轮问答并累积历史，否则执行一次性问答
func (h *QAHandler) AnswerQuestion(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid question request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	ctx := c.Request.Context()

	if req.SessionID == "" {
		if req.FileID != "" {
			c.JSON(http.StatusBadRequest, model.NewErrorResponse(
				http.StatusBadRequest,
				"指定文件问答需要提供会话ID",
			))
			return
		}

		h.logger.WithField("question", req.Question).Info("One-off question")

		result, err := h.qa.AnswerOnce(ctx, req.Question)
		if err != nil {
			h.logger.WithError(err).WithField("question", req.Question).Error("Failed to answer question")
			c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
				http.StatusInternalServerError,
				"处理问题时出错",
			))
			return
		}

		c.JSON(http.StatusOK, model.NewSuccessResponse(model.QAResponse{
			Question: result.Question,
			Answer:   result.Answer,
			Sources:  model.ConvertSources(result.Sources),
		}))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"question":   req.Question,
		"file_id":    req.FileID,
	}).Info("Session question")

	var (
		result *llm.ChainResponse
		err    error
	)
	if req.FileID != "" {
		result, err = h.qa.AskWithFile(ctx, req.SessionID, req.Question, req.FileID)
	} else {
		result, err = h.qa.Ask(ctx, req.SessionID, req.Question)
	}
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": req.SessionID,
			"question":   req.Question,
		}).Error("Failed to answer question")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"处理问题时出错",
		))
		return
	}

	resp := model.QAResponse{
		SessionID: req.SessionID,
		Question:  result.Question,
		Answer:    result.Answer,
		Sources:   model.ConvertSources(result.Sources),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
