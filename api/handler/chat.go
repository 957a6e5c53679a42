package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fyerfyer/docchat/api/middleware"
	"github.com/fyerfyer/docchat/api/model"
	"github.com/fyerfyer/docchat/internal/llm"
	"github.com/fyerfyer/docchat/internal/models"
	"github.com/fyerfyer/docchat/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ChatHandler 处理对话会话相关的API请求
type ChatHandler struct {
	chats  *services.ChatService // 对话服务
	qa     *services.QAService   // 问答服务
	logger *logrus.Logger        // 日志记录器
}

// NewChatHandler 创建新的对话处理器
func NewChatHandler(chats *services.ChatService, qa *services.QAService) *ChatHandler {
	return &ChatHandler{
		chats:  chats,
		qa:     qa,
		logger: middleware.GetLogger(),
	}
}

// CreateChat 创建新的对话会话
// POST /api/chats
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req model.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid create chat request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	session, err := h.chats.CreateChat(c.Request.Context(), req.Title)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create chat session")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"创建对话会话失败",
		))
		return
	}

	resp := model.CreateChatResponse{
		SessionID: session.ID,
		Title:     session.Title,
		CreatedAt: session.CreatedAt,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// SendMessage 会话内提问
// POST /api/chats/:session_id/messages
// 问题和回答都会写入会话历史
func (h *ChatHandler) SendMessage(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的会话ID"))
		return
	}

	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid send message request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	if _, err := h.chats.GetChatSession(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(
			http.StatusNotFound,
			"对话会话不存在",
		))
		return
	}

	var result *llm.ChainResponse
	var err error
	if req.FileID != "" {
		result, err = h.qa.AskWithFile(c.Request.Context(), sessionID, req.Content, req.FileID)
	} else {
		result, err = h.qa.Ask(c.Request.Context(), sessionID, req.Content)
	}
	if err != nil {
		h.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to generate answer")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"生成回答失败",
		))
		return
	}

	resp := model.QAResponse{
		SessionID: sessionID,
		Question:  result.Question,
		Answer:    result.Answer,
		Sources:   model.ConvertSources(result.Sources),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetChatHistory 获取对话历史记录
// GET /api/chats/:session_id
func (h *ChatHandler) GetChatHistory(c *gin.Context) {
	var req model.GetChatHistoryRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid chat history request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的会话ID",
		))
		return
	}
	if err := c.ShouldBindQuery(&req.PaginationRequest); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的分页参数",
		))
		return
	}

	session, err := h.chats.GetChatSession(c.Request.Context(), req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(
			http.StatusNotFound,
			"对话会话不存在",
		))
		return
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	messages, total, err := h.chats.GetChatMessages(c.Request.Context(), req.SessionID, offset, req.GetPageSize())
	if err != nil {
		h.logger.WithError(err).WithField("session_id", req.SessionID).Error("Failed to get chat messages")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取对话消息失败",
		))
		return
	}

	infos := make([]model.MessageInfo, 0, len(messages))
	for _, msg := range messages {
		var sources []model.QASourceInfo
		if len(msg.Sources) > 0 {
			var msgSources []models.Source
			if err := json.Unmarshal(msg.Sources, &msgSources); err == nil {
				sources = model.ConvertModelSources(msgSources)
			}
		}

		infos = append(infos, model.MessageInfo{
			ID:        strconv.Itoa(int(msg.ID)),
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
			Sources:   sources,
		})
	}

	resp := model.ChatHistoryResponse{
		SessionID: session.ID,
		Title:     session.Title,
		Total:     total,
		Messages:  infos,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ListChats 获取对话会话列表
// GET /api/chats
func (h *ChatHandler) ListChats(c *gin.Context) {
	var req model.ChatListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid chat list request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	chats, total, err := h.chats.GetChatsWithMessageCount(c.Request.Context(), offset, req.GetPageSize())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list chat sessions")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取对话会话列表失败",
		))
		return
	}

	infos := make([]model.ChatInfo, 0, len(chats))
	for _, chat := range chats {
		info := model.ChatInfo{
			SessionID: chat["id"].(string),
			Title:     chat["title"].(string),
		}
		if createdAt, ok := chat["created_at"].(time.Time); ok {
			info.CreatedAt = createdAt
		}
		if updatedAt, ok := chat["updated_at"].(time.Time); ok {
			info.UpdatedAt = updatedAt
		}
		if count, ok := chat["message_count"].(int64); ok {
			info.MessageCount = int(count)
		}
		infos = append(infos, info)
	}

	resp := model.ChatListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Chats:    infos,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// RenameChat 重命名对话会话
// PATCH /api/chats/:session_id
func (h *ChatHandler) RenameChat(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的会话ID"))
		return
	}

	var req model.RenameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid rename chat request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	if err := h.chats.RenameChatSession(c.Request.Context(), sessionID, req.Title); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"new_title":  req.Title,
		}).Error("Failed to rename chat session")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"重命名对话会话失败",
		))
		return
	}

	session, err := h.chats.GetChatSession(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusOK, model.NewSuccessResponse(model.RenameChatResponse{
			SessionID: sessionID,
			Title:     req.Title,
		}))
		return
	}

	resp := model.RenameChatResponse{
		SessionID: session.ID,
		Title:     session.Title,
		UpdatedAt: session.UpdatedAt,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// DeleteChat 删除对话会话
// DELETE /api/chats/:session_id
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	var req model.DeleteChatRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid delete chat request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的会话ID",
		))
		return
	}

	if err := h.chats.DeleteChatSession(c.Request.Context(), req.SessionID); err != nil {
		h.logger.WithError(err).WithField("session_id", req.SessionID).Error("Failed to delete chat session")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"删除对话会话失败",
		))
		return
	}

	resp := model.DeleteChatResponse{
		Success:   true,
		SessionID: req.SessionID,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
