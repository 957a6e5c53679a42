package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/docchat/internal/llm"
	"github.com/fyerfyer/docchat/internal/models"
	"github.com/fyerfyer/docchat/internal/repository"
	"github.com/sirupsen/logrus"
)

// ChatService 对话服务
// 管理会话和消息，问答历史通过它累积
type ChatService struct {
	repo   repository.ChatRepository // 聊天仓储接口
	logger *logrus.Logger            // 日志记录器
}

// ChatOption 对话服务配置选项
type ChatOption func(*ChatService)

// NewChatService 创建对话服务实例
func NewChatService(repo repository.ChatRepository, opts ...ChatOption) *ChatService {
	service := &ChatService{
		repo:   repo,
		logger: logrus.New(),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// WithChatLogger 设置日志记录器
func WithChatLogger(logger *logrus.Logger) ChatOption {
	return func(s *ChatService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// CreateChat 创建新的对话会话
func (s *ChatService) CreateChat(ctx context.Context, title string) (*models.ChatSession, error) {
	if title == "" {
		title = "新对话 " + time.Now().Format("2006-01-02 15:04:05")
	}

	session := &models.ChatSession{
		Title: title,
	}

	if err := s.repo.WithContext(ctx).CreateSession(session); err != nil {
		s.logger.WithError(err).Error("Failed to create chat session")
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	s.logger.WithField("session_id", session.ID).Info("Chat session created")
	return session, nil
}

// GetChatSession 获取对话会话详情
func (s *ChatService) GetChatSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	session, err := s.repo.WithContext(ctx).GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}

	return session, nil
}

// ListChatSessions 列出对话会话
func (s *ChatService) ListChatSessions(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.ChatSession, int64, error) {
	sessions, total, err := s.repo.WithContext(ctx).ListSessions(offset, limit, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list chat sessions: %w", err)
	}

	return sessions, total, nil
}

// RenameChatSession 重命名对话会话
func (s *ChatService) RenameChatSession(ctx context.Context, sessionID string, newTitle string) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if newTitle == "" {
		return errors.New("new title cannot be empty")
	}

	repo := s.repo.WithContext(ctx)

	session, err := repo.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("failed to get chat session: %w", err)
	}

	session.Title = newTitle
	if err := repo.UpdateSession(session); err != nil {
		return fmt.Errorf("failed to rename chat session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"new_title":  newTitle,
	}).Info("Chat session renamed")
	return nil
}

// DeleteChatSession 删除对话会话及其所有消息
func (s *ChatService) DeleteChatSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	if err := s.repo.WithContext(ctx).DeleteSession(sessionID); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to delete chat session")
		return fmt.Errorf("failed to delete chat session: %w", err)
	}

	s.logger.WithField("session_id", sessionID).Info("Chat session deleted")
	return nil
}

// AddMessage 追加一条对话消息
func (s *ChatService) AddMessage(ctx context.Context, sessionID string, role models.MessageRole, content string) (*models.ChatMessage, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}
	if content == "" {
		return nil, errors.New("message content cannot be empty")
	}

	// 角色非法时按用户消息处理
	if role != models.RoleUser && role != models.RoleSystem && role != models.RoleAssistant {
		role = models.RoleUser
	}

	message := &models.ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}

	if err := s.repo.WithContext(ctx).CreateMessage(message); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"role":       role,
		}).Error("Failed to add chat message")
		return nil, fmt.Errorf("failed to add chat message: %w", err)
	}

	return message, nil
}

// SaveAnswerWithSources 保存助手回答及其引用来源
func (s *ChatService) SaveAnswerWithSources(ctx context.Context, sessionID string, answer string, sources []models.Source) (*models.ChatMessage, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}
	if answer == "" {
		return nil, errors.New("answer cannot be empty")
	}

	message := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   answer,
		CreatedAt: time.Now(),
	}

	if len(sources) > 0 {
		sourcesJSON, err := json.Marshal(sources)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sources: %w", err)
		}
		message.Sources = sourcesJSON
	}

	if err := s.repo.WithContext(ctx).CreateMessage(message); err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id":    sessionID,
		"sources_count": len(sources),
	}).Info("Answer with sources saved")
	return message, nil
}

// GetChatMessages 获取会话消息列表，按时间升序
func (s *ChatService) GetChatMessages(ctx context.Context, sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error) {
	if sessionID == "" {
		return nil, 0, errors.New("session ID cannot be empty")
	}

	messages, total, err := s.repo.WithContext(ctx).GetMessages(sessionID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get chat messages: %w", err)
	}

	return messages, total, nil
}

// CountChatMessages 统计会话消息数量
func (s *ChatService) CountChatMessages(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, errors.New("session ID cannot be empty")
	}

	return s.repo.WithContext(ctx).CountMessages(sessionID)
}

// BuildHistory 把会话最近的消息转换成模型对话历史
// 返回按时间升序的消息列表，供问题改写使用
func (s *ChatService) BuildHistory(ctx context.Context, sessionID string, limit int) ([]llm.Message, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	messages, err := s.repo.WithContext(ctx).GetRecentMessages(sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}

	history := make([]llm.Message, 0, len(messages))
	for _, msg := range messages {
		history = append(history, llm.Message{
			Role:    llm.MessageRole(msg.Role),
			Content: msg.Content,
		})
	}

	return history, nil
}

// GetChatsWithMessageCount 获取带消息数量的会话列表
func (s *ChatService) GetChatsWithMessageCount(ctx context.Context, offset, limit int) ([]map[string]interface{}, int64, error) {
	repo := s.repo.WithContext(ctx)

	sessions, total, err := repo.ListSessions(offset, limit, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list chat sessions: %w", err)
	}

	result := make([]map[string]interface{}, len(sessions))
	for i, session := range sessions {
		count, err := repo.CountMessages(session.ID)
		if err != nil {
			s.logger.WithError(err).WithField("session_id", session.ID).Warn("Failed to count messages")
			count = 0
		}

		result[i] = map[string]interface{}{
			"id":            session.ID,
			"title":         session.Title,
			"created_at":    session.CreatedAt,
			"updated_at":    session.UpdatedAt,
			"message_count": count,
		}
	}

	return result, total, nil
}
