package api

import (
	"github.com/fyerfyer/docchat/api/handler"
	"github.com/fyerfyer/docchat/api/middleware"
	"github.com/fyerfyer/docchat/api/model"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件，taskHandler在未启用任务队列时可为nil
func SetupRouter(
	docHandler *handler.DocumentHandler,
	chatHandler *handler.ChatHandler,
	qaHandler *handler.QAHandler,
	taskHandler *handler.TaskHandler,
) *gin.Engine {
	registerValidations()

	router := gin.New()

	// 应用全局中间件
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.SetTraceID())

	// 在调试模式下记录请求体和响应体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
		router.Use(middleware.ResponseLogger())
	}

	api := router.Group("/api")
	{
		// 文档管理API
		docGroup := api.Group("/documents")
		{
			// 上传文档 - POST /api/documents
			docGroup.POST("", docHandler.UploadDocument)

			// 获取文档列表 - GET /api/documents
			docGroup.GET("", docHandler.ListDocuments)

			// 获取文档状态 - GET /api/documents/:id/status
			docGroup.GET("/:id/status", docHandler.GetDocumentStatus)

			// 重建文档索引 - POST /api/documents/:id/reindex
			docGroup.POST("/:id/reindex", docHandler.ReindexDocument)

			// 删除文档 - DELETE /api/documents/:id
			docGroup.DELETE("/:id", docHandler.DeleteDocument)

			// 文档任务列表 - GET /api/documents/:id/tasks
			if taskHandler != nil {
				docGroup.GET("/:id/tasks", taskHandler.ListDocumentTasks)
			}
		}

		// 对话会话API
		chatGroup := api.Group("/chats")
		{
			// 创建会话 - POST /api/chats
			chatGroup.POST("", chatHandler.CreateChat)

			// 会话列表 - GET /api/chats
			chatGroup.GET("", chatHandler.ListChats)

			// 会话历史 - GET /api/chats/:session_id
			chatGroup.GET("/:session_id", chatHandler.GetChatHistory)

			// 会话内提问 - POST /api/chats/:session_id/messages
			chatGroup.POST("/:session_id/messages", chatHandler.SendMessage)

			// 重命名会话 - PATCH /api/chats/:session_id
			chatGroup.PATCH("/:session_id", chatHandler.RenameChat)

			// 删除会话 - DELETE /api/chats/:session_id
			chatGroup.DELETE("/:session_id", chatHandler.DeleteChat)
		}

		// 问答API - POST /api/qa
		api.POST("/qa", qaHandler.AnswerQuestion)

		// 任务状态API - GET /api/tasks/:id
		if taskHandler != nil {
			api.GET("/tasks/:id", taskHandler.GetTaskStatus)
		}

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// registerValidations 向gin的binding引擎注册自定义校验规则
func registerValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("taglist", model.TagListValidator)
	}
}

// Cors 跨域资源共享中间件
// 需要支持浏览器跨域请求时启用
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
