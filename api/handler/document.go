package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fyerfyer/docchat/api/middleware"
	"github.com/fyerfyer/docchat/api/model"
	"github.com/fyerfyer/docchat/internal/models"
	"github.com/fyerfyer/docchat/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DocumentHandler 处理文档相关的API请求
type DocumentHandler struct {
	documents *services.DocumentService // 文档服务
	logger    *logrus.Logger            // 日志记录器
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(documents *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		logger:    middleware.GetLogger(),
	}
}

// UploadDocument 处理文档上传请求
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid document upload request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	filename := req.File.Filename
	if !isValidFileType(filepath.Ext(filename)) {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"不支持的文件类型，仅支持 .pdf, .md, .markdown, .txt",
		))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		h.logger.WithError(err).WithField("filename", filename).Error("Failed to open uploaded file")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"无法打开上传的文件",
		))
		return
	}
	defer file.Close()

	doc, err := h.documents.UploadDocument(c.Request.Context(), file, filename)
	if err != nil {
		h.logger.WithError(err).WithField("filename", filename).Error("Failed to upload document")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"文档导入失败",
		))
		return
	}

	if req.Tags != "" {
		if err := h.documents.UpdateDocumentTags(c.Request.Context(), doc.ID, req.Tags); err != nil {
			h.logger.WithError(err).WithField("file_id", doc.ID).Warn("Failed to set document tags")
		}
	}

	h.logger.WithFields(logrus.Fields{
		"file_id":  doc.ID,
		"filename": doc.FileName,
		"status":   doc.Status,
	}).Info("Document uploaded")

	resp := model.DocumentUploadResponse{
		FileID:   doc.ID,
		FileName: doc.FileName,
		Status:   string(doc.Status),
		TaskID:   doc.TaskID,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetDocumentStatus 获取文档处理状态
// GET /api/documents/:id/status
func (h *DocumentHandler) GetDocumentStatus(c *gin.Context) {
	var req model.DocumentStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	doc, err := h.documents.GetDocument(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "文档不存在"))
			return
		}

		h.logger.WithError(err).WithField("file_id", req.ID).Error("Failed to get document")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取文档信息失败",
		))
		return
	}

	resp := model.DocumentStatusResponse{
		FileID:    doc.ID,
		Status:    string(doc.Status),
		FileName:  doc.FileName,
		Error:     doc.Error,
		CharCount: doc.CharCount,
		Segments:  doc.SegmentCount,
		CreatedAt: doc.UploadedAt.Format(time.RFC3339),
		UpdatedAt: doc.UpdatedAt.Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ListDocuments 获取文档列表
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var req model.DocumentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的查询参数"))
		return
	}

	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.Tags != "" {
		filters["tags"] = req.Tags
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	docs, total, err := h.documents.ListDocuments(c.Request.Context(), offset, req.GetPageSize(), filters)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list documents")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取文档列表失败",
		))
		return
	}

	infos := make([]model.DocumentInfo, 0, len(docs))
	for _, doc := range docs {
		infos = append(infos, model.DocumentInfo{
			FileID:     doc.ID,
			FileName:   doc.FileName,
			FileType:   doc.FileType,
			Status:     string(doc.Status),
			Tags:       doc.Tags,
			UploadTime: doc.UploadedAt,
			Segments:   doc.SegmentCount,
		})
	}

	resp := model.DocumentListResponse{
		Total:     total,
		Page:      req.GetPage(),
		PageSize:  req.GetPageSize(),
		Documents: infos,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// DeleteDocument 删除文档
// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	var req model.DocumentDeleteRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	if err := h.documents.DeleteDocument(c.Request.Context(), req.ID); err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "文档不存在"))
			return
		}

		h.logger.WithError(err).WithField("file_id", req.ID).Error("Failed to delete document")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"删除文档失败",
		))
		return
	}

	h.logger.WithField("file_id", req.ID).Info("Document deleted")

	resp := model.DocumentDeleteResponse{
		Success: true,
		FileID:  req.ID,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ReindexDocument 重建文档索引
// POST /api/documents/:id/reindex
func (h *DocumentHandler) ReindexDocument(c *gin.Context) {
	var req model.DocumentReindexRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	if err := h.documents.ReindexDocument(c.Request.Context(), req.ID); err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "文档不存在"))
			return
		}

		h.logger.WithError(err).WithField("file_id", req.ID).Error("Failed to reindex document")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"重建索引失败",
		))
		return
	}

	status, err := h.documents.GetDocumentStatus(c.Request.Context(), req.ID)
	if err != nil {
		status = models.DocStatusProcessing
	}

	resp := model.DocumentReindexResponse{
		FileID: req.ID,
		Status: string(status),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// isValidFileType 检查文件扩展名是否受支持
func isValidFileType(ext string) bool {
	validTypes := map[string]bool{
		".pdf":      true,
		".md":       true,
		".markdown": true,
		".txt":      true,
	}
	return validTypes[ext]
}
