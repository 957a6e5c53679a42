package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fyerfyer/docchat/internal/document"
	"github.com/fyerfyer/docchat/internal/embedding"
	"github.com/fyerfyer/docchat/internal/models"
	"github.com/fyerfyer/docchat/internal/repository"
	"github.com/fyerfyer/docchat/internal/vectordb"
	"github.com/fyerfyer/docchat/pkg/storage"
	"github.com/fyerfyer/docchat/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// DocumentService 文档服务
// 协调文档的存储、解析、分块、向量化和入库
type DocumentService struct {
	storage       storage.Storage               // 文件存储服务
	splitter      document.Splitter             // 文本分块器
	embedder      embedding.Client              // 嵌入模型客户端
	batcher       *embedding.BatchProcessor     // 批量嵌入处理器
	vectorDB      vectordb.Repository           // 向量数据库
	repo          repository.DocumentRepository // 文档元数据仓储
	statusManager *DocumentStatusManager        // 文档状态管理器
	taskQueue     taskqueue.Queue               // 任务队列
	asyncEnabled  bool                          // 是否启用异步处理
	chunkSize     int                           // 分块大小（字符数）
	chunkOverlap  int                           // 分块重叠（字符数）
	batchSize     int                           // 向量化批处理大小
	timeout       time.Duration                 // 同步处理超时时间
	logger        *logrus.Logger                // 日志记录器
}

// DocumentOption 文档服务配置选项
type DocumentOption func(*DocumentService)

// NewDocumentService 创建文档服务实例
func NewDocumentService(
	store storage.Storage,
	splitter document.Splitter,
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	repo repository.DocumentRepository,
	opts ...DocumentOption,
) *DocumentService {
	srv := &DocumentService{
		storage:      store,
		splitter:     splitter,
		embedder:     embedder,
		vectorDB:     vectorDB,
		repo:         repo,
		chunkSize:    document.DefaultSplitterConfig().ChunkSize,
		chunkOverlap: document.DefaultSplitterConfig().ChunkOverlap,
		batchSize:    16,
		timeout:      5 * time.Minute,
		logger:       logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.statusManager == nil {
		srv.statusManager = NewDocumentStatusManager(srv.repo, srv.logger)
	}
	srv.batcher = embedding.NewBatchProcessor(srv.embedder, srv.batchSize, 0)

	return srv
}

// WithBatchSize 设置向量化批处理大小
func WithBatchSize(size int) DocumentOption {
	return func(s *DocumentService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithChunking 设置分块参数
func WithChunking(size, overlap int) DocumentOption {
	return func(s *DocumentService) {
		if size > 0 {
			s.chunkSize = size
		}
		if overlap >= 0 {
			s.chunkOverlap = overlap
		}
	}
}

// WithTimeout 设置同步处理超时时间
func WithTimeout(timeout time.Duration) DocumentOption {
	return func(s *DocumentService) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) DocumentOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStatusManager 设置文档状态管理器
func WithStatusManager(manager *DocumentStatusManager) DocumentOption {
	return func(s *DocumentService) {
		s.statusManager = manager
	}
}

// WithTaskQueue 设置任务队列并启用异步处理
func WithTaskQueue(queue taskqueue.Queue) DocumentOption {
	return func(s *DocumentService) {
		s.taskQueue = queue
		s.asyncEnabled = queue != nil
	}
}

// WithAsyncProcessing 设置是否启用异步处理
func WithAsyncProcessing(enabled bool) DocumentOption {
	return func(s *DocumentService) {
		s.asyncEnabled = enabled
	}
}

// UploadDocument 上传文档并触发处理
// 文件先落到存储层，再进入解析、分块、向量化流水线
func (s *DocumentService) UploadDocument(ctx context.Context, reader io.Reader, filename string) (*models.Document, error) {
	if filename == "" {
		return nil, errors.New("filename cannot be empty")
	}

	if document.DetectContentType(filename) == document.Unknown {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}

	fileInfo, err := s.storage.Save(reader, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	if err := s.statusManager.MarkAsUploaded(ctx, fileInfo.ID, filename, fileInfo.Path, fileInfo.Size); err != nil {
		return nil, fmt.Errorf("failed to record document: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":  fileInfo.ID,
		"filename": filename,
		"size":     fileInfo.Size,
	}).Info("Document uploaded")

	if err := s.ProcessDocument(ctx, fileInfo.ID); err != nil {
		return nil, err
	}

	return s.statusManager.GetDocument(ctx, fileInfo.ID)
}

// IngestDirectory 扫描目录并导入其中所有支持的文档
// 返回成功导入的文档数量
func (s *DocumentService) IngestDirectory(ctx context.Context, dir string) (int, error) {
	loader := document.NewDirectoryLoader(dir)
	paths, err := loader.Scan()
	if err != nil {
		return 0, fmt.Errorf("failed to scan directory: %w", err)
	}

	imported := 0
	totalChars := 0
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to open file, skipping")
			continue
		}

		doc, err := s.UploadDocument(ctx, file, filepath.Base(path))
		file.Close()
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to ingest file, skipping")
			continue
		}
		imported++
		totalChars += doc.CharCount
	}

	s.logger.WithFields(logrus.Fields{
		"dir":        dir,
		"scanned":    len(paths),
		"imported":   imported,
		"char_count": totalChars,
	}).Info("Directory ingestion finished")

	return imported, nil
}

// ProcessDocument 处理文档（解析、分块、向量化、入库）
// 配置了任务队列时入队异步处理，否则在当前进程同步处理
func (s *DocumentService) ProcessDocument(ctx context.Context, fileID string) error {
	if fileID == "" {
		return errors.New("fileID cannot be empty")
	}

	if s.asyncEnabled && s.taskQueue != nil {
		return s.processDocumentAsync(ctx, fileID)
	}

	return s.processDocumentSync(ctx, fileID)
}

// processDocumentSync 在当前进程中同步处理文档
func (s *DocumentService) processDocumentSync(ctx context.Context, fileID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).WithField("file_id", fileID).Error("Failed to mark document as processing")
	}

	_, err := s.runPipeline(ctx, fileID)
	return err
}

// runPipeline 执行解析、分块、向量化和入库的完整流水线
func (s *DocumentService) runPipeline(ctx context.Context, fileID string) (*taskqueue.IngestResult, error) {
	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	text, err := s.parseDocument(fileID, doc.FileName)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to parse document: %v", err))
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	segments, err := s.splitter.Split(text)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to split content: %v", err))
		return nil, fmt.Errorf("failed to split content: %w", err)
	}

	if err := s.storeSegments(ctx, fileID, doc.FileName, segments); err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to store segments: %v", err))
		return nil, err
	}

	charCount := len([]rune(text))
	if err := s.statusManager.MarkAsCompleted(ctx, fileID, charCount, len(segments)); err != nil {
		// 分块已入库，文档可用，状态更新失败仅记录
		s.logger.WithError(err).WithField("file_id", fileID).Error("Failed to mark document as completed")
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":       fileID,
		"char_count":    charCount,
		"segment_count": len(segments),
	}).Info("Document processing completed")

	return &taskqueue.IngestResult{
		DocumentID:   fileID,
		CharCount:    charCount,
		SegmentCount: len(segments),
		VectorCount:  len(segments),
		Dimension:    s.vectorDB.GetDimension(),
		Model:        s.embedder.Name(),
	}, nil
}

// parseDocument 从存储读取文件并解析出纯文本
func (s *DocumentService) parseDocument(fileID string, fileName string) (string, error) {
	reader, err := s.storage.Get(fileID)
	if err != nil {
		return "", fmt.Errorf("failed to get file from storage: %w", err)
	}
	defer reader.Close()

	parser, err := document.ParserFactory(fileName)
	if err != nil {
		return "", err
	}

	return parser.ParseReader(reader, fileName)
}

// storeSegments 向量化分块并写入向量库和元数据库
// 嵌入由批处理器分批并行执行
func (s *DocumentService) storeSegments(ctx context.Context, fileID string, fileName string, segments []document.Content) error {
	if len(segments) == 0 {
		return nil
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	vectors, err := s.batcher.Process(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	docs := make([]vectordb.Document, len(segments))
	dbSegments := make([]*models.DocumentSegment, len(segments))
	for i, seg := range segments {
		segmentID := fmt.Sprintf("%s_%d", fileID, seg.Index)

		docs[i] = vectordb.Document{
			ID:        segmentID,
			FileID:    fileID,
			FileName:  fileName,
			Position:  seg.Index,
			Text:      seg.Text,
			Vector:    vectors[i],
			CreatedAt: time.Now(),
		}

		dbSegments[i] = &models.DocumentSegment{
			DocumentID: fileID,
			SegmentID:  segmentID,
			Position:   seg.Index,
			Text:       seg.Text,
			VectorID:   segmentID,
		}
	}

	if err := s.vectorDB.AddBatch(docs); err != nil {
		return fmt.Errorf("failed to store vectors: %w", err)
	}

	if err := s.repo.WithContext(ctx).SaveSegments(dbSegments); err != nil {
		return fmt.Errorf("failed to save segments: %w", err)
	}

	return nil
}

// DeleteDocument 删除文档及其全部关联数据
func (s *DocumentService) DeleteDocument(ctx context.Context, fileID string) error {
	s.logger.WithField("file_id", fileID).Info("Deleting document")

	// 1. 删除向量库中的分块向量
	if err := s.vectorDB.DeleteByFileID(fileID); err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	// 2. 删除存储层的原始文件，文件可能已不存在
	if err := s.storage.Delete(fileID); err != nil {
		s.logger.WithError(err).WithField("file_id", fileID).Warn("Failed to delete file from storage")
	}

	// 3. 删除文档记录和分块记录，仓储会一并清理关联任务
	if err := s.statusManager.DeleteDocument(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	s.logger.WithField("file_id", fileID).Info("Document deleted")
	return nil
}

// GetDocument 获取文档元数据
func (s *DocumentService) GetDocument(ctx context.Context, fileID string) (*models.Document, error) {
	return s.statusManager.GetDocument(ctx, fileID)
}

// GetDocumentStatus 获取文档处理状态
func (s *DocumentService) GetDocumentStatus(ctx context.Context, fileID string) (models.DocumentStatus, error) {
	return s.statusManager.GetStatus(ctx, fileID)
}

// GetDocumentSegments 获取文档的所有分块
func (s *DocumentService) GetDocumentSegments(ctx context.Context, fileID string) ([]*models.DocumentSegment, error) {
	return s.repo.WithContext(ctx).GetSegments(fileID)
}

// CountDocumentSegments 统计文档分块数量
func (s *DocumentService) CountDocumentSegments(ctx context.Context, fileID string) (int, error) {
	return s.repo.WithContext(ctx).CountSegments(fileID)
}

// ListDocuments 获取文档列表
func (s *DocumentService) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	return s.statusManager.ListDocuments(ctx, offset, limit, filters)
}

// UpdateDocumentTags 更新文档标签
func (s *DocumentService) UpdateDocumentTags(ctx context.Context, fileID string, tags string) error {
	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	doc.Tags = tags
	return s.repo.WithContext(ctx).Update(doc)
}

// failDocument 将文档标记为失败状态
func (s *DocumentService) failDocument(ctx context.Context, fileID string, errorMsg string) {
	if err := s.statusManager.MarkAsFailed(ctx, fileID, errorMsg); err != nil {
		s.logger.WithError(err).WithField("file_id", fileID).Error("Failed to mark document as failed")
	}
}

// StatusManager 返回文档状态管理器实例
func (s *DocumentService) StatusManager() *DocumentStatusManager {
	return s.statusManager
}

// TaskQueue 返回任务队列实例
func (s *DocumentService) TaskQueue() taskqueue.Queue {
	return s.taskQueue
}
