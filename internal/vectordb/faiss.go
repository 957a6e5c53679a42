//go:build cgo

package vectordb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 基于Faiss索引的向量仓库
// 向量交给Faiss索引管理，文档元数据保存在内存映射中并随索引一起落盘
type FaissRepository struct {
	mu             sync.RWMutex
	index          faiss.Index
	dimension      int
	distType       DistanceType
	documents      map[string]Document // 文档ID到文档的映射
	fileToDocIDs   map[string][]string // 文件ID到文档ID的映射
	idToPosition   map[string]int      // 文档ID到索引位置的映射
	positionToID   map[int]string      // 索引位置到文档ID的反向映射
	indexPath      string              // 索引文件路径
	metaPath       string              // 元数据文件路径
	saveOnClose    bool                // 关闭时是否保存
	autoSaveCount  int                 // 累计多少次写操作后自动保存
	operationCount int                 // 自上次保存以来的写操作数
}

// NewFaissRepository 创建新的Faiss向量仓库
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	indexPath := ""
	metaPath := ""
	if config.Path != "" && !config.InMemory {
		indexPath = config.Path
		metaPath = indexPath + ".meta.json"
		if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	repo := &FaissRepository{
		dimension:     config.Dimension,
		distType:      distType,
		documents:     make(map[string]Document),
		fileToDocIDs:  make(map[string][]string),
		idToPosition:  make(map[string]int),
		positionToID:  make(map[int]string),
		indexPath:     indexPath,
		metaPath:      metaPath,
		saveOnClose:   true,
		autoSaveCount: 100,
	}

	var index faiss.Index
	var err error

	// 尝试从文件加载索引
	if indexPath != "" && fileExists(indexPath) {
		index, err = faiss.ReadIndex(indexPath, 0)
		if err != nil {
			if !config.CreateIfNotExists {
				return nil, fmt.Errorf("failed to read index file: %v", err)
			}
			index, err = createFaissIndex(config.Dimension, distType)
			if err != nil {
				return nil, fmt.Errorf("failed to create Faiss index: %v", err)
			}
		} else if err := repo.loadMetadata(); err != nil {
			return nil, fmt.Errorf("failed to load index metadata: %v", err)
		}
	} else {
		index, err = createFaissIndex(config.Dimension, distType)
		if err != nil {
			return nil, fmt.Errorf("failed to create Faiss index: %v", err)
		}
	}

	repo.index = index
	return repo, nil
}

// createFaissIndex 创建Faiss索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	var metric int
	switch distType {
	case Cosine, DotProduct:
		metric = faiss.MetricInnerProduct
	case Euclidean:
		metric = faiss.MetricL2
	default:
		metric = faiss.MetricL2
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// Add 添加单个文档到仓库
func (r *FaissRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 批量添加文档到仓库
func (r *FaissRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	// 先复制一份再补默认值和归一化，不改写调用方的数据
	prepared := make([]Document, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(doc.Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for document %s: %w", doc.ID, err)
		}

		// 对于余弦距离，归一化后内积等价于余弦相似度
		if r.distType == Cosine {
			doc.Vector = normalizeVector(doc.Vector)
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{})
		}
		prepared[i] = doc
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	startPos := int(r.index.Ntotal())
	for _, doc := range prepared {
		if err := r.index.Add(doc.Vector); err != nil {
			return fmt.Errorf("failed to add vector to index: %v", err)
		}
	}

	for i, doc := range prepared {
		position := startPos + i
		r.documents[doc.ID] = doc
		r.idToPosition[doc.ID] = position
		r.positionToID[position] = doc.ID
		r.fileToDocIDs[doc.FileID] = append(r.fileToDocIDs[doc.FileID], doc.ID)
	}

	r.operationCount += len(docs)
	return r.autoSaveIfNeeded()
}

// Get 获取单个文档
func (r *FaissRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.documents[id]
	if !exists {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete 删除单个文档
// Faiss的Flat索引不支持原位删除，只移除元数据，向量留在索引中成为孤儿
func (r *FaissRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, exists := r.documents[id]
	if !exists {
		return ErrDocumentNotFound
	}

	delete(r.documents, id)
	if pos, ok := r.idToPosition[id]; ok {
		delete(r.positionToID, pos)
	}
	delete(r.idToPosition, id)
	r.removeFileMapping(doc.FileID, id)

	r.operationCount++
	return r.autoSaveIfNeeded()
}

// DeleteByFileID 删除指定文件的所有分块
func (r *FaissRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docIDs, exists := r.fileToDocIDs[fileID]
	if !exists {
		return nil
	}

	for _, id := range docIDs {
		delete(r.documents, id)
		if pos, ok := r.idToPosition[id]; ok {
			delete(r.positionToID, pos)
		}
		delete(r.idToPosition, id)
	}
	delete(r.fileToDocIDs, fileID)

	r.operationCount += len(docIDs)
	return r.autoSaveIfNeeded()
}

// removeFileMapping 从文件映射中移除单个文档ID
// 调用者必须持有写锁
func (r *FaissRepository) removeFileMapping(fileID, docID string) {
	fileIDs, ok := r.fileToDocIDs[fileID]
	if !ok {
		return
	}

	updatedIDs := make([]string, 0, len(fileIDs)-1)
	for _, id := range fileIDs {
		if id != docID {
			updatedIDs = append(updatedIDs, id)
		}
	}

	if len(updatedIDs) == 0 {
		delete(r.fileToDocIDs, fileID)
	} else {
		r.fileToDocIDs[fileID] = updatedIDs
	}
}

// Search 相似度搜索
func (r *FaissRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.documents) == 0 {
		return []SearchResult{}, nil
	}

	k := filter.MaxResults
	if k <= 0 {
		k = DefaultSearchFilter().MaxResults
	}

	// 过滤可能淘汰部分命中，多查一些再截断
	queryLimit := k * 2
	total := int(r.index.Ntotal())
	if queryLimit > total {
		queryLimit = total
	}
	if queryLimit == 0 {
		return []SearchResult{}, nil
	}

	distances, indices, err := r.index.Search(vector, int64(queryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}

	var results []SearchResult
	for i := 0; i < len(indices); i++ {
		idx := indices[i]
		if idx < 0 {
			continue
		}

		docID, ok := r.positionToID[int(idx)]
		if !ok {
			// 已删除文档留下的孤儿向量
			continue
		}
		doc, exists := r.documents[docID]
		if !exists {
			continue
		}

		if !matchFileIDs(doc, filter.FileIDs) {
			continue
		}
		if !matchMetadata(doc.Metadata, filter.Metadata) {
			continue
		}

		dist := distances[i]
		var score float32
		switch r.distType {
		case Cosine:
			// 内积索引直接返回余弦相似度
			score = dist
		default:
			score = DistanceToScore(dist, r.distType)
		}
		if score < filter.MinScore {
			continue
		}

		results = append(results, SearchResult{
			Document: doc,
			Score:    score,
			Distance: dist,
		})
		if len(results) >= k {
			break
		}
	}

	SortSearchResults(results)
	return results, nil
}

// Count 获取文档总数
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// GetDimension 返回向量维数
func (r *FaissRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭仓库，配置了持久化路径时保存索引
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveOnClose && r.indexPath != "" {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("failed to save index on close: %v", err)
		}
	}
	return nil
}

// autoSaveIfNeeded 写操作累计到阈值后保存索引
// 调用者必须持有写锁
func (r *FaissRepository) autoSaveIfNeeded() error {
	if r.indexPath == "" || r.operationCount < r.autoSaveCount {
		return nil
	}
	if err := r.saveIndex(); err != nil {
		return fmt.Errorf("auto-save failed: %v", err)
	}
	r.operationCount = 0
	return nil
}

// faissMetadata 索引元数据的序列化结构
type faissMetadata struct {
	Documents    map[string]Document `json:"documents"`
	FileToDocIDs map[string][]string `json:"file_to_doc_ids"`
	IDToPosition map[string]int      `json:"id_to_position"`
}

// saveIndex 保存索引和文档元数据到文件
func (r *FaissRepository) saveIndex() error {
	if r.indexPath == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(r.indexPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}

	metadata := faissMetadata{
		Documents:    r.documents,
		FileToDocIDs: r.fileToDocIDs,
		IDToPosition: r.idToPosition,
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

// loadMetadata 从文件加载文档元数据
func (r *FaissRepository) loadMetadata() error {
	if r.metaPath == "" || !fileExists(r.metaPath) {
		return nil
	}

	data, err := os.ReadFile(r.metaPath)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %v", err)
	}

	var metadata faissMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %v", err)
	}

	r.documents = metadata.Documents
	r.fileToDocIDs = metadata.FileToDocIDs
	r.idToPosition = metadata.IDToPosition
	r.positionToID = make(map[int]string, len(metadata.IDToPosition))
	for id, pos := range metadata.IDToPosition {
		r.positionToID[pos] = id
	}
	return nil
}

// fileExists 检查文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
