package vectordb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// 查询结果缓存的有效期和清理周期
const (
	queryCacheTTL     = 10 * time.Minute
	queryCacheCleanup = 30 * time.Minute
)

// MemoryRepository 内存向量仓库实现
// 文档保存在内存映射中，可选地通过JSON快照持久化到磁盘
type MemoryRepository struct {
	mu           sync.RWMutex
	dimension    int                 // 向量维度
	distType     DistanceType        // 距离计算类型
	documents    map[string]Document // 文档存储，ID到文档的映射
	fileToDocIDs map[string][]string // 文件ID到文档ID的映射
	queryCache   *gocache.Cache      // 查询结果缓存
	snapshotPath string              // 快照文件路径，为空时不持久化
}

// NewMemoryRepository 创建内存向量仓库
// 如果配置了持久化路径且快照文件存在，启动时会恢复其中的文档
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType := config.DistanceType
	if distType != Cosine && distType != DotProduct && distType != Euclidean {
		distType = Cosine // 默认使用余弦距离
	}

	snapshotPath := ""
	if config.Path != "" && !config.InMemory {
		snapshotPath = config.Path
	}

	repo := &MemoryRepository{
		dimension:    config.Dimension,
		distType:     distType,
		documents:    make(map[string]Document),
		fileToDocIDs: make(map[string][]string),
		queryCache:   gocache.New(queryCacheTTL, queryCacheCleanup),
		snapshotPath: snapshotPath,
	}

	if snapshotPath != "" {
		if err := repo.loadSnapshot(); err != nil {
			return nil, fmt.Errorf("failed to load vector snapshot: %v", err)
		}
	}

	return repo, nil
}

// Add 添加单个文档到内存仓库
func (r *MemoryRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 批量添加文档到内存仓库
func (r *MemoryRepository) AddBatch(docs []Document) error {
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

		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{})
		}

		// 对于余弦距离，预先归一化向量，搜索时只需计算点积
		if r.distType == Cosine {
			doc.Vector = normalizeVector(doc.Vector)
		}
		prepared[i] = doc
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, doc := range prepared {
		r.documents[doc.ID] = doc
		r.fileToDocIDs[doc.FileID] = append(r.fileToDocIDs[doc.FileID], doc.ID)
	}

	// 内容变化后缓存的查询结果不再有效
	r.queryCache.Flush()

	return nil
}

// Get 获取单个文档
func (r *MemoryRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.documents[id]
	if !exists {
		return Document{}, ErrDocumentNotFound
	}

	return doc, nil
}

// Delete 删除单个文档
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, exists := r.documents[id]
	if !exists {
		return ErrDocumentNotFound
	}

	delete(r.documents, id)
	r.removeFileMapping(doc.FileID, id)
	r.queryCache.Flush()

	return nil
}

// DeleteByFileID 删除指定文件的所有分块
func (r *MemoryRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docIDs, exists := r.fileToDocIDs[fileID]
	if !exists {
		return nil
	}

	for _, id := range docIDs {
		delete(r.documents, id)
	}
	delete(r.fileToDocIDs, fileID)
	r.queryCache.Flush()

	return nil
}

// removeFileMapping 从文件映射中移除单个文档ID
// 调用者必须持有写锁
func (r *MemoryRepository) removeFileMapping(fileID, docID string) {
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
// 小规模文档集合串行计算，大规模时分片并行
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	// 尝试从缓存获取查询结果
	key := queryCacheKey(vector, filter)
	if cached, found := r.queryCache.Get(key); found {
		results := cached.([]SearchResult)
		out := make([]SearchResult, len(results))
		copy(out, results)
		return out, nil
	}

	r.mu.RLock()
	candidates := r.collectCandidates(filter)
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return []SearchResult{}, nil
	}

	var results []SearchResult
	var err error

	workers := runtime.NumCPU()
	if len(candidates) < 200 || workers <= 1 {
		results, err = scoreDocuments(vector, candidates, filter, r.distType)
	} else {
		results, err = r.parallelScore(vector, candidates, filter, workers)
	}
	if err != nil {
		return nil, err
	}

	SortSearchResults(results)

	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}

	cached := make([]SearchResult, len(results))
	copy(cached, results)
	r.queryCache.Set(key, cached, gocache.DefaultExpiration)

	return results, nil
}

// collectCandidates 根据过滤条件收集候选文档
// 调用者必须持有读锁
func (r *MemoryRepository) collectCandidates(filter SearchFilter) []Document {
	var candidates []Document

	if len(filter.FileIDs) > 0 {
		// 指定了文件ID时，通过索引直接定位相关文档
		for _, fileID := range filter.FileIDs {
			for _, docID := range r.fileToDocIDs[fileID] {
				doc, exists := r.documents[docID]
				if exists && matchMetadata(doc.Metadata, filter.Metadata) {
					candidates = append(candidates, doc)
				}
			}
		}
		return candidates
	}

	candidates = make([]Document, 0, len(r.documents))
	for _, doc := range r.documents {
		if matchMetadata(doc.Metadata, filter.Metadata) {
			candidates = append(candidates, doc)
		}
	}
	return candidates
}

// scoreDocuments 计算查询向量与候选文档的相似度得分
func scoreDocuments(vector []float32, docs []Document, filter SearchFilter, distType DistanceType) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(docs))

	for _, doc := range docs {
		dist, err := ComputeDistance(vector, doc.Vector, distType)
		if err != nil {
			return nil, fmt.Errorf("error computing distance: %v", err)
		}

		score := DistanceToScore(dist, distType)
		if score < filter.MinScore {
			continue
		}

		results = append(results, SearchResult{
			Document: doc,
			Score:    score,
			Distance: dist,
		})
	}

	return results, nil
}

// parallelScore 将候选文档分片后并行计算得分
func (r *MemoryRepository) parallelScore(vector []float32, docs []Document, filter SearchFilter, workers int) ([]SearchResult, error) {
	chunkSize := (len(docs) + workers - 1) / workers

	type chunkOutcome struct {
		results []SearchResult
		err     error
	}

	outcomes := make(chan chunkOutcome, workers)
	chunks := 0

	for start := 0; start < len(docs); start += chunkSize {
		end := start + chunkSize
		if end > len(docs) {
			end = len(docs)
		}
		chunks++

		go func(part []Document) {
			results, err := scoreDocuments(vector, part, filter, r.distType)
			outcomes <- chunkOutcome{results: results, err: err}
		}(docs[start:end])
	}

	var allResults []SearchResult
	for i := 0; i < chunks; i++ {
		outcome := <-outcomes
		if outcome.err != nil {
			return nil, outcome.err
		}
		allResults = append(allResults, outcome.results...)
	}

	return allResults, nil
}

// Count 获取文档总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.documents), nil
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	return r.dimension
}

// Flush 将当前内容写入快照文件
func (r *MemoryRepository) Flush() error {
	if r.snapshotPath == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.saveSnapshot()
}

// Close 关闭仓库，配置了持久化路径时写出快照
func (r *MemoryRepository) Close() error {
	return r.Flush()
}

// memorySnapshot 快照文件的序列化结构
type memorySnapshot struct {
	Dimension    int                 `json:"dimension"`
	DistanceType DistanceType        `json:"distance_type"`
	Documents    map[string]Document `json:"documents"`
}

// saveSnapshot 将文档写入快照文件
// 调用者必须持有读锁
func (r *MemoryRepository) saveSnapshot() error {
	if err := os.MkdirAll(filepath.Dir(r.snapshotPath), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %v", err)
	}

	snapshot := memorySnapshot{
		Dimension:    r.dimension,
		DistanceType: r.distType,
		Documents:    r.documents,
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %v", err)
	}

	// 先写临时文件再改名，避免写入中断产生损坏的快照
	tmpPath := r.snapshotPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %v", err)
	}

	return os.Rename(tmpPath, r.snapshotPath)
}

// loadSnapshot 从快照文件恢复文档
func (r *MemoryRepository) loadSnapshot() error {
	data, err := os.ReadFile(r.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read snapshot: %v", err)
	}

	var snapshot memorySnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}

	if snapshot.Dimension != r.dimension {
		return fmt.Errorf("snapshot dimension mismatch: expected %d, got %d",
			r.dimension, snapshot.Dimension)
	}

	for id, doc := range snapshot.Documents {
		r.documents[id] = doc
		r.fileToDocIDs[doc.FileID] = append(r.fileToDocIDs[doc.FileID], id)
	}

	// 保证每个文件的分块ID顺序稳定
	for fileID := range r.fileToDocIDs {
		sort.Strings(r.fileToDocIDs[fileID])
	}

	return nil
}

// queryCacheKey 为查询向量和过滤条件生成缓存键
func queryCacheKey(vector []float32, filter SearchFilter) string {
	h := fnv.New64a()

	buf := make([]byte, 4)
	for _, v := range vector {
		binary.LittleEndian.PutUint32(buf, uint32(int32(v*1e6)))
		h.Write(buf)
	}

	for _, id := range filter.FileIDs {
		h.Write([]byte(id))
	}
	for k, v := range filter.Metadata {
		h.Write([]byte(k))
		h.Write([]byte(fmt.Sprintf("%v", v)))
	}

	return fmt.Sprintf("q_%x_%f_%d", h.Sum64(), filter.MinScore, filter.MaxResults)
}

// 在包初始化时注册内存仓库
func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
