package vectordb

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryRepo(t *testing.T, dim int) Repository {
	repo, err := NewMemoryRepository(Config{
		Type:         "memory",
		Dimension:    dim,
		DistanceType: Cosine,
	})
	require.NoError(t, err, "Memory repository creation should succeed")
	return repo
}

func testDoc(id, fileID string, vector []float32) Document {
	return Document{
		ID:       id,
		FileID:   fileID,
		FileName: fileID + ".pdf",
		Text:     "text of " + id,
		Vector:   vector,
	}
}

func TestComputeDistance(t *testing.T) {
	v1 := []float32{1, 0, 0}
	v2 := []float32{0, 1, 0}

	t.Run("Cosine", func(t *testing.T) {
		dist, err := ComputeDistance(v1, v1, Cosine)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, dist, 1e-6, "Identical vectors should have zero cosine distance")

		dist, err = ComputeDistance(v1, v2, Cosine)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, dist, 1e-6, "Orthogonal vectors should have cosine distance 1")
	})

	t.Run("Euclidean", func(t *testing.T) {
		dist, err := ComputeDistance(v1, v2, Euclidean)
		require.NoError(t, err)
		assert.InDelta(t, math.Sqrt(2), float64(dist), 1e-6)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := ComputeDistance(v1, []float32{1, 2}, Cosine)
		assert.Error(t, err, "Mismatched dimensions should fail")
	})
}

func TestDistanceToScore(t *testing.T) {
	assert.InDelta(t, 1.0, DistanceToScore(0, Cosine), 1e-6, "Zero cosine distance should score 1")
	assert.InDelta(t, 0.0, DistanceToScore(1, Cosine), 1e-6)
	assert.InDelta(t, 1.0, DistanceToScore(0, Euclidean), 1e-6, "Zero euclidean distance should score 1")
	assert.InDelta(t, 1.0, DistanceToScore(1, DotProduct), 1e-6)
}

func TestValidateVector(t *testing.T) {
	assert.ErrorIs(t, ValidateVector(nil, 3), ErrEmptyVector)
	assert.ErrorIs(t, ValidateVector([]float32{1, 2}, 3), ErrInvalidDimension)
	assert.NoError(t, ValidateVector([]float32{1, 2, 3}, 3))
}

func TestMemoryRepository_AddBatchKeepsInputIntact(t *testing.T) {
	repo := newTestMemoryRepo(t, 3)

	docs := []Document{
		testDoc("doc-1", "file-1", []float32{3, 0, 0}),
		testDoc("doc-2", "file-1", []float32{0, 2, 0}),
	}
	require.NoError(t, repo.AddBatch(docs))

	// 入库时的归一化和默认值补齐不应改写调用方的切片
	assert.Equal(t, []float32{3, 0, 0}, docs[0].Vector, "Caller vectors should stay unnormalized")
	assert.Equal(t, []float32{0, 2, 0}, docs[1].Vector)
	assert.Nil(t, docs[0].Metadata, "Caller metadata should stay untouched")
	assert.True(t, docs[0].CreatedAt.IsZero(), "Caller timestamps should stay untouched")

	// 库内保存的是归一化后的副本
	saved, err := repo.Get("doc-1")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(saved.Vector[0]), 1e-6, "Stored cosine vectors should be normalized")
}

func TestMemoryRepository_AddAndGet(t *testing.T) {
	repo := newTestMemoryRepo(t, 3)

	doc := testDoc("doc-1", "file-1", []float32{1, 0, 0})
	require.NoError(t, repo.Add(doc), "Add should succeed")

	saved, err := repo.Get("doc-1")
	require.NoError(t, err, "Get should succeed")
	assert.Equal(t, "doc-1", saved.ID)
	assert.Equal(t, "file-1", saved.FileID)
	assert.False(t, saved.CreatedAt.IsZero(), "CreatedAt should be set on add")

	_, err = repo.Get("no-such-doc")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	// 维度不匹配
	err = repo.Add(testDoc("bad", "file-1", []float32{1, 0}))
	assert.ErrorIs(t, err, ErrInvalidDimension)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryRepository_Search(t *testing.T) {
	repo := newTestMemoryRepo(t, 3)

	require.NoError(t, repo.AddBatch([]Document{
		testDoc("doc-1", "file-1", []float32{1, 0, 0}),
		testDoc("doc-2", "file-1", []float32{0.9, 0.1, 0}),
		testDoc("doc-3", "file-2", []float32{0, 1, 0}),
		testDoc("doc-4", "file-2", []float32{0, 0, 1}),
	}))

	t.Run("TopKOrdering", func(t *testing.T) {
		results, err := repo.Search([]float32{1, 0, 0}, SearchFilter{MaxResults: 2})
		require.NoError(t, err, "Search should succeed")
		require.Len(t, results, 2, "Search should return the two closest chunks")
		assert.Equal(t, "doc-1", results[0].Document.ID, "Exact match should rank first")
		assert.Equal(t, "doc-2", results[1].Document.ID)
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score, "Results should be ordered by score")
	})

	t.Run("FileIDFilter", func(t *testing.T) {
		results, err := repo.Search([]float32{1, 0, 0}, SearchFilter{
			MaxResults: 10,
			FileIDs:    []string{"file-2"},
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.Equal(t, "file-2", r.Document.FileID, "Only chunks of the filtered file should match")
		}
	})

	t.Run("MinScoreFilter", func(t *testing.T) {
		results, err := repo.Search([]float32{1, 0, 0}, SearchFilter{
			MaxResults: 10,
			MinScore:   0.9,
		})
		require.NoError(t, err)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, float32(0.9), "All results should clear the score threshold")
		}
	})

	t.Run("EmptyRepository", func(t *testing.T) {
		empty := newTestMemoryRepo(t, 3)
		results, err := empty.Search([]float32{1, 0, 0}, DefaultSearchFilter())
		require.NoError(t, err)
		assert.Empty(t, results, "Empty repository should return no results")
	})
}

func TestMemoryRepository_SearchCacheInvalidation(t *testing.T) {
	repo := newTestMemoryRepo(t, 3)

	require.NoError(t, repo.Add(testDoc("doc-1", "file-1", []float32{1, 0, 0})))

	query := []float32{1, 0, 0}
	results, err := repo.Search(query, SearchFilter{MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// 新增文档后重复同一查询应看到新文档
	require.NoError(t, repo.Add(testDoc("doc-2", "file-1", []float32{1, 0.01, 0})))
	results, err = repo.Search(query, SearchFilter{MaxResults: 5})
	require.NoError(t, err)
	assert.Len(t, results, 2, "Search after add should not return stale cached results")
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := newTestMemoryRepo(t, 3)

	require.NoError(t, repo.AddBatch([]Document{
		testDoc("doc-1", "file-1", []float32{1, 0, 0}),
		testDoc("doc-2", "file-1", []float32{0, 1, 0}),
		testDoc("doc-3", "file-2", []float32{0, 0, 1}),
	}))

	// 删除单个文档
	require.NoError(t, repo.Delete("doc-1"))
	_, err := repo.Get("doc-1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	assert.ErrorIs(t, repo.Delete("doc-1"), ErrDocumentNotFound, "Deleting twice should fail")

	// 按文件删除
	require.NoError(t, repo.DeleteByFileID("file-1"))
	_, err = repo.Get("doc-2")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "Only the other file's chunk should remain")

	// 删除不存在的文件不报错
	assert.NoError(t, repo.DeleteByFileID("no-such-file"))
}

func TestMemoryRepository_Snapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors", "snapshot.json")

	repo, err := NewMemoryRepository(Config{
		Type:      "memory",
		Path:      path,
		Dimension: 3,
	})
	require.NoError(t, err)

	require.NoError(t, repo.AddBatch([]Document{
		testDoc("doc-1", "file-1", []float32{1, 0, 0}),
		testDoc("doc-2", "file-1", []float32{0, 1, 0}),
	}))
	require.NoError(t, repo.Close(), "Close should write the snapshot")

	// 重新打开仓库应恢复文档
	restored, err := NewMemoryRepository(Config{
		Type:      "memory",
		Path:      path,
		Dimension: 3,
	})
	require.NoError(t, err, "Reopening with a snapshot should succeed")

	count, err := restored.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count, "All documents should be restored from the snapshot")

	results, err := restored.Search([]float32{1, 0, 0}, SearchFilter{MaxResults: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].Document.ID, "Restored vectors should still be searchable")

	// 维度不匹配的快照应拒绝加载
	_, err = NewMemoryRepository(Config{
		Type:      "memory",
		Path:      path,
		Dimension: 5,
	})
	assert.Error(t, err, "Snapshot with a different dimension should be rejected")
}

func TestNewRepository_Registry(t *testing.T) {
	repo, err := NewRepository(Config{Type: "memory", Dimension: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, repo.GetDimension())

	// 未注册类型回退到内存实现
	repo, err = NewRepository(Config{Type: "unknown-db", Dimension: 4})
	require.NoError(t, err)
	_, ok := repo.(*MemoryRepository)
	assert.True(t, ok, "Unknown type should fall back to the memory implementation")
}

func TestSortSearchResults(t *testing.T) {
	results := make([]SearchResult, 0, 5)
	for i := 0; i < 5; i++ {
		results = append(results, SearchResult{
			Document: Document{ID: fmt.Sprintf("doc-%d", i)},
			Score:    float32(i) / 10,
		})
	}

	SortSearchResults(results)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "Results should be sorted descending")
	}
}
