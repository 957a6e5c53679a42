package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 批量嵌入处理器
// 将大量文本分批并行提交给嵌入客户端
type BatchProcessor struct {
	client     Client // 嵌入客户端
	batchSize  int    // 每批处理的文本数量
	maxWorkers int    // 最大并行工作线程数
	skipEmpty  bool   // 是否跳过空文本
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}

	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
		skipEmpty:  true,
	}
}

// Process 处理一批文本，将它们分成多个小批次并行处理
// 返回的向量与输入文本一一对应，空文本对应nil向量
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// 过滤空文本，记录其原始位置
	var filteredTexts []string
	emptyIndices := make(map[int]bool)

	if p.skipEmpty {
		filteredTexts = make([]string, 0, len(texts))
		for i, text := range texts {
			if text != "" {
				filteredTexts = append(filteredTexts, text)
			} else {
				emptyIndices[i] = true
			}
		}
	} else {
		filteredTexts = texts
	}

	// 如果全是空文本
	if len(filteredTexts) == 0 {
		return make([][]float32, len(texts)), nil
	}

	// 分割成批次
	batches := splitIntoBatches(filteredTexts, p.batchSize)

	// 创建工作池和结果收集器
	wp := workerpool.New(p.maxWorkers)
	resultsMu := sync.Mutex{}
	batchVectors := make([][][]float32, len(batches))
	var processingErr error
	var errOnce sync.Once

	for i, batch := range batches {
		i, batch := i, batch // 捕获循环变量
		wp.Submit(func() {
			// 检查上下文是否已取消
			select {
			case <-ctx.Done():
				errOnce.Do(func() {
					processingErr = ctx.Err()
				})
				return
			default:
			}

			vectors, err := p.client.EmbedBatch(ctx, batch)

			resultsMu.Lock()
			defer resultsMu.Unlock()

			if err != nil {
				errOnce.Do(func() {
					processingErr = fmt.Errorf("batch %d processing error: %v", i, err)
				})
				return
			}

			batchVectors[i] = vectors
		})
	}

	// 等待所有任务完成
	wp.StopWait()

	if processingErr != nil {
		return nil, processingErr
	}

	// 按批次顺序合并结果
	var allVectors [][]float32
	for _, vectors := range batchVectors {
		allVectors = append(allVectors, vectors...)
	}

	// 如果有空文本，将向量插回对应位置
	if len(emptyIndices) > 0 {
		finalResults := make([][]float32, len(texts))
		vectorIndex := 0

		for i := 0; i < len(texts); i++ {
			if emptyIndices[i] {
				continue
			}
			if vectorIndex < len(allVectors) {
				finalResults[i] = allVectors[vectorIndex]
				vectorIndex++
			}
		}

		return finalResults, nil
	}

	return allVectors, nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)

	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}

	return batches
}
