package document

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// SplitterConfig 分块器配置
type SplitterConfig struct {
	Separator    string // 分隔符，优先按它切分原文
	ChunkSize    int    // 分块大小（按字符数）
	ChunkOverlap int    // 相邻分块的重叠大小（字符数）
	MaxChunks    int    // 最大分块数量（0表示不限制）
}

// DefaultSplitterConfig 返回默认分块器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		Separator:    "\n\n",
		ChunkSize:    1000,
		ChunkOverlap: 40,
		MaxChunks:    0,
	}
}

// CharacterSplitter 按字符数分块的文本分块器
// 先按分隔符把原文切成自然段，再把相邻段落合并到不超过ChunkSize的块中，
// 相邻块之间保留ChunkOverlap个字符的重叠
type CharacterSplitter struct {
	config SplitterConfig
	logger *logrus.Logger
}

// NewCharacterSplitter 创建新的字符分块器
func NewCharacterSplitter(config SplitterConfig) (*CharacterSplitter, error) {
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.ChunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap cannot be negative, got %d", config.ChunkOverlap)
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)",
			config.ChunkOverlap, config.ChunkSize)
	}
	if config.Separator == "" {
		config.Separator = "\n\n"
	}

	return &CharacterSplitter{
		config: config,
		logger: logrus.StandardLogger(),
	}, nil
}

// SetLogger 设置分块器使用的日志器
func (s *CharacterSplitter) SetLogger(logger *logrus.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Split 将文本分割成文本块
func (s *CharacterSplitter) Split(text string) ([]Content, error) {
	if strings.TrimSpace(text) == "" {
		return []Content{}, nil
	}

	// 规范化换行符
	text = strings.ReplaceAll(text, "\r\n", "\n")

	splits := s.splitBySeparator(text)
	chunks := s.mergeSplits(splits)

	// 应用最大分块数量限制
	if s.config.MaxChunks > 0 && len(chunks) > s.config.MaxChunks {
		chunks = chunks[:s.config.MaxChunks]
	}

	contents := make([]Content, 0, len(chunks))
	for i, chunk := range chunks {
		contents = append(contents, Content{
			Text:  chunk,
			Index: i,
		})
	}

	return contents, nil
}

// splitBySeparator 按分隔符切分文本，去除空段
func (s *CharacterSplitter) splitBySeparator(text string) []string {
	parts := strings.Split(text, s.config.Separator)

	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}

	return result
}

// mergeSplits 将切分出的段落合并成接近ChunkSize的块
// 一个段落本身超过ChunkSize时不再硬切，整段作为一个块输出并记录警告
func (s *CharacterSplitter) mergeSplits(splits []string) []string {
	sepLen := runeLen(s.config.Separator)

	var chunks []string
	var current []string
	total := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunk := strings.Join(current, s.config.Separator)
		if size := runeLen(chunk); size > s.config.ChunkSize {
			s.logger.WithFields(logrus.Fields{
				"chunk_size": size,
				"limit":      s.config.ChunkSize,
			}).Warn("Created a chunk longer than the configured chunk size")
		}
		chunks = append(chunks, chunk)
	}

	for _, split := range splits {
		l := runeLen(split)

		// 加入当前段落会超出块大小时，先输出已积累的块
		extra := 0
		if len(current) > 0 {
			extra = sepLen
		}
		if total+l+extra > s.config.ChunkSize && len(current) > 0 {
			flush()

			// 从块头部移除段落，直到剩余部分不超过重叠大小，
			// 且保留的重叠加上新段落仍在块大小之内
			for len(current) > 0 &&
				(total > s.config.ChunkOverlap || total+l+sepLen > s.config.ChunkSize) {
				removed := runeLen(current[0])
				total -= removed
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}

		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, split)
		total += l
	}

	flush()

	return chunks
}

// runeLen 返回字符串的字符数而非字节数
func runeLen(s string) int {
	return len([]rune(s))
}
